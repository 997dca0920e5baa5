package webdav

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/transfer"
	"github.com/italolelis/transloader/internal/uploader"
)

// Client uploads artifacts to a WebDAV-compatible endpoint with basic auth.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	httpClient *http.Client
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Username:   username,
		Password:   password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ uploader.Uploader = (*Client)(nil)

// Upload PUTs the local file under remoteName, synchronously.
func (c *Client) Upload(ctx context.Context, localPath, remoteName string) error {
	logger := logctx.LoggerFromContext(ctx)

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}

	target := c.BaseURL + "/" + url.PathEscape(remoteName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.SetBasicAuth(c.Username, c.Password)

	logger.Info("uploading artifact", "remote_name", remoteName, "size", humanize.Bytes(uint64(info.Size())))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transfer.NetworkError{Operation: "upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &transfer.UploadError{RemoteName: remoteName, StatusCode: resp.StatusCode}
	}

	logger.Info("artifact uploaded", "remote_name", remoteName)

	return nil
}
