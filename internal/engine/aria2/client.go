package aria2

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/italolelis/transloader/internal/engine"
	"github.com/italolelis/transloader/internal/logctx"
)

// Client talks to an aria2 daemon over its JSON-RPC 2.0 HTTP endpoint.
type Client struct {
	RPCURL     string
	secret     string
	httpClient *http.Client
}

func NewClient(rpcURL, secret string) *Client {
	return &Client{
		RPCURL:     rpcURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Ensure Client implements engine.Client.
var _ engine.Client = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("aria2 rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// statusKeys limits tellStatus/tellActive responses to the fields we read.
var statusKeys = []string{
	"gid", "status", "totalLength", "completedLength", "downloadSpeed",
	"errorMessage", "dir", "connections", "numSeeders", "followedBy",
	"bittorrent", "files",
}

type rpcStatus struct {
	GID             string   `json:"gid"`
	Status          string   `json:"status"`
	TotalLength     string   `json:"totalLength"`
	CompletedLength string   `json:"completedLength"`
	DownloadSpeed   string   `json:"downloadSpeed"`
	ErrorMessage    string   `json:"errorMessage"`
	Dir             string   `json:"dir"`
	Connections     string   `json:"connections"`
	NumSeeders      string   `json:"numSeeders"`
	FollowedBy      []string `json:"followedBy"`
	BitTorrent      struct {
		Info struct {
			Name string `json:"name"`
		} `json:"info"`
	} `json:"bittorrent"`
	Files []struct {
		Path string `json:"path"`
	} `json:"files"`
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	logger := logctx.LoggerFromContext(ctx).With("method", method)

	// aria2 expects the secret token as the first positional parameter.
	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      "transloader",
		Method:  method,
		Params:  append([]any{"token:" + c.secret}, params...),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RPCURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("engine unreachable", "err", err)

		return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		logger.Debug("non-200 response", "status", resp.StatusCode, "body", string(b))

		return fmt.Errorf("%w: unexpected status %d", engine.ErrUnavailable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode rpc response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode rpc result: %w", err)
		}
	}

	return nil
}

func mapOptions(o engine.Options) map[string]string {
	opts := map[string]string{
		"continue":        "true",
		"allow-overwrite": "true",
	}

	if o.Dir != "" {
		opts["dir"] = o.Dir
	}
	if o.Out != "" {
		opts["out"] = o.Out
	}
	if o.MaxConnections > 0 {
		opts["max-connection-per-server"] = strconv.Itoa(o.MaxConnections)
	}
	if o.Split > 0 {
		opts["split"] = strconv.Itoa(o.Split)
	}
	if o.MaxTries > 0 {
		opts["max-tries"] = strconv.Itoa(o.MaxTries)
		opts["retry-wait"] = "3"
	}
	if o.PerTryTimeout > 0 {
		opts["timeout"] = strconv.Itoa(o.PerTryTimeout)
	}
	if o.MaxPeers > 0 {
		opts["bt-max-peers"] = strconv.Itoa(o.MaxPeers)
		// Download only; never hold the files for seeding afterwards.
		opts["seed-time"] = "0"
	}
	if o.FollowTorrent {
		opts["follow-torrent"] = "true"
	}

	return opts
}

func (c *Client) AddURI(ctx context.Context, uri string, opts engine.Options) (string, error) {
	var gid string

	if err := c.call(ctx, "aria2.addUri", []any{[]string{uri}, mapOptions(opts)}, &gid); err != nil {
		return "", err
	}

	return gid, nil
}

func (c *Client) AddTorrent(ctx context.Context, torrent []byte, opts engine.Options) (string, error) {
	var gid string
	encoded := base64.StdEncoding.EncodeToString(torrent)

	if err := c.call(ctx, "aria2.addTorrent", []any{encoded, []string{}, mapOptions(opts)}, &gid); err != nil {
		return "", err
	}

	return gid, nil
}

// AddMagnet submits a magnet URI. aria2 handles magnets through addUri; the
// metadata download completes first and the real download is spawned as a
// follow-up handle.
func (c *Client) AddMagnet(ctx context.Context, uri string, opts engine.Options) (string, error) {
	return c.AddURI(ctx, uri, opts)
}

func (c *Client) TellStatus(ctx context.Context, handle string) (*engine.Status, error) {
	var raw rpcStatus
	if err := c.call(ctx, "aria2.tellStatus", []any{handle, statusKeys}, &raw); err != nil {
		return nil, err
	}

	return raw.toStatus(), nil
}

func (c *Client) Active(ctx context.Context) ([]*engine.Status, error) {
	var raw []rpcStatus
	if err := c.call(ctx, "aria2.tellActive", []any{statusKeys}, &raw); err != nil {
		return nil, err
	}

	statuses := make([]*engine.Status, 0, len(raw))
	for i := range raw {
		statuses = append(statuses, raw[i].toStatus())
	}

	return statuses, nil
}

// Remove tells the engine to terminate the in-flight download for a handle.
func (c *Client) Remove(ctx context.Context, handle string) error {
	var gid string

	return c.call(ctx, "aria2.remove", []any{handle}, &gid)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var result struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "aria2.getVersion", nil, &result); err != nil {
		return "", err
	}

	return result.Version, nil
}

func (s *rpcStatus) toStatus() *engine.Status {
	status := &engine.Status{
		Handle:         s.GID,
		Dir:            s.Dir,
		Completed:      s.Status == "complete",
		Failed:         s.Status == "error" || s.Status == "removed",
		TotalBytes:     parseInt(s.TotalLength),
		CompletedBytes: parseInt(s.CompletedLength),
		SpeedBytes:     parseInt(s.DownloadSpeed),
		ErrorMessage:   s.ErrorMessage,
		Connections:    int(parseInt(s.Connections)),
		Seeders:        int(parseInt(s.NumSeeders)),
		TorrentName:    s.BitTorrent.Info.Name,
		FollowedBy:     s.FollowedBy,
	}

	for _, f := range s.Files {
		if f.Path != "" {
			status.Files = append(status.Files, f.Path)
		}
	}

	return status
}

// aria2 reports numeric fields as decimal strings.
func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)

	return n
}
