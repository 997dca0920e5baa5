package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/transloader/internal/config"
	"github.com/italolelis/transloader/internal/engine"
	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/storage"
	"github.com/italolelis/transloader/internal/transfer/progress"
)

const (
	directPollInterval = 1 * time.Second
	streamChunkSize    = 8 * 1024
	streamProgressStep = 1024 * 1024 // MiB granularity in fallback mode
	maxRedirects       = 10
	perTryTimeoutSecs  = 60
)

// DirectStrategy downloads a single file from an http/https URL: primary
// path through the engine (multi-connection, resumable), with an optional
// one-shot streamed fallback when the engine is unavailable or reports a
// failure.
type DirectStrategy struct {
	engine          engine.Client
	tracker         *storage.Tracker
	httpClient      *http.Client
	maxFileSize     int64
	maxConnections  int
	split           int
	maxTries        int
	fallbackEnabled bool
	pollInterval    time.Duration
}

func NewDirectStrategy(ec engine.Client, tracker *storage.Tracker, cfg *config.Config) *DirectStrategy {
	return &DirectStrategy{
		engine:  ec,
		tracker: tracker,
		httpClient: &http.Client{
			Timeout: cfg.DownloadTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxFileSize:     cfg.MaxFileSizeBytes(),
		maxConnections:  cfg.Aria2.MaxConnections,
		split:           cfg.Aria2.Split,
		maxTries:        cfg.MaxRetries,
		fallbackEnabled: cfg.Aria2.EnableFallback,
		pollInterval:    directPollInterval,
	}
}

// Fetch downloads the URL into dir under filename and verifies the result.
func (s *DirectStrategy) Fetch(ctx context.Context, jobID, url, filename, dir string) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("job_id", jobID)
	target := filepath.Join(dir, filename)

	if err := s.fetchEngine(ctx, jobID, url, dir, filename); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}

		if !s.fallbackEnabled {
			return nil, err
		}

		logger.Warn("engine download failed, falling back to streamed download", "err", err)

		if err := s.fetchStream(ctx, jobID, url, target); err != nil {
			return nil, err
		}
	}

	// A present but empty file is a distinct terminal failure.
	info, err := os.Stat(target)
	if err != nil || info.Size() == 0 {
		return nil, &TransferError{Stage: "verify", Reason: "downloaded file is missing or empty", Err: err}
	}

	logger.Info("direct download finished", "target", target, "size", humanize.Bytes(uint64(info.Size())))

	return &Result{Files: []string{target}}, nil
}

func (s *DirectStrategy) fetchEngine(ctx context.Context, jobID, url, dir, filename string) error {
	handle, err := s.engine.AddURI(ctx, url, engine.Options{
		Dir:            dir,
		Out:            filename,
		MaxConnections: s.maxConnections,
		Split:          s.split,
		MaxTries:       s.maxTries,
		PerTryTimeout:  perTryTimeoutSecs,
	})
	if err != nil {
		return fmt.Errorf("failed to submit download: %w", err)
	}

	return pollDownload(ctx, s.engine, s.tracker, jobID, handle, pollConfig{interval: s.pollInterval})
}

// fetchStream is the single-stream fallback: size precheck against the
// configured cap, fixed-size chunks, progress at MiB granularity without
// rate or ETA.
func (s *DirectStrategy) fetchStream(ctx context.Context, jobID, url, target string) error {
	logger := logctx.LoggerFromContext(ctx).With("job_id", jobID)

	if err := s.tracker.Progress(ctx, jobID, 0, "", ""); err != nil {
		logger.Warn("failed to reset progress", "err", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Operation: "streamed_download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &NetworkError{Operation: "streamed_download", StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	// Reject oversized responses before writing any bytes.
	if resp.ContentLength > 0 && resp.ContentLength > s.maxFileSize {
		return &SizeLimitError{DeclaredBytes: resp.ContentLength, LimitBytes: s.maxFileSize}
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer out.Close()

	pr := progress.NewReader(resp.Body, resp.ContentLength, streamProgressStep, func(written, total int64) {
		if total <= 0 {
			return
		}

		pct := math.Round(float64(written)/float64(total)*100*100) / 100
		if err := s.tracker.Progress(ctx, jobID, pct, "", ""); err != nil {
			logger.Warn("failed to record progress", "err", err)
		}
	})

	buf := make([]byte, streamChunkSize)
	if _, err := io.CopyBuffer(out, pr, buf); err != nil {
		return &NetworkError{Operation: "streamed_download", Err: err}
	}

	return nil
}
