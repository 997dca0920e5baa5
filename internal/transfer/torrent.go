package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/transloader/internal/config"
	"github.com/italolelis/transloader/internal/engine"
	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/storage"
)

const (
	torrentPollInterval = 2 * time.Second
	spawnSearchWindow   = 30 * time.Second
	spawnSearchInterval = 1 * time.Second
	maxTorrentFileSize  = 10 * 1024 * 1024
)

// TorrentStrategy downloads torrents and magnets through the engine. Magnet
// submissions frequently complete a metadata-only phase with zero files and
// spawn a second, real download; the strategy hunts for that handle and
// recurses into the same poll loop against it.
type TorrentStrategy struct {
	engine        engine.Client
	tracker       *storage.Tracker
	httpClient    *http.Client
	maxConns      int
	split         int
	maxTries      int
	maxPeers      int
	pollInterval  time.Duration
	spawnWindow   time.Duration
	spawnInterval time.Duration
}

func NewTorrentStrategy(ec engine.Client, tracker *storage.Tracker, cfg *config.Config) *TorrentStrategy {
	return &TorrentStrategy{
		engine:        ec,
		tracker:       tracker,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		maxConns:      cfg.Aria2.MaxConnections,
		split:         cfg.Aria2.Split,
		maxTries:      cfg.MaxRetries,
		maxPeers:      cfg.Aria2.MaxPeers,
		pollInterval:  torrentPollInterval,
		spawnWindow:   spawnSearchWindow,
		spawnInterval: spawnSearchInterval,
	}
}

// Fetch resolves the torrent or magnet into dir. On failure the returned
// Result still carries any display name resolved from metadata.
func (s *TorrentStrategy) Fetch(ctx context.Context, jobID, rawURL, dir string, kind LinkType) (*Result, error) {
	logger := logctx.LoggerFromContext(ctx).With("job_id", jobID)

	opts := engine.Options{
		Dir:            dir,
		MaxConnections: s.maxConns,
		Split:          s.split,
		MaxTries:       s.maxTries,
		MaxPeers:       s.maxPeers,
		FollowTorrent:  true,
	}

	var (
		handle string
		name   string
		err    error
	)

	switch kind {
	case LinkMagnet:
		handle, err = s.engine.AddMagnet(ctx, rawURL, opts)
	case LinkTorrent:
		var body []byte

		body, err = s.fetchTorrentFile(ctx, rawURL)
		if err == nil {
			name = MetainfoName(body)
			handle, err = s.engine.AddTorrent(ctx, body, opts)
		}
	default:
		return nil, &ClassificationError{URL: rawURL}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to submit torrent: %w", err)
	}

	logger.Debug("torrent submitted", "handle", handle, "kind", string(kind))

	pollCfg := pollConfig{interval: s.pollInterval, withPeers: true}
	if err := pollDownload(ctx, s.engine, s.tracker, jobID, handle, pollCfg); err != nil {
		return &Result{DisplayName: name}, err
	}

	st, err := s.engine.TellStatus(ctx, handle)
	if err != nil {
		return &Result{DisplayName: name}, fmt.Errorf("failed to read final status: %w", err)
	}

	if name == "" {
		name = st.TorrentName
	}

	files := existingFiles(st.Files)

	// Metadata-only completion: zero files on a magnet means the engine
	// spawned (or is about to spawn) the real download under a new handle.
	if kind == LinkMagnet && len(files) == 0 {
		logger.Info("magnet metadata resolved, searching for spawned download")

		spawned := s.findSpawned(ctx, handle, dir)
		if spawned == "" {
			return &Result{DisplayName: name}, &IncompleteResultError{Reason: "no files to download"}
		}

		if err := pollDownload(ctx, s.engine, s.tracker, jobID, spawned, pollCfg); err != nil {
			return &Result{DisplayName: name}, err
		}

		spawnedStatus, err := s.engine.TellStatus(ctx, spawned)
		if err != nil {
			return &Result{DisplayName: name}, fmt.Errorf("failed to read spawned status: %w", err)
		}

		if name == "" {
			name = spawnedStatus.TorrentName
		}

		files = existingFiles(spawnedStatus.Files)
	}

	if len(files) == 0 {
		return &Result{DisplayName: name}, &IncompleteResultError{Reason: "no files to download"}
	}

	if name == "" {
		name = DeriveName(dir, files)
	}

	logger.Info("torrent download finished", "files", len(files), "name", name)

	return &Result{Files: files, DisplayName: name}, nil
}

// findSpawned looks for the follow-up download of a metadata-only magnet:
// first via the engine's followed-by list, then by scanning in-flight
// downloads for one sharing the target dir under a different handle.
func (s *TorrentStrategy) findSpawned(ctx context.Context, handle, dir string) string {
	logger := logctx.LoggerFromContext(ctx)
	deadline := time.Now().Add(s.spawnWindow)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ""
		}

		if st, err := s.engine.TellStatus(ctx, handle); err == nil && len(st.FollowedBy) > 0 {
			return st.FollowedBy[0]
		}

		active, err := s.engine.Active(ctx)
		if err != nil {
			logger.Debug("failed to list active downloads", "err", err)
		}

		for _, a := range active {
			if a.Handle != handle && a.Dir == dir {
				return a.Handle
			}
		}

		select {
		case <-ctx.Done():
			return ""
		case <-time.After(s.spawnInterval):
		}
	}

	return ""
}

func (s *TorrentStrategy) fetchTorrentFile(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Operation: "fetch_torrent", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{Operation: "fetch_torrent", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentFileSize))
	if err != nil {
		return nil, &NetworkError{Operation: "fetch_torrent", Err: err}
	}

	return body, nil
}

// DeriveName picks a base name from a downloaded file set: a single file's
// name, the first distinct top-level path component for multiple files, or
// the work dir's own name when no distinct root exists.
func DeriveName(dir string, files []string) string {
	if len(files) == 0 {
		return filepath.Base(dir)
	}

	if len(files) == 1 {
		return filepath.Base(files[0])
	}

	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}

		if root := strings.Split(rel, string(filepath.Separator))[0]; root != "" {
			return root
		}
	}

	return filepath.Base(dir)
}

func existingFiles(paths []string) []string {
	var files []string

	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			files = append(files, p)
		}
	}

	return files
}
