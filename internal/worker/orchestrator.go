package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/italolelis/transloader/internal/archive"
	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/storage"
	"github.com/italolelis/transloader/internal/telemetry"
	"github.com/italolelis/transloader/internal/transfer"
	"github.com/italolelis/transloader/internal/uploader"
)

const dirPerm = 0755

// Task is what dispatch hands to a worker: the job id, the source URL and
// the requested filename. Renamed distinguishes an explicit user rename from
// a name derived off the URL at submission time.
type Task struct {
	ID       string
	URL      string
	Filename string
	Renamed  bool
}

// DirectFetcher downloads a single file from an http/https URL.
type DirectFetcher interface {
	Fetch(ctx context.Context, jobID, url, filename, dir string) (*transfer.Result, error)
}

// TorrentFetcher resolves a torrent or magnet link into local files.
type TorrentFetcher interface {
	Fetch(ctx context.Context, jobID, url, dir string, kind transfer.LinkType) (*transfer.Result, error)
}

// Orchestrator drives one job end to end: classify, transfer, aggregate,
// upload, finalize. The work dir scoped to the job id is removed on every
// exit path, including panics unwinding through Process.
type Orchestrator struct {
	tracker     *storage.Tracker
	direct      DirectFetcher
	torrent     TorrentFetcher
	uploader    uploader.Uploader
	telemetry   *telemetry.Telemetry
	storagePath string
}

func NewOrchestrator(
	tracker *storage.Tracker,
	direct DirectFetcher,
	torrent TorrentFetcher,
	up uploader.Uploader,
	tel *telemetry.Telemetry,
	storagePath string,
) *Orchestrator {
	return &Orchestrator{
		tracker:     tracker,
		direct:      direct,
		torrent:     torrent,
		uploader:    up,
		telemetry:   tel,
		storagePath: storagePath,
	}
}

// Process runs a single attempt of the job. It marks DOWNLOADING, UPLOADING
// and COMPLETED itself; FAILED is the caller's decision so that the dispatch
// layer can re-invoke retryable attempts without burning the terminal state.
func (o *Orchestrator) Process(ctx context.Context, task Task) error {
	logger := logctx.LoggerFromContext(ctx).With("job_id", task.ID)
	ctx = logctx.WithLogger(ctx, logger)

	workDir := filepath.Join(o.storagePath, task.ID)
	if err := os.MkdirAll(workDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove work dir", "dir", workDir, "err", err)
		}
	}()

	kind := transfer.Classify(task.URL)
	if kind == transfer.LinkUnknown {
		return &transfer.ClassificationError{URL: task.URL}
	}

	logger.Info("starting transfer", "kind", string(kind), "url", task.URL)

	if err := o.tracker.Downloading(ctx, task.ID); err != nil {
		return err
	}

	var (
		res *transfer.Result
		err error
	)

	switch kind {
	case transfer.LinkDirect:
		res, err = o.direct.Fetch(ctx, task.ID, task.URL, task.Filename, workDir)
	default:
		res, err = o.torrent.Fetch(ctx, task.ID, task.URL, workDir, kind)
	}

	if err != nil {
		return err
	}

	localPath, uploadName, err := archive.Build(workDir, res.Files, o.uploadBase(task, res))
	if err != nil {
		return err
	}

	if err := o.tracker.Uploading(ctx, task.ID); err != nil {
		return err
	}

	if err := o.uploader.Upload(ctx, localPath, uploadName); err != nil {
		return err
	}

	if info, statErr := os.Stat(localPath); statErr == nil {
		o.telemetry.RecordUpload(ctx, info.Size())
	}

	if err := o.tracker.Complete(ctx, task.ID); err != nil {
		return err
	}

	logger.Info("job completed", "upload_name", uploadName)

	return nil
}

// uploadBase resolves the artifact base name: explicit rename first, then
// the strategy-derived display name, then the single file's own name, then
// a stub built from the job id.
func (o *Orchestrator) uploadBase(task Task, res *transfer.Result) string {
	switch {
	case task.Renamed && task.Filename != "":
		return transfer.SanitizeFilename(task.Filename)
	case res.DisplayName != "":
		return transfer.SanitizeFilename(res.DisplayName)
	case len(res.Files) == 1:
		return transfer.SanitizeFilename(filepath.Base(res.Files[0]))
	default:
		return FallbackName(task.ID)
	}
}

// FallbackName builds a name from a short prefix of the job id.
func FallbackName(jobID string) string {
	if len(jobID) > 8 {
		jobID = jobID[:8]
	}

	return "download_" + jobID
}
