package transfer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/italolelis/transloader/internal/engine"
	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/storage"
)

type pollConfig struct {
	interval  time.Duration
	withPeers bool
}

// pollDownload blocks on the job's own execution unit, re-checking the
// engine at a fixed interval until the handle completes or fails. Failure
// and completion are re-checked on every tick; progress is never assumed
// monotonic. Cancellation is observed between ticks and forwarded to the
// engine as a remove.
func pollDownload(ctx context.Context, ec engine.Client, tracker *storage.Tracker, jobID, handle string, cfg pollConfig) error {
	logger := logctx.LoggerFromContext(ctx).With("job_id", jobID, "handle", handle)

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := ec.Remove(removeCtx, handle); err != nil {
				logger.Warn("failed to remove download from engine", "err", err)
			}

			return ctx.Err()
		case <-ticker.C:
			st, err := ec.TellStatus(ctx, handle)
			if err != nil {
				return fmt.Errorf("failed to poll download: %w", err)
			}

			if st.Failed {
				reason := st.ErrorMessage
				if reason == "" {
					reason = "download failed"
				}

				return &TransferError{Stage: "download", Reason: reason}
			}

			if st.Completed {
				return nil
			}

			if st.TotalBytes > 0 {
				pct := math.Round(float64(st.CompletedBytes)/float64(st.TotalBytes)*100*100) / 100

				rate := FormatRate(st.SpeedBytes)
				if cfg.withPeers {
					rate = fmt.Sprintf("%s (%d peers)", rate, st.Connections)
				}

				eta := "calculating..."
				if st.SpeedBytes > 0 {
					eta = FormatETA((st.TotalBytes - st.CompletedBytes) / st.SpeedBytes)
				}

				logger.Debug("download progress", "progress", pct, "rate", rate, "eta", eta, "seeders", st.Seeders)

				if err := tracker.Progress(ctx, jobID, pct, rate, eta); err != nil {
					logger.Warn("failed to record progress", "err", err)
				}
			}
		}
	}
}
