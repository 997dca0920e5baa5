package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/storage"
)

// RemoveOrphanedWorkDirs deletes job work dirs left behind by crashed runs.
// The orchestrator removes its own dir on every exit path; this janitor only
// reclaims dirs older than keepFor whose job is gone from the ledger or has
// already reached a terminal status.
func RemoveOrphanedWorkDirs(ctx context.Context, ledger storage.Ledger, root string, keepFor time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	now := time.Now()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) < keepFor {
			continue
		}

		jobID := entry.Name()

		j, err := ledger.Get(ctx, jobID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		if j != nil && !j.Status.IsTerminal() {
			continue
		}

		dir := filepath.Join(root, jobID)
		if err := os.RemoveAll(dir); err != nil {
			logger.Error("failed to delete orphaned work dir", "dir", dir, "err", err)

			return err
		}

		logger.Info("deleted orphaned work dir", "dir", dir)
	}

	return nil
}
