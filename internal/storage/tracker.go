package storage

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/transloader/internal/job"
)

// Tracker applies status transitions on top of a Ledger. Every mutation is a
// read-modify-write of the job's own record; the single-worker-per-job
// invariant means no other writer touches the same key concurrently.
//
// All methods are no-ops when the record is absent (never created, expired,
// or deleted mid-flight) and when the record already reached a terminal
// status.
type Tracker struct {
	ledger Ledger
}

func NewTracker(ledger Ledger) *Tracker {
	return &Tracker{ledger: ledger}
}

// Downloading marks the job as DOWNLOADING and resets progress to zero.
func (t *Tracker) Downloading(ctx context.Context, id string) error {
	return t.mutate(ctx, id, func(j *job.Job) {
		progress := 0.0
		j.Status = job.StatusDownloading
		j.Progress = &progress
		j.DownloadSpeed = nil
		j.ETA = nil
	})
}

// Progress records a download progress snapshot. Rate and eta may be empty,
// in which case only the percentage is stored.
func (t *Tracker) Progress(ctx context.Context, id string, pct float64, rate, eta string) error {
	return t.mutate(ctx, id, func(j *job.Job) {
		j.Status = job.StatusDownloading
		j.Progress = &pct
		if rate != "" {
			j.DownloadSpeed = &rate
		}
		if eta != "" {
			j.ETA = &eta
		}
	})
}

// Uploading marks the job as UPLOADING. Progress, rate and eta are only
// meaningful while downloading, so they are dropped here.
func (t *Tracker) Uploading(ctx context.Context, id string) error {
	return t.mutate(ctx, id, func(j *job.Job) {
		j.Status = job.StatusUploading
		j.Progress = nil
		j.DownloadSpeed = nil
		j.ETA = nil
	})
}

// Complete marks the job as COMPLETED.
func (t *Tracker) Complete(ctx context.Context, id string) error {
	return t.mutate(ctx, id, func(j *job.Job) {
		j.Status = job.StatusCompleted
	})
}

// Fail marks the job as FAILED with a human-readable message.
func (t *Tracker) Fail(ctx context.Context, id string, msg string) error {
	return t.mutate(ctx, id, func(j *job.Job) {
		j.Status = job.StatusFailed
		if msg != "" {
			j.Error = &msg
		}
	})
}

func (t *Tracker) mutate(ctx context.Context, id string, apply func(*job.Job)) error {
	current, err := t.ledger.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}

		return err
	}

	// COMPLETED and FAILED are final.
	if current.Status.IsTerminal() {
		return nil
	}

	apply(current)

	if current.Status.IsTerminal() {
		current.Progress = nil
		current.DownloadSpeed = nil
		current.ETA = nil

		if current.CompletedAt == nil {
			now := time.Now().UTC()
			current.CompletedAt = &now
		}
	}

	return t.ledger.Put(ctx, id, current)
}
