package storage

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/transloader/internal/job"
)

const (
	// RecordTTL is how long a job record survives after its last write.
	RecordTTL = 24 * time.Hour

	// RecentIDsCap bounds the newest-first recent-ids index.
	RecentIDsCap = 100
)

// ErrNotFound is returned when a job record does not exist or has expired.
var ErrNotFound = errors.New("job not found")

// Ledger is the single source of truth for job state. Put is a full-record
// replace that refreshes the TTL; there is no partial update. The recent-ids
// index is best-effort: readers must tolerate ids whose record has expired.
type Ledger interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	Put(ctx context.Context, id string, j *job.Job) error
	Remove(ctx context.Context, id string) error
	PushRecent(ctx context.Context, id string) error
	DropRecent(ctx context.Context, id string) error
	RecentIDs(ctx context.Context, limit int) ([]string, error)
}
