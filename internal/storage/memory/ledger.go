package memory

import (
	"context"
	"sync"
	"time"

	"github.com/italolelis/transloader/internal/job"
	"github.com/italolelis/transloader/internal/storage"
)

type entry struct {
	record    job.Job
	expiresAt time.Time
}

// Ledger is an in-process implementation of storage.Ledger with the same
// TTL and recent-ids semantics as the Redis driver. It backs tests and runs
// without external services.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]entry
	recent  []string
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for expiry tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Ledger) Get(_ context.Context, id string) (*job.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok || l.now().After(e.expiresAt) {
		delete(l.entries, id)

		return nil, storage.ErrNotFound
	}

	record := e.record

	return &record, nil
}

func (l *Ledger) Put(_ context.Context, id string, j *job.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[id] = entry{record: *j, expiresAt: l.now().Add(storage.RecordTTL)}

	return nil
}

func (l *Ledger) Remove(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, id)

	return nil
}

func (l *Ledger) PushRecent(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = append([]string{id}, l.recent...)
	if len(l.recent) > storage.RecentIDsCap {
		l.recent = l.recent[:storage.RecentIDsCap]
	}

	return nil
}

func (l *Ledger) DropRecent(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.recent[:0]
	for _, rid := range l.recent {
		if rid != id {
			kept = append(kept, rid)
		}
	}
	l.recent = kept

	return nil
}

func (l *Ledger) RecentIDs(_ context.Context, limit int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.recent) {
		limit = len(l.recent)
	}

	ids := make([]string, limit)
	copy(ids, l.recent[:limit])

	return ids, nil
}
