package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/italolelis/transloader/internal/job"
	"github.com/italolelis/transloader/internal/storage"
	"github.com/italolelis/transloader/internal/storage/memory"
	"github.com/italolelis/transloader/internal/transfer"
	"github.com/italolelis/transloader/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) Notify(msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)

	return nil
}

func (n *captureNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.messages) == 0 {
		return ""
	}

	return n.messages[len(n.messages)-1]
}

func waitForStatus(t *testing.T, ledger *memory.Ledger, id string, want job.Status) *job.Job {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := ledger.Get(context.Background(), id)
		if err == nil && rec.Status == want {
			return rec
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("job %s never reached status %s", id, want)

	return nil
}

func startPool(t *testing.T, p *worker.Pool) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = p.Start(ctx, 1)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return cancel
}

func TestPool_RetriesNetworkErrors(t *testing.T) {
	root := t.TempDir()
	ledger := memory.NewLedger()
	seedPending(t, ledger, "r1", "file.bin")

	var attempts atomic.Int32

	direct := &stubDirect{fn: func(_ context.Context, _, _, filename, dir string) (*transfer.Result, error) {
		if attempts.Add(1) < 3 {
			return nil, &transfer.NetworkError{Operation: "streamed_download", Err: errors.New("connection reset")}
		}

		target := filepath.Join(dir, filename)
		if err := os.WriteFile(target, []byte("payload"), 0o644); err != nil {
			return nil, err
		}

		return &transfer.Result{Files: []string{target}}, nil
	}}

	tracker := storage.NewTracker(ledger)
	o := worker.NewOrchestrator(tracker, direct, &stubTorrent{}, &captureUploader{}, nil, root)

	notif := &captureNotifier{}
	p := worker.NewPool(o, tracker, noTelemetry(), notif, 3, 10)
	startPool(t, p)

	require.NoError(t, p.Submit(worker.Task{ID: "r1", URL: "https://example.com/file.bin", Filename: "file.bin"}))

	waitForStatus(t, ledger, "r1", job.StatusCompleted)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Contains(t, notif.last(), "Transfer finished")
}

func TestPool_NonRetryableFailsImmediately(t *testing.T) {
	root := t.TempDir()
	ledger := memory.NewLedger()
	seedPending(t, ledger, "r2", "file.bin")

	var attempts atomic.Int32

	direct := &stubDirect{fn: func(_ context.Context, _, _, _, _ string) (*transfer.Result, error) {
		attempts.Add(1)

		return nil, &transfer.TransferError{Stage: "download", Reason: "disk full"}
	}}

	tracker := storage.NewTracker(ledger)
	o := worker.NewOrchestrator(tracker, direct, &stubTorrent{}, &captureUploader{}, nil, root)

	notif := &captureNotifier{}
	p := worker.NewPool(o, tracker, noTelemetry(), notif, 3, 10)
	startPool(t, p)

	require.NoError(t, p.Submit(worker.Task{ID: "r2", URL: "https://example.com/file.bin", Filename: "file.bin"}))

	rec := waitForStatus(t, ledger, "r2", job.StatusFailed)
	assert.Equal(t, int32(1), attempts.Load())
	require.NotNil(t, rec.Error)
	assert.Equal(t, "disk full", *rec.Error)
	assert.Contains(t, notif.last(), "Transfer failed")
}

func TestPool_RetriesExhausted(t *testing.T) {
	root := t.TempDir()
	ledger := memory.NewLedger()
	seedPending(t, ledger, "r3", "file.bin")

	var attempts atomic.Int32

	direct := &stubDirect{fn: func(_ context.Context, _, _, _, _ string) (*transfer.Result, error) {
		attempts.Add(1)

		return nil, &transfer.NetworkError{Operation: "streamed_download", Err: errors.New("timeout")}
	}}

	tracker := storage.NewTracker(ledger)
	o := worker.NewOrchestrator(tracker, direct, &stubTorrent{}, &captureUploader{}, nil, root)

	p := worker.NewPool(o, tracker, noTelemetry(), nil, 2, 10)
	startPool(t, p)

	require.NoError(t, p.Submit(worker.Task{ID: "r3", URL: "https://example.com/file.bin", Filename: "file.bin"}))

	waitForStatus(t, ledger, "r3", job.StatusFailed)
	assert.Equal(t, int32(3), attempts.Load(), "initial attempt plus two retries")
}

func TestPool_CancelMarksCancelled(t *testing.T) {
	root := t.TempDir()
	ledger := memory.NewLedger()
	seedPending(t, ledger, "c1", "file.bin")

	entered := make(chan struct{})

	direct := &stubDirect{fn: func(ctx context.Context, _, _, _, _ string) (*transfer.Result, error) {
		close(entered)
		<-ctx.Done()

		return nil, ctx.Err()
	}}

	tracker := storage.NewTracker(ledger)
	o := worker.NewOrchestrator(tracker, direct, &stubTorrent{}, &captureUploader{}, nil, root)

	p := worker.NewPool(o, tracker, noTelemetry(), nil, 3, 10)
	startPool(t, p)

	require.NoError(t, p.Submit(worker.Task{ID: "c1", URL: "https://example.com/file.bin", Filename: "file.bin"}))

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("worker never picked up the job")
	}

	assert.True(t, p.Cancel("c1"))

	rec := waitForStatus(t, ledger, "c1", job.StatusFailed)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "cancelled", *rec.Error)
}

func TestPool_CancelUnknownJob(t *testing.T) {
	p := worker.NewPool(nil, nil, noTelemetry(), nil, 0, 1)
	assert.False(t, p.Cancel("nope"))
}

func TestPool_SubmitQueueFull(t *testing.T) {
	p := worker.NewPool(nil, nil, noTelemetry(), nil, 0, 1)

	require.NoError(t, p.Submit(worker.Task{ID: "a"}))
	assert.ErrorIs(t, p.Submit(worker.Task{ID: "b"}), worker.ErrQueueFull)
}
