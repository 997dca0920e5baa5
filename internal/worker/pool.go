package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/notifier"
	"github.com/italolelis/transloader/internal/storage"
	"github.com/italolelis/transloader/internal/telemetry"
	"github.com/italolelis/transloader/internal/transfer"
	"golang.org/x/sync/errgroup"
)

// ErrQueueFull is returned when a submission cannot be accepted right now.
var ErrQueueFull = errors.New("job queue is full")

// Pool runs jobs on a bounded set of workers. Each job is processed end to
// end by exactly one worker; the pool is the only concurrency control. It
// also keeps the cancellation registry: deleting an active job cancels its
// context, which the strategy observes at the next poll tick.
type Pool struct {
	orchestrator *Orchestrator
	tracker      *storage.Tracker
	telemetry    *telemetry.Telemetry
	notif        notifier.Notifier
	maxRetries   int

	tasks chan Task

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewPool(o *Orchestrator, tracker *storage.Tracker, tel *telemetry.Telemetry, notif notifier.Notifier, maxRetries, queueSize int) *Pool {
	return &Pool{
		orchestrator: o,
		tracker:      tracker,
		telemetry:    tel,
		notif:        notif,
		maxRetries:   maxRetries,
		tasks:        make(chan Task, queueSize),
		active:       make(map[string]context.CancelFunc),
	}
}

// Start launches the workers and blocks until the context is cancelled and
// all in-flight jobs have drained.
func (p *Pool) Start(ctx context.Context, workers int) error {
	logger := logctx.LoggerFromContext(ctx)
	logger.Info("starting worker pool", "workers", workers)

	wg, ctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		wg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case task := <-p.tasks:
					p.runTask(ctx, task)
				}
			}
		})
	}

	return wg.Wait()
}

// Submit enqueues a job for processing without blocking the caller.
func (p *Pool) Submit(task Task) error {
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel terminates the in-flight run for a job id, if any.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancel, ok := p.active[jobID]
	if ok {
		cancel()
	}

	return ok
}

func (p *Pool) runTask(ctx context.Context, task Task) {
	logger := logctx.LoggerFromContext(ctx).With("job_id", task.ID)

	jobCtx, cancel := context.WithCancel(ctx)
	p.register(task.ID, cancel)

	defer func() {
		p.unregister(task.ID)
		cancel()
	}()

	p.telemetry.RecordJobStart(ctx)
	started := time.Now()

	var err error
	for attempt := 0; ; attempt++ {
		err = p.orchestrator.Process(jobCtx, task)
		if err == nil || jobCtx.Err() != nil {
			break
		}

		// Only transport-level failures are worth a whole new run.
		var netErr *transfer.NetworkError
		if !errors.As(err, &netErr) || attempt >= p.maxRetries {
			break
		}

		logger.Warn("retrying job", "attempt", attempt+1, "err", err)
	}

	status := "completed"

	if err != nil {
		status = "failed"
		msg := failureMessage(jobCtx, err)
		logger.Error("job failed", "err", err)

		if trackErr := p.tracker.Fail(ctx, task.ID, msg); trackErr != nil {
			logger.Error("failed to record job failure", "err", trackErr)
		}
	}

	p.telemetry.RecordJobEnd(ctx, status, time.Since(started))
	p.notify(logger, task, err)
}

func (p *Pool) register(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[jobID] = cancel
}

func (p *Pool) unregister(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, jobID)
}

func (p *Pool) notify(logger *slog.Logger, task Task, err error) {
	if p.notif == nil {
		return
	}

	msg := fmt.Sprintf("✅ Transfer finished: %s (%s)", task.Filename, task.ID)
	if err != nil {
		msg = fmt.Sprintf("❌ Transfer failed: %s (%s): %v", task.Filename, task.ID, err)
	}

	if notifyErr := p.notif.Notify(msg); notifyErr != nil {
		logger.Error("failed to send notification", "err", notifyErr)
	}
}

func failureMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "cancelled"
	}

	var transferErr *transfer.TransferError
	if errors.As(err, &transferErr) {
		return transferErr.Reason
	}

	return err.Error()
}
