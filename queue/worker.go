package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/mailkb/core"
	"github.com/poiesic/mailkb/ingestion"
	"github.com/poiesic/mailkb/storage"
)

const (
	DefaultMaxAttempts = 5
	DefaultPollTimeout = 5 * time.Second
	DefaultBackoff     = 2 * time.Second
)

// WorkerActor is recorded in the audit log for retries the worker runs.
var WorkerActor = core.Actor{ID: "retry-worker", Name: "Index retry worker"}

// Reindexer re-runs indexing for an approved email.
// *ingestion.Pipeline satisfies it.
type Reindexer interface {
	Reindex(ctx context.Context, actor core.Actor, emailID string) (*ingestion.Decision, error)
}

type taskQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	Requeue(ctx context.Context, task *Task) error
	Len(ctx context.Context) (int64, error)
}

// Outcome is what the worker did with one task.
type Outcome string

const (
	OutcomeIndexed  Outcome = "indexed"
	OutcomeRequeued Outcome = "requeued"
	// OutcomeDropped covers emails that were deleted or are no longer
	// approved, tasks that ran out of attempts, and undecodable tasks.
	OutcomeDropped Outcome = "dropped"
)

// Stats counts task outcomes.
type Stats struct {
	Indexed  int
	Requeued int
	Dropped  int
}

func (s *Stats) add(o Outcome) {
	switch o {
	case OutcomeIndexed:
		s.Indexed++
	case OutcomeRequeued:
		s.Requeued++
	case OutcomeDropped:
		s.Dropped++
	}
}

// Worker drains a RetryQueue into a Reindexer.
type Worker struct {
	queue       taskQueue
	reindexer   Reindexer
	maxAttempts int
	pollTimeout time.Duration
	backoff     time.Duration
	logger      *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker) error

// WithMaxAttempts sets how many times an email is tried before it is dropped.
func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) error {
		if n < 1 {
			return ErrInvalidMaxAttempts
		}
		w.maxAttempts = n
		return nil
	}
}

// WithPollTimeout sets how long Run blocks waiting for a task.
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) error {
		w.pollTimeout = d
		return nil
	}
}

// WithBackoff sets the pause after a task is requeued.
func WithBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) error {
		w.backoff = d
		return nil
	}
}

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger.With("component", "retry-worker")
		return nil
	}
}

// NewWorker creates a worker for queue.
func NewWorker(queue *RetryQueue, reindexer Reindexer, opts ...WorkerOption) (*Worker, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	return newWorker(queue, reindexer, opts...)
}

func newWorker(queue taskQueue, reindexer Reindexer, opts ...WorkerOption) (*Worker, error) {
	if reindexer == nil {
		return nil, ErrReindexerRequired
	}
	w := &Worker{
		queue:       queue,
		reindexer:   reindexer,
		maxAttempts: DefaultMaxAttempts,
		pollTimeout: DefaultPollTimeout,
		backoff:     DefaultBackoff,
		logger:      slog.Default().With("component", "retry-worker"),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Run processes tasks until ctx is canceled. It returns nil on cancellation.
// Undecodable tasks are dropped; any other queue error stops the loop.
func (w *Worker) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	for {
		task, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if ctx.Err() != nil {
			return stats, nil
		}
		if errors.Is(err, ErrMalformedTask) {
			w.dropMalformed(&stats, err)
			continue
		}
		if err != nil {
			return stats, err
		}
		if task == nil {
			continue
		}

		outcome := w.Process(ctx, task)
		stats.add(outcome)
		if outcome == OutcomeRequeued && !sleep(ctx, w.backoff) {
			return stats, nil
		}
	}
}

// Drain processes the tasks queued when it starts, then returns. Tasks
// requeued during the pass are left for the next one.
func (w *Worker) Drain(ctx context.Context) (Stats, error) {
	var stats Stats
	n, err := w.queue.Len(ctx)
	if err != nil {
		return stats, err
	}
	for i := int64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		task, err := w.queue.Dequeue(ctx, time.Second)
		if errors.Is(err, ErrMalformedTask) {
			w.dropMalformed(&stats, err)
			continue
		}
		if err != nil {
			return stats, err
		}
		if task == nil {
			break
		}
		stats.add(w.Process(ctx, task))
	}
	return stats, nil
}

// Process retries one task.
func (w *Worker) Process(ctx context.Context, task *Task) Outcome {
	logger := w.logger.With("email_id", task.EmailID, "attempt", task.Attempt)

	decision, err := w.reindexer.Reindex(ctx, WorkerActor, task.EmailID)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ingestion.ErrNotApproved):
		logger.Info("dropping index retry", "reason", err)
		return OutcomeDropped
	case err != nil:
		return w.retryOrDrop(ctx, logger, task, err)
	case decision.Index == core.IndexFailed:
		return w.retryOrDrop(ctx, logger, task, decision.IndexErr)
	case decision.Index == core.IndexSkipped:
		logger.Info("dropping index retry", "reason", "email no longer approved")
		return OutcomeDropped
	}

	logger.Info("index retry succeeded", "status", decision.Index)
	return OutcomeIndexed
}

func (w *Worker) dropMalformed(stats *Stats, err error) {
	w.logger.Error("dropping undecodable retry task", "err", err)
	stats.add(OutcomeDropped)
}

func (w *Worker) retryOrDrop(ctx context.Context, logger *slog.Logger, task *Task, cause error) Outcome {
	if task.Attempt >= w.maxAttempts {
		logger.Error("giving up on index retry", "max_attempts", w.maxAttempts, "err", cause)
		return OutcomeDropped
	}
	if err := w.queue.Requeue(ctx, task); err != nil {
		logger.Error("failed to requeue index retry", "err", err, "cause", cause)
		return OutcomeDropped
	}
	logger.Warn("index retry failed, requeued", "err", cause)
	return OutcomeRequeued
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
