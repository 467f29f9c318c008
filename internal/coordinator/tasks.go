package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TaskQueue serializes background work onto a single worker. The queue
// owns retry policy: a failing task is retried with exponential
// backoff before its handle resolves with the final error.
type TaskQueue struct {
	tasks       chan *task
	maxAttempts int
	baseBackoff time.Duration
	logger      *slog.Logger
}

type task struct {
	name string
	run  func(ctx context.Context) error
	done chan error
}

// TaskHandle lets a submitter await completion of a queued task.
type TaskHandle struct {
	done chan error
}

// Wait blocks until the task finished or the context was cancelled.
func (h *TaskHandle) Wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewTaskQueue creates a queue with the given buffer size.
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskQueue{
		tasks:       make(chan *task, size),
		maxAttempts: 3,
		baseBackoff: 2 * time.Second,
		logger:      logger.With("component", "task_queue"),
	}
}

// Start runs the worker loop until the context is cancelled.
func (q *TaskQueue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				q.drain(ctx.Err())
				return
			case t := <-q.tasks:
				t.done <- q.execute(ctx, t)
			}
		}
	}()
}

// Submit enqueues a task, returning a handle to await its completion.
// A full queue resolves the handle immediately with an error rather
// than blocking the submitter.
func (q *TaskQueue) Submit(name string, run func(ctx context.Context) error) *TaskHandle {
	t := &task{name: name, run: run, done: make(chan error, 1)}
	select {
	case q.tasks <- t:
	default:
		q.logger.Warn("Task queue full, rejecting task", "task", name)
		t.done <- fmt.Errorf("task queue full, %s rejected", name)
	}
	return &TaskHandle{done: t.done}
}

func (q *TaskQueue) execute(ctx context.Context, t *task) error {
	var err error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		err = t.run(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < q.maxAttempts {
			backoff := q.baseBackoff * time.Duration(1<<(attempt-1))
			q.logger.Warn("Task failed, retrying",
				"task", t.name,
				"attempt", attempt,
				"backoff", backoff,
				"error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return err
			}
		}
	}
	q.logger.Error("Task failed after all attempts", "task", t.name, "error", err)
	return err
}

// drain resolves queued handles after shutdown so waiters unblock.
func (q *TaskQueue) drain(cause error) {
	for {
		select {
		case t := <-q.tasks:
			t.done <- fmt.Errorf("task %s cancelled: %w", t.name, cause)
		default:
			return
		}
	}
}
