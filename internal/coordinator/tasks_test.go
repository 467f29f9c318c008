package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testQueue() *TaskQueue {
	q := NewTaskQueue(4, nil)
	q.baseBackoff = time.Millisecond
	return q
}

func TestTaskQueue_CompletesTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := testQueue()
	q.Start(ctx)

	ran := false
	handle := q.Submit("noop", func(ctx context.Context) error {
		ran = true
		return nil
	})

	if err := handle.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("task never ran")
	}
}

func TestTaskQueue_RetriesBeforeFailing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := testQueue()
	q.Start(ctx)

	attempts := 0
	handle := q.Submit("flaky", func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if err := handle.Wait(ctx); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestTaskQueue_ExhaustsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := testQueue()
	q.Start(ctx)

	attempts := 0
	wantErr := errors.New("persistent")
	handle := q.Submit("broken", func(ctx context.Context) error {
		attempts++
		return wantErr
	})

	if err := handle.Wait(ctx); !errors.Is(err, wantErr) {
		t.Fatalf("expected final error, got %v", err)
	}
	if attempts != q.maxAttempts {
		t.Errorf("expected %d attempts, got %d", q.maxAttempts, attempts)
	}
}

func TestTaskQueue_RejectsWhenFull(t *testing.T) {
	// Never started, so the buffer fills and the next submit is
	// rejected instead of blocking.
	q := NewTaskQueue(1, nil)

	q.Submit("queued", func(ctx context.Context) error { return nil })
	handle := q.Submit("rejected", func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := handle.Wait(ctx); err == nil {
		t.Error("expected rejection error from full queue")
	}
}

func TestTaskQueue_SerializesTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := testQueue()
	q.Start(ctx)

	var order []int
	h1 := q.Submit("first", func(ctx context.Context) error {
		order = append(order, 1)
		return nil
	})
	h2 := q.Submit("second", func(ctx context.Context) error {
		order = append(order, 2)
		return nil
	})

	if err := h1.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h2.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("tasks ran out of order: %v", order)
	}
}
