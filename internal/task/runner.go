package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// HandlerFunc executes one task type. The returned map becomes the
// task's result payload on success.
type HandlerFunc func(ctx context.Context, t *Task) (map[string]any, error)

const (
	maxAttempts  = 3
	retryDelay   = 2 * time.Second
	fetchTimeout = 5 * time.Second
)

// taskQueue is the slice of Queue the runner depends on; tests
// substitute an in-memory implementation.
type taskQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	Requeue(ctx context.Context, t *Task) error
	SetStatus(ctx context.Context, id, status string, result map[string]any, errMsg string) error
	Revoked(ctx context.Context, id string) (bool, error)
	subscribeRevocations(ctx context.Context, fn func(id string))
}

// Runner pulls tasks off the queue and executes them on a bounded
// goroutine pool. Each task gets its own cancellable context so a
// revocation can stop it mid-flight.
type Runner struct {
	queue      taskQueue
	pool       *ants.Pool
	handlers   map[string]HandlerFunc
	retryDelay time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewRunner(queue *Queue, concurrency int) (*Runner, error) {
	pool, err := ants.NewPool(concurrency, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Runner{
		queue:      queue,
		pool:       pool,
		handlers:   make(map[string]HandlerFunc),
		retryDelay: retryDelay,
		running:    make(map[string]context.CancelFunc),
	}, nil
}

// Register binds a handler to a task type. Must be called before Start.
func (r *Runner) Register(taskType string, h HandlerFunc) {
	r.handlers[taskType] = h
}

// Start runs the fetch loop until ctx is cancelled, then drains the
// pool. Tasks already running are given until their handlers observe
// cancellation.
func (r *Runner) Start(ctx context.Context) error {
	go r.queue.subscribeRevocations(ctx, r.cancelRunning)

	slog.Info("task runner started", "concurrency", r.pool.Cap())
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			r.pool.Release()
			slog.Info("task runner stopped")
			return nil
		default:
		}

		t, err := r.queue.Dequeue(ctx, fetchTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("failed to fetch task", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if t == nil {
			continue
		}

		wg.Add(1)
		task := t
		if err := r.pool.Submit(func() {
			defer wg.Done()
			r.execute(ctx, task)
		}); err != nil {
			wg.Done()
			slog.Error("failed to submit task to pool", "task_id", task.ID, "error", err)
			if rqErr := r.queue.Requeue(ctx, task); rqErr != nil {
				slog.Error("failed to requeue task", "task_id", task.ID, "error", rqErr)
			}
		}
	}
}

func (r *Runner) execute(ctx context.Context, t *Task) {
	log := slog.With("task_id", t.ID, "task_type", t.Type, "attempt", t.Attempt+1)

	revoked, err := r.queue.Revoked(ctx, t.ID)
	if err != nil {
		log.Error("failed to check revocation", "error", err)
	}
	if revoked {
		log.Info("task revoked before start")
		r.setStatus(ctx, t.ID, StatusRevoked, nil, "")
		return
	}

	handler, ok := r.handlers[t.Type]
	if !ok {
		log.Error("no handler registered for task type")
		r.setStatus(ctx, t.ID, StatusFailure, nil, fmt.Sprintf("unknown task type %q", t.Type))
		return
	}

	r.setStatus(ctx, t.ID, StatusStarted, nil, "")

	taskCtx, cancel := context.WithCancel(ctx)
	r.track(t.ID, cancel)
	defer r.untrack(t.ID)
	defer cancel()

	start := time.Now()
	result, err := handler(taskCtx, t)
	if err == nil {
		log.Info("task succeeded", "duration", time.Since(start))
		r.setStatus(ctx, t.ID, StatusSuccess, result, "")
		return
	}

	if errors.Is(err, context.Canceled) && taskCtx.Err() != nil && ctx.Err() == nil {
		log.Info("task revoked mid-flight")
		r.setStatus(ctx, t.ID, StatusRevoked, nil, "")
		return
	}

	t.Attempt++
	if t.Attempt < maxAttempts {
		log.Warn("task failed, requeueing", "error", err)
		// Back to PENDING while it waits, so pollers can tell a queued
		// retry from a run in progress. The last error stays visible.
		r.setStatus(ctx, t.ID, StatusPending, nil, err.Error())
		time.Sleep(r.retryDelay)
		if rqErr := r.queue.Requeue(ctx, t); rqErr != nil {
			log.Error("failed to requeue task", "error", rqErr)
			r.setStatus(ctx, t.ID, StatusFailure, nil, err.Error())
		}
		return
	}

	log.Error("task failed permanently", "error", err)
	r.setStatus(ctx, t.ID, StatusFailure, nil, err.Error())
}

func (r *Runner) setStatus(ctx context.Context, id, status string, result map[string]any, errMsg string) {
	if err := r.queue.SetStatus(ctx, id, status, result, errMsg); err != nil {
		slog.Error("failed to update task status", "task_id", id, "status", status, "error", err)
	}
}

func (r *Runner) track(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[id] = cancel
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, id)
}

func (r *Runner) cancelRunning(id string) {
	r.mu.Lock()
	cancel, ok := r.running[id]
	r.mu.Unlock()
	if ok {
		slog.Info("cancelling running task", "task_id", id)
		cancel()
	}
}
