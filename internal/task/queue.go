package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskFinished = errors.New("task already finished")
)

const (
	statusKeyPrefix  = "doclane:task:"
	revokedKeyPrefix = "doclane:task:revoked:"
	revokeChannel    = "doclane:task:revoke"
)

// Queue is the redis-backed task queue. Tasks travel as JSON on a
// list; status records live under their own keys with a TTL so
// finished tasks age out instead of accumulating.
type Queue struct {
	client    *redis.Client
	queueKey  string
	statusTTL time.Duration
}

func NewQueue(client *redis.Client, queueKey string, statusTTL time.Duration) *Queue {
	return &Queue{client: client, queueKey: queueKey, statusTTL: statusTTL}
}

// Enqueue assigns the task an id if it has none, records a PENDING
// status, and pushes it onto the queue. The returned id is what
// callers poll with.
func (q *Queue) Enqueue(ctx context.Context, t *Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.EnqueuedAt = time.Now().UTC()

	if err := q.SetStatus(ctx, t.ID, StatusPending, nil, ""); err != nil {
		return "", err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey, payload).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return t.ID, nil
}

// Dequeue blocks up to timeout for the next task. A nil task with a
// nil error means the timeout elapsed with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	vals, err := q.client.BRPop(ctx, timeout, q.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	var t Task
	if err := json.Unmarshal([]byte(vals[1]), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return &t, nil
}

// Requeue pushes an already-dequeued task back for another attempt.
// The attempt counter has already been advanced by the runner.
func (q *Queue) Requeue(ctx context.Context, t *Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to requeue task: %w", err)
	}
	return nil
}

// SetStatus writes the status record for a task, refreshing its TTL.
func (q *Queue) SetStatus(ctx context.Context, id, status string, result map[string]any, errMsg string) error {
	rec := Status{
		TaskID:    id,
		Status:    status,
		Result:    result,
		Error:     errMsg,
		UpdatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal task status: %w", err)
	}
	if err := q.client.Set(ctx, statusKeyPrefix+id, payload, q.statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to store task status: %w", err)
	}
	return nil
}

// Status returns the current status record for a task id.
func (q *Queue) Status(ctx context.Context, id string) (*Status, error) {
	raw, err := q.client.Get(ctx, statusKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task status: %w", err)
	}

	var rec Status
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task status: %w", err)
	}
	return &rec, nil
}

// Revoke marks a task so it will not start, and notifies workers so a
// mid-flight run is cancelled. The status key is watched so a task
// finishing concurrently cannot have its SUCCESS/FAILURE record
// overwritten; in that case ErrTaskFinished is returned. Revoking an
// unknown task is not an error; the flag simply has no one to stop.
func (q *Queue) Revoke(ctx context.Context, id string) error {
	statusKey := statusKeyPrefix + id

	revoke := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, statusKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to load task status: %w", err)
		}
		if err == nil {
			var rec Status
			if jsonErr := json.Unmarshal([]byte(raw), &rec); jsonErr == nil && IsTerminal(rec.Status) {
				return ErrTaskFinished
			}
		}

		payload, err := json.Marshal(Status{
			TaskID:    id,
			Status:    StatusRevoked,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal task status: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, revokedKeyPrefix+id, "1", q.statusTTL)
			pipe.Set(ctx, statusKey, payload, q.statusTTL)
			pipe.Publish(ctx, revokeChannel, id)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := q.client.Watch(ctx, revoke, statusKey)
		if errors.Is(err, redis.TxFailedErr) {
			// Status changed underneath us; re-read and retry.
			continue
		}
		if errors.Is(err, ErrTaskFinished) {
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to revoke task: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to revoke task %s: status kept changing", id)
}

// Revoked reports whether a task has been revoked.
func (q *Queue) Revoked(ctx context.Context, id string) (bool, error) {
	n, err := q.client.Exists(ctx, revokedKeyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoke flag: %w", err)
	}
	return n > 0, nil
}

// subscribeRevocations hands each revoked task id to fn until ctx ends.
func (q *Queue) subscribeRevocations(ctx context.Context, fn func(id string)) {
	sub := q.client.Subscribe(ctx, revokeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fn(msg.Payload)
		}
	}
}
