package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingKey   = "scrape:pending"
	jobKeyPrefix = "scrape:job:"
	outKeyPrefix = "scrape:out:"

	// jobTTL caps how long an orphaned job payload can linger if a
	// crash prevents Release from running.
	jobTTL = 2 * time.Hour
)

func jobKey(id string) string { return jobKeyPrefix + id }
func outKey(id string) string { return outKeyPrefix + id }

// Redis implements Client on top of a Redis instance shared with the
// scrape workers. Pending tasks live in a sorted set scored by
// priority; workers ZPOPMIN the set, scrape, and LPUSH the outcome
// onto a per-task list.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a queue client from an existing Redis connection.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Ping reports queue connectivity, used by the health endpoint.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Admit stores the task payload and adds its id to the pending set.
func (r *Redis) Admit(ctx context.Context, task Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: marshal task: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(task.ID), payload, jobTTL)
	pipe.ZAdd(ctx, pendingKey, redis.Z{Score: float64(task.Priority), Member: task.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Await blocks on the task's outcome list for up to timeout.
func (r *Redis) Await(ctx context.Context, id string, timeout time.Duration) Outcome {
	vals, err := r.rdb.BLPop(ctx, timeout, outKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return Outcome{State: StateTimedOut}
		}
		return Outcome{State: StateFailed, Err: err.Error()}
	}
	// BLPop returns [key, value].
	if len(vals) < 2 {
		return Outcome{State: StateFailed, Err: "queue: malformed BLPOP reply"}
	}
	return decodeOutcome([]byte(vals[1]))
}

// Release removes all queue entries for the task. Errors are logged
// only; redundant calls and races with worker removal are expected.
func (r *Redis) Release(ctx context.Context, id string) {
	pipe := r.rdb.TxPipeline()
	pipe.ZRem(ctx, pendingKey, id)
	pipe.Del(ctx, jobKey(id), outKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("queue release failed", "task_id", id, "error", err)
	}
}

// decodeOutcome parses a worker-produced outcome payload. Garbage is
// treated as a failed task, never a request failure.
func decodeOutcome(payload []byte) Outcome {
	var out Outcome
	if err := json.Unmarshal(payload, &out); err != nil {
		return Outcome{State: StateFailed, Err: "queue: undecodable outcome: " + err.Error()}
	}
	switch out.State {
	case StateCompleted, StateTimedOut, StateFailed:
		return out
	default:
		return Outcome{State: StateFailed, Err: fmt.Sprintf("queue: unknown outcome state %q", out.State)}
	}
}
