// Package queue is the client side of the shared scrape job queue.
// Workers executing the scrapes live in a separate process; this
// package only admits tasks, waits for their outcomes and removes
// finished entries.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/prospect/models"
)

// ErrQueueUnavailable means the underlying queue cannot accept work.
// Fatal for the request; the API layer surfaces it as a 500.
var ErrQueueUnavailable = errors.New("queue: unavailable")

// Task is one scrape job. The ID is minted at admission time and is
// never reused for another task for the lifetime of the queue.
type Task struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	TenantID string   `json:"tenant_id"`
	Priority int      `json:"priority"`
	Origin   string   `json:"origin"`
	Formats  []string `json:"formats"`
	Timeout  int      `json:"timeout"` // seconds, enforced by the worker
}

// State is the terminal state of a task.
type State string

const (
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
)

// Outcome is the terminal result of one task.
type Outcome struct {
	State    State            `json:"state"`
	Document *models.Document `json:"document,omitempty"`
	Err      string           `json:"error,omitempty"`
}

// Client is the admission/wait/remove contract against the shared
// queue. The queue is externally synchronized; other processes may race
// to claim or remove the same task ids, so Release is idempotent and
// safe to call redundantly.
type Client interface {
	// Admit enqueues the task at its priority (lower dequeues sooner).
	// Returns ErrQueueUnavailable if the queue cannot accept it.
	Admit(ctx context.Context, task Task) error

	// Await blocks until the task reaches a terminal outcome or the
	// timeout elapses, measured from the moment of the call. A timeout
	// yields Outcome{State: StateTimedOut}, never an error.
	Await(ctx context.Context, id string, timeout time.Duration) Outcome

	// Release removes the task's queue entries. Idempotent; safe even
	// if the task completed, timed out, or was never fully admitted.
	Release(ctx context.Context, id string)
}
