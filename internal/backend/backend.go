// Package backend defines the Queue/ErrorQueue contract the dispatcher
// drives, plus Redis-backed implementations.
package backend

import (
	"context"
	"time"

	"github.com/thieman/deferrable/internal/item"
)

// Capabilities describes the behavioral guarantees a Queue advertises.
type Capabilities struct {
	FIFO                  bool
	SupportsDelay         bool
	ReclaimsToBackOfQueue bool
}

// Stats reports the size of a queue's three logical partitions.
type Stats struct {
	Available int64
	InFlight  int64
	Delayed   int64
}

// Envelope is the backend-specific handle wrapping an item while in
// flight, required by Complete and Touch. Callers treat it as opaque.
type Envelope struct {
	raw     string
	procKey string
	hbKey   string
	errorID string
}

// Queue is the primary, delay-capable work queue.
type Queue interface {
	Push(ctx context.Context, it *item.Item) error
	PushBatch(ctx context.Context, items []*item.Item) ([]bool, error)
	// Pop blocks up to waitTime waiting for an item. A nil envelope with a
	// nil error means the wait elapsed with nothing available.
	Pop(ctx context.Context, waitTime time.Duration) (*Envelope, *item.Item, error)
	PopBatch(ctx context.Context, n int) ([]*Envelope, []*item.Item, error)
	Touch(ctx context.Context, env *Envelope, ttl time.Duration) error
	Complete(ctx context.Context, env *Envelope) error
	CompleteBatch(ctx context.Context, envs []*Envelope) error
	Flush(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Capabilities() Capabilities
}

// ErrorQueue is the unordered store of items that exhausted retries or
// failed fatally. Pop is non-destructive; only Complete removes an entry.
type ErrorQueue interface {
	Push(ctx context.Context, it *item.Item) error
	PushBatch(ctx context.Context, items []*item.Item) ([]bool, error)
	Pop(ctx context.Context) (*Envelope, *item.Item, error)
	PopBatch(ctx context.Context, n int) ([]*Envelope, []*item.Item, error)
	Touch(ctx context.Context, env *Envelope, ttl time.Duration) error
	Complete(ctx context.Context, env *Envelope) error
	CompleteBatch(ctx context.Context, envs []*Envelope) error
	Flush(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	Capabilities() Capabilities
	// List returns every entry currently held, keyed by error.id. Intended
	// for admin browsing, not the hot path.
	List(ctx context.Context) (map[string]*item.Item, error)
	// GetByID returns a single entry by error.id, or nil if absent.
	GetByID(ctx context.Context, id string) (*item.Item, error)
	// DeleteByID removes a single entry by error.id.
	DeleteByID(ctx context.Context, id string) error
}

// Backend bundles a group label with its primary Queue and ErrorQueue.
type Backend struct {
	Group      string
	Queue      Queue
	ErrorQueue ErrorQueue
}

// QueueName computes the Redis key root for group: "deferrable" for the
// empty group, "deferrable:<group>" otherwise.
func QueueName(group string) string {
	if group == "" {
		return "deferrable"
	}
	return "deferrable:" + group
}
