package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/thieman/deferrable/internal/codec"
	"github.com/thieman/deferrable/internal/item"
)

// RedisErrorQueue is an ErrorQueue backed by a Redis hash mapping
// error.id to a serialized item. Pop is non-destructive (HGETALL-style
// read); only Complete removes an entry (HDEL).
type RedisErrorQueue struct {
	client *redis.Client
	codec  codec.Codec
	key    string
}

// NewRedisErrorQueue returns an ErrorQueue rooted at backend.QueueName(group) + ":errors".
func NewRedisErrorQueue(client *redis.Client, c codec.Codec, group string) *RedisErrorQueue {
	return &RedisErrorQueue{client: client, codec: c, key: QueueName(group) + ":errors"}
}

func (q *RedisErrorQueue) Capabilities() Capabilities {
	return Capabilities{FIFO: false, SupportsDelay: false, ReclaimsToBackOfQueue: false}
}

func (q *RedisErrorQueue) Push(ctx context.Context, it *item.Item) error {
	if it.Error == nil {
		it.Error = &item.ErrorInfo{}
	}
	if it.Error.ID == "" {
		it.Error.ID = uuid.NewString()
	}
	raw, err := q.codec.Encode(it)
	if err != nil {
		return err
	}
	return q.client.HSet(ctx, q.key, it.Error.ID, raw).Err()
}

func (q *RedisErrorQueue) PushBatch(ctx context.Context, items []*item.Item) ([]bool, error) {
	ok := make([]bool, len(items))
	for i, it := range items {
		ok[i] = q.Push(ctx, it) == nil
	}
	return ok, nil
}

// Pop returns the first error item found by hash iteration order without
// removing it. Concurrent poppers may see the same entry; that is the
// accepted tradeoff for never silently dropping an error.
func (q *RedisErrorQueue) Pop(ctx context.Context) (*Envelope, *item.Item, error) {
	all, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, nil, err
	}
	for id, raw := range all {
		it := &item.Item{}
		if err := q.codec.Decode([]byte(raw), it); err != nil {
			return nil, nil, fmt.Errorf("backend: decode error-queue entry %s: %w", id, err)
		}
		return &Envelope{errorID: id}, it, nil
	}
	return nil, nil, nil
}

func (q *RedisErrorQueue) PopBatch(ctx context.Context, n int) ([]*Envelope, []*item.Item, error) {
	all, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, nil, err
	}
	var envs []*Envelope
	var items []*item.Item
	for id, raw := range all {
		if len(envs) >= n {
			break
		}
		it := &item.Item{}
		if err := q.codec.Decode([]byte(raw), it); err != nil {
			return envs, items, fmt.Errorf("backend: decode error-queue entry %s: %w", id, err)
		}
		envs = append(envs, &Envelope{errorID: id})
		items = append(items, it)
	}
	return envs, items, nil
}

// Touch is a no-op: the error queue has no visibility timeout to extend.
func (q *RedisErrorQueue) Touch(ctx context.Context, env *Envelope, ttl time.Duration) error {
	return nil
}

func (q *RedisErrorQueue) Complete(ctx context.Context, env *Envelope) error {
	if env.errorID == "" {
		return fmt.Errorf("backend: error envelope has no id field")
	}
	return q.client.HDel(ctx, q.key, env.errorID).Err()
}

func (q *RedisErrorQueue) CompleteBatch(ctx context.Context, envs []*Envelope) error {
	for _, env := range envs {
		if err := q.Complete(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisErrorQueue) Flush(ctx context.Context) error {
	ids, err := q.client.HKeys(ctx, q.key).Result()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return q.client.HDel(ctx, q.key, ids...).Err()
}

func (q *RedisErrorQueue) Stats(ctx context.Context) (Stats, error) {
	n, err := q.client.HLen(ctx, q.key).Result()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Available: n}, nil
}

// List decodes every entry in the error hash. Errors decoding one entry
// abort the whole call; a corrupt entry should be investigated, not hidden.
func (q *RedisErrorQueue) List(ctx context.Context) (map[string]*item.Item, error) {
	all, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*item.Item, len(all))
	for id, raw := range all {
		it := &item.Item{}
		if err := q.codec.Decode([]byte(raw), it); err != nil {
			return nil, fmt.Errorf("backend: decode error-queue entry %s: %w", id, err)
		}
		out[id] = it
	}
	return out, nil
}

func (q *RedisErrorQueue) GetByID(ctx context.Context, id string) (*item.Item, error) {
	raw, err := q.client.HGet(ctx, q.key, id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it := &item.Item{}
	if err := q.codec.Decode([]byte(raw), it); err != nil {
		return nil, fmt.Errorf("backend: decode error-queue entry %s: %w", id, err)
	}
	return it, nil
}

func (q *RedisErrorQueue) DeleteByID(ctx context.Context, id string) error {
	return q.client.HDel(ctx, q.key, id).Err()
}
