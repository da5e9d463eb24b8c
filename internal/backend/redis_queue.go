package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/thieman/deferrable/internal/codec"
	"github.com/thieman/deferrable/internal/item"
)

// RedisQueue is a Queue backed by a Redis list for the available set, a
// sorted set for delayed items, and a per-pop processing list used to make
// in-flight items visible and completable.
type RedisQueue struct {
	client *redis.Client
	codec  codec.Codec
	base   string
}

// NewRedisQueue returns a Queue rooted at backend.QueueName(group).
func NewRedisQueue(client *redis.Client, c codec.Codec, group string) *RedisQueue {
	return &RedisQueue{client: client, codec: c, base: QueueName(group)}
}

func (q *RedisQueue) delayedKey() string { return q.base + ":delayed" }

func (q *RedisQueue) processingKey() string {
	return fmt.Sprintf("%s:processing:%s", q.base, uuid.NewString())
}

func (q *RedisQueue) Capabilities() Capabilities {
	return Capabilities{FIFO: true, SupportsDelay: true, ReclaimsToBackOfQueue: true}
}

func (q *RedisQueue) Push(ctx context.Context, it *item.Item) error {
	raw, err := q.codec.Encode(it)
	if err != nil {
		return err
	}
	if it.HasDelay && it.Delay != 0 {
		due := float64(time.Now().Unix()) + it.Delay
		return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: due, Member: raw}).Err()
	}
	return q.client.LPush(ctx, q.base, raw).Err()
}

func (q *RedisQueue) PushBatch(ctx context.Context, items []*item.Item) ([]bool, error) {
	ok := make([]bool, len(items))
	for i, it := range items {
		ok[i] = q.Push(ctx, it) == nil
	}
	return ok, nil
}

// Reclaim promotes delayed items whose due time has passed from the sorted
// set into the available list. It is driven by delay expiry, not by
// missing worker heartbeats, and is meant to be called periodically by a
// background loop.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, raw := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), raw).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue // another worker already reclaimed this member
		}
		if err := q.client.LPush(ctx, q.base, raw).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *RedisQueue) Pop(ctx context.Context, waitTime time.Duration) (*Envelope, *item.Item, error) {
	procKey := q.processingKey()
	// BRPOPLPUSH treats a zero timeout as "block forever", so a zero or
	// negative waitTime uses the non-blocking RPOPLPUSH instead.
	var raw string
	var err error
	if waitTime <= 0 {
		raw, err = q.client.RPopLPush(ctx, q.base, procKey).Result()
	} else {
		raw, err = q.client.BRPopLPush(ctx, q.base, procKey, waitTime).Result()
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	it := &item.Item{}
	if err := q.codec.Decode([]byte(raw), it); err != nil {
		return nil, nil, err
	}

	hbKey := procKey + ":heartbeat"
	if err := q.client.Set(ctx, hbKey, raw, 0).Err(); err != nil {
		return nil, nil, err
	}
	return &Envelope{raw: raw, procKey: procKey, hbKey: hbKey}, it, nil
}

func (q *RedisQueue) PopBatch(ctx context.Context, n int) ([]*Envelope, []*item.Item, error) {
	var envs []*Envelope
	var items []*item.Item
	for i := 0; i < n; i++ {
		env, it, err := q.Pop(ctx, 0)
		if err != nil {
			return envs, items, err
		}
		if env == nil {
			break
		}
		envs = append(envs, env)
		items = append(items, it)
	}
	return envs, items, nil
}

func (q *RedisQueue) Touch(ctx context.Context, env *Envelope, ttl time.Duration) error {
	return q.client.Set(ctx, env.hbKey, env.raw, ttl).Err()
}

func (q *RedisQueue) Complete(ctx context.Context, env *Envelope) error {
	if err := q.client.LRem(ctx, env.procKey, 1, env.raw).Err(); err != nil {
		return err
	}
	return q.client.Del(ctx, env.hbKey).Err()
}

func (q *RedisQueue) CompleteBatch(ctx context.Context, envs []*Envelope) error {
	for _, env := range envs {
		if err := q.Complete(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Flush pops and completes every available item, draining the queue. It
// does not drain delayed items that haven't come due; Reclaim them first if
// a full drain is required.
func (q *RedisQueue) Flush(ctx context.Context) error {
	for {
		env, _, err := q.Pop(ctx, 0)
		if err != nil {
			return err
		}
		if env == nil {
			return nil
		}
		if err := q.Complete(ctx, env); err != nil {
			return err
		}
	}
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	available, err := q.client.LLen(ctx, q.base).Result()
	if err != nil {
		return Stats{}, err
	}
	delayed, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return Stats{}, err
	}
	inFlight, err := q.countProcessingLists(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Available: available, InFlight: inFlight, Delayed: delayed}, nil
}

func (q *RedisQueue) countProcessingLists(ctx context.Context) (int64, error) {
	var cursor uint64
	var count int64
	pattern := q.base + ":processing:*"
	for {
		keys, cur, err := q.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return count, err
		}
		for _, k := range keys {
			if strings.HasSuffix(k, ":heartbeat") {
				continue
			}
			l, err := q.client.LLen(ctx, k).Result()
			if err != nil {
				return count, err
			}
			count += l
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
