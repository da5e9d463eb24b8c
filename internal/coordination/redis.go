package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by go-redis v9, used in production. Keys are
// written with SET key value EX seconds and read back with GET key.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. prefix namespaces every key this store
// touches (e.g. "deferrable:debounce:") so coordination keys never collide
// with a caller's other uses of the same Redis instance.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Set(ctx context.Context, key, value string, expiry time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, expiry).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
