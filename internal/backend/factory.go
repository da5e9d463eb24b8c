package backend

import (
	"github.com/redis/go-redis/v9"
	"github.com/thieman/deferrable/internal/codec"
)

// CreateBackendForGroup builds a Redis-backed Backend for group, sharing
// client and codec with every other group's Backend.
func CreateBackendForGroup(client *redis.Client, c codec.Codec, group string) *Backend {
	return &Backend{
		Group:      group,
		Queue:      NewRedisQueue(client, c, group),
		ErrorQueue: NewRedisErrorQueue(client, c, group),
	}
}
