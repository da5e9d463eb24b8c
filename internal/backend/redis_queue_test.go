package backend

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thieman/deferrable/internal/codec"
	"github.com/thieman/deferrable/internal/item"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisQueue(client, codec.JSON{}, "notify"), mr
}

func TestPushPopRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, &item.Item{MethodPath: "app.notify"}))

	env, it, err := q.Pop(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "app.notify", it.MethodPath)
}

func TestPopOnEmptyQueueReturnsNilEnvelope(t *testing.T) {
	q, _ := newTestQueue(t)
	env, it, err := q.Pop(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, env)
	assert.Nil(t, it)
}

func TestCompleteRemovesFromProcessingList(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, &item.Item{MethodPath: "app.notify"}))

	env, _, err := q.Pop(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, env))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.InFlight)
}

func TestDelayedItemIsNotImmediatelyAvailable(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, &item.Item{MethodPath: "app.notify", HasDelay: true, Delay: 60}))

	env, _, err := q.Pop(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, env)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Delayed)
	assert.Zero(t, stats.Available)
}

func TestReclaimPromotesDueDelayedItems(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// A negative delay puts the due time in the past, so it's reclaimable
	// without waiting on real wall-clock time in the test.
	require.NoError(t, q.Push(ctx, &item.Item{MethodPath: "app.notify", HasDelay: true, Delay: -5}))

	n, err := q.Reclaim(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	env, it, err := q.Pop(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "app.notify", it.MethodPath)
}

func TestFlushDrainsAvailableItems(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, &item.Item{MethodPath: "app.notify"}))
	}

	require.NoError(t, q.Flush(ctx))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Available)
	assert.Zero(t, stats.InFlight)
}

func TestCapabilitiesAdvertiseDelayAndReclaim(t *testing.T) {
	q, _ := newTestQueue(t)
	caps := q.Capabilities()
	assert.True(t, caps.FIFO)
	assert.True(t, caps.SupportsDelay)
	assert.True(t, caps.ReclaimsToBackOfQueue)
}
