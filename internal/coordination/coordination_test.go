package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetGetRoundTrip(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set(context.Background(), "k", "v", time.Minute))

	v, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestMemoryGetMissingKey(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryExpiresEntries(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set(context.Background(), "k", "v", -time.Second))

	_, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
