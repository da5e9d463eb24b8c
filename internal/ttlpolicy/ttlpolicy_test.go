package ttlpolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/thieman/deferrable/internal/item"
)

func TestIsExpiredFalseWithoutTTL(t *testing.T) {
	it := &item.Item{}
	assert.False(t, IsExpired(it, time.Now()))
}

func TestIsExpiredFalseWithinBudget(t *testing.T) {
	it := &item.Item{}
	base := time.Unix(1000, 0)
	Add(it, 5, base)

	assert.False(t, IsExpired(it, base.Add(4*time.Second)))
}

func TestIsExpiredTrueAfterBudget(t *testing.T) {
	it := &item.Item{}
	base := time.Unix(1000, 0)
	Add(it, 1, base)

	assert.True(t, IsExpired(it, base.Add(2*time.Second)))
}

func TestRetriesInheritSameAnchor(t *testing.T) {
	it := &item.Item{}
	base := time.Unix(1000, 0)
	Add(it, 5, base)
	anchor := it.ItemQueuedTimestamp

	// Simulate a retry: nothing should touch ItemQueuedTimestamp again.
	it.Attempts++

	assert.Equal(t, anchor, it.ItemQueuedTimestamp)
}
