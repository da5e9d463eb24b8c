// Package ttlpolicy anchors an item's wall-clock lifetime budget at
// original enqueue time and tests it at pop time.
package ttlpolicy

import (
	"time"

	"github.com/thieman/deferrable/internal/item"
)

// Add records ttlSeconds and the current time as the TTL anchor. Retries
// never call Add again, so the budget covers the entire lifecycle rather
// than resetting per attempt.
func Add(it *item.Item, ttlSeconds float64, now time.Time) {
	it.TTLSeconds = ttlSeconds
	it.ItemQueuedTimestamp = float64(now.Unix())
}

// IsExpired reports whether it has exceeded its TTL budget as of now. An
// item with no TTL configured never expires.
func IsExpired(it *item.Item, now time.Time) bool {
	if it.TTLSeconds <= 0 {
		return false
	}
	elapsed := float64(now.Unix()) - it.ItemQueuedTimestamp
	return elapsed > it.TTLSeconds
}
