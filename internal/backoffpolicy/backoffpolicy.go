// Package backoffpolicy computes the delay applied to a retried item and
// stamps the future-dated last-push time that keeps intentional wait time
// out of response-time metrics.
package backoffpolicy

import (
	"time"

	"github.com/thieman/deferrable/internal/item"
)

// BackoffConstant and BackoffBase parameterize ComputeDelay.
const (
	BackoffConstant = 2
	BackoffBase     = 2
)

// ComputeDelay returns min(BACKOFF_CONSTANT + BACKOFF_BASE^attempt, MAX).
// attempt is 0-indexed, matching item.Attempts before it is incremented for
// the retry currently being scheduled.
func ComputeDelay(attempt int) float64 {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(BackoffConstant) + pow(BackoffBase, attempt)
	if d > item.MaximumDelaySeconds {
		return item.MaximumDelaySeconds
	}
	return d
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Apply mutates it in place to reflect the backoff decision for the next
// attempt, using now as the reference clock so tests can inject a fixed
// time.
func Apply(it *item.Item, now time.Time) {
	if !it.UseExponentialBackoff {
		it.HasDelay = false
		it.Delay = 0
		it.LastPushTime = float64(now.Unix())
		return
	}
	d := ComputeDelay(it.Attempts)
	it.Delay = d
	it.HasDelay = true
	it.LastPushTime = float64(now.Unix()) + d
}
