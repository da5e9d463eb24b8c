package dispatcher

import (
	"context"
	"time"

	"github.com/thieman/deferrable/internal/debounce"
	"github.com/thieman/deferrable/internal/events"
	"github.com/thieman/deferrable/internal/item"
)

// applyDebounce runs the debounce engine and its post-decision side effects
// against it. Any error from the store, at any step, is swallowed, delay is
// forced to zero, and debounce_error is emitted so work is never lost to a
// coordination-store outage.
func (d *Dispatcher) applyDebounce(ctx context.Context, it *item.Item, key debounce.Key, debounceSeconds float64, alwaysDelay bool, now time.Time) {
	decision, delaySeconds, err := d.debounce.Decide(ctx, key, debounceSeconds, alwaysDelay, now)
	if err != nil {
		d.debounceError(it)
		return
	}

	if decision == debounce.Skip {
		it.DebounceSkip = true
		d.events.Emit(events.DebounceHit, it)
		return
	}

	d.events.Emit(events.DebounceMiss, it)
	switch decision {
	case debounce.PushNow:
		err = d.debounce.ApplyPushNow(ctx, key, debounceSeconds, now)
	case debounce.PushDelayed:
		err = d.debounce.ApplyPushDelayed(ctx, key, delaySeconds, debounceSeconds, now)
	}
	if err != nil {
		d.debounceError(it)
		return
	}

	it.Delay = delaySeconds
	it.HasDelay = delaySeconds > 0
}

func (d *Dispatcher) debounceError(it *item.Item) {
	it.Delay = 0
	it.HasDelay = false
	d.events.Emit(events.DebounceErr, it)
}
