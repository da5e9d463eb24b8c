// Package debounce implements a small state machine over an external
// coordination store that classifies a pending enqueue into PushNow,
// PushDelayed, or Skip.
package debounce

import (
	"context"
	"fmt"
	"time"

	"github.com/thieman/deferrable/internal/coordination"
)

// Decision is the outcome of the debounce algorithm.
type Decision int

const (
	PushNow Decision = iota
	PushDelayed
	Skip
)

// Key identifies a debounced invocation: method plus args plus kwargs,
// pre-serialized by the caller into a stable string so the engine never
// needs to know the codec.
type Key string

func debounceKey(k Key) string { return fmt.Sprintf("debounce.%s", k) }
func lastPushKey(k Key) string { return fmt.Sprintf("last_push.%s", k) }

// Engine evaluates and applies debounce decisions against a Store.
type Engine struct {
	store coordination.Store
}

// New returns a debounce Engine backed by store.
func New(store coordination.Store) *Engine {
	return &Engine{store: store}
}

// Decide classifies a pending enqueue into PushNow, PushDelayed, or Skip.
// now is injectable so tests can control elapsed time deterministically.
func (e *Engine) Decide(ctx context.Context, key Key, debounceSeconds float64, alwaysDelay bool, now time.Time) (Decision, float64, error) {
	_, hit, err := e.store.Get(ctx, debounceKey(key))
	if err != nil {
		return PushNow, 0, err
	}
	if hit {
		return Skip, 0, nil
	}

	if alwaysDelay {
		return PushDelayed, debounceSeconds, nil
	}

	lastPushStr, ok, err := e.store.Get(ctx, lastPushKey(key))
	if err != nil {
		return PushNow, 0, err
	}
	if !ok {
		return PushNow, 0, nil
	}

	var lastPush float64
	if _, err := fmt.Sscanf(lastPushStr, "%g", &lastPush); err != nil {
		return PushNow, 0, nil
	}

	delta := float64(now.Unix()) - lastPush
	if delta > debounceSeconds {
		return PushNow, 0, nil
	}
	return PushDelayed, debounceSeconds - delta, nil
}

// ApplyPushNow records the post-decision side effects for a PushNow
// decision: last_push_key is set to now, expiring at 2*debounceSeconds.
func (e *Engine) ApplyPushNow(ctx context.Context, key Key, debounceSeconds float64, now time.Time) error {
	return e.store.Set(ctx, lastPushKey(key), fmt.Sprintf("%g", float64(now.Unix())), time.Duration(2*debounceSeconds)*time.Second)
}

// ApplyPushDelayed records the post-decision side effects for a
// PushDelayed decision: last_push_key is set to now+delay (expiring at
// 2*debounceSeconds), and debounce_key is set with TTL debounceSeconds to
// block further enqueues inside the window.
func (e *Engine) ApplyPushDelayed(ctx context.Context, key Key, delaySeconds, debounceSeconds float64, now time.Time) error {
	pushTime := float64(now.Unix()) + delaySeconds
	if err := e.store.Set(ctx, lastPushKey(key), fmt.Sprintf("%g", pushTime), time.Duration(2*debounceSeconds)*time.Second); err != nil {
		return err
	}
	return e.store.Set(ctx, debounceKey(key), "1", time.Duration(debounceSeconds)*time.Second)
}
