// Package events implements an ordered list of observers notified
// synchronously after each lifecycle action. Each observer declares
// handlers for only the events it cares about; the rest are left nil.
package events

import "github.com/thieman/deferrable/internal/item"

// Type is one of the stable event names the dispatcher emits.
type Type string

const (
	Push         Type = "push"
	Pop          Type = "pop"
	Empty        Type = "empty"
	Complete     Type = "complete"
	Expire       Type = "expire"
	Retry        Type = "retry"
	Error        Type = "error"
	DebounceHit  Type = "debounce_hit"
	DebounceMiss Type = "debounce_miss"
	DebounceErr  Type = "debounce_error"
)

// Observer is notified of lifecycle events. A zero-value Observer with all
// handlers nil ignores every event; most observers only set the handlers
// they care about.
type Observer struct {
	OnPush         func(it *item.Item)
	OnPop          func(it *item.Item)
	OnEmpty        func(it *item.Item)
	OnComplete     func(it *item.Item)
	OnExpire       func(it *item.Item)
	OnRetry        func(it *item.Item)
	OnError        func(it *item.Item)
	OnDebounceHit  func(it *item.Item)
	OnDebounceMiss func(it *item.Item)
	OnDebounceErr  func(it *item.Item)
}

// Bus dispatches lifecycle events to registered observers in registration
// order. It does not isolate a panicking observer from the dispatcher's
// call stack; a misbehaving observer can take down the worker that runs it.
type Bus struct {
	observers []Observer
}

// NewBus returns an empty EventBus.
func NewBus() *Bus {
	return &Bus{}
}

// Register appends an observer. Registration order is the invocation
// order; observers are expected to be configured before workers start.
func (b *Bus) Register(obs Observer) {
	b.observers = append(b.observers, obs)
}

// Clear removes every registered observer.
func (b *Bus) Clear() {
	b.observers = nil
}

// Emit runs the handler for typ on every observer that declared one, in
// registration order, passing it (which may be nil only for Empty).
func (b *Bus) Emit(typ Type, it *item.Item) {
	for _, o := range b.observers {
		if h := handlerFor(o, typ); h != nil {
			h(it)
		}
	}
}

func handlerFor(o Observer, typ Type) func(*item.Item) {
	switch typ {
	case Push:
		return o.OnPush
	case Pop:
		return o.OnPop
	case Empty:
		return o.OnEmpty
	case Complete:
		return o.OnComplete
	case Expire:
		return o.OnExpire
	case Retry:
		return o.OnRetry
	case Error:
		return o.OnError
	case DebounceHit:
		return o.OnDebounceHit
	case DebounceMiss:
		return o.OnDebounceMiss
	case DebounceErr:
		return o.OnDebounceErr
	default:
		return nil
	}
}
