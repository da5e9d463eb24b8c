package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/thieman/deferrable/internal/debounce"
	"github.com/thieman/deferrable/internal/events"
	"github.com/thieman/deferrable/internal/item"
	"github.com/thieman/deferrable/internal/ttlpolicy"
)

// Handle is returned by Register. It exposes both the deferred Later path
// and a Call path that invokes the target directly, bypassing the queue
// entirely, matching the source library's decision that the decorated
// function remains callable on its own.
type Handle struct {
	d   *Dispatcher
	reg *registration
}

// Call invokes the registered function directly, in the caller's
// goroutine, without touching the backend.
func (h *Handle) Call(ctx context.Context, args, kwargs any) error {
	return h.reg.fn(ctx, args, kwargs)
}

// Later builds an item from args/kwargs and the registration's options,
// applies backoff/TTL/debounce policy, and pushes it to the primary queue.
func (h *Handle) Later(ctx context.Context, args, kwargs any) error {
	d := h.d
	reg := h.reg

	delayActual := reg.delaySeconds.Resolve()
	debounceActual := reg.debounceSeconds.Resolve()
	ttlActual := reg.ttlSeconds.Resolve()

	if err := validateRunTime(delayActual, debounceActual, ttlActual); err != nil {
		return err
	}

	argsBlob, err := d.codec.Encode(args)
	if err != nil {
		return fmt.Errorf("dispatcher: encoding args: %w", err)
	}
	kwargsBlob, err := d.codec.Encode(kwargs)
	if err != nil {
		return fmt.Errorf("dispatcher: encoding kwargs: %w", err)
	}

	errorClasses := reg.errorClasses
	if !reg.hasErrorClasses {
		errorClasses = d.defaultErrorClasses
	}
	errorClassesBlob, err := d.codec.Encode(errorClasses)
	if err != nil {
		return fmt.Errorf("dispatcher: encoding error_classes: %w", err)
	}

	maxAttempts := reg.maxAttempts
	if !reg.hasMaxAttempts {
		maxAttempts = d.defaultMaxAttempts
	}

	now := time.Now()
	it := &item.Item{
		MethodPath:                  reg.name,
		ArgsBlob:                    argsBlob,
		KwargsBlob:                  kwargsBlob,
		ErrorClasses:                errorClassesBlob,
		Group:                       d.backend.Group,
		Attempts:                    0,
		MaxAttempts:                 maxAttempts,
		FirstPushTime:               float64(now.Unix()),
		LastPushTime:                float64(now.Unix()),
		OriginalDelaySeconds:        delayActual,
		OriginalDebounceSeconds:     debounceActual,
		OriginalDebounceAlwaysDelay: reg.debounceAlwaysDelay,
		UseExponentialBackoff:       reg.useExponentialBackoff,
	}

	if ttlActual > 0 {
		ttlpolicy.Add(it, ttlActual, now)
	}

	if debounceActual > 0 {
		key := debounceKeyFor(reg.name, argsBlob, kwargsBlob)
		d.applyDebounce(ctx, it, key, debounceActual, reg.debounceAlwaysDelay, now)
		if it.DebounceSkip {
			return nil
		}
	} else {
		it.Delay = delayActual
		it.HasDelay = delayActual > 0
	}
	it.OriginalDelay = it.Delay

	d.metadata.ApplyAll(it)

	if err := d.backend.Queue.Push(ctx, it); err != nil {
		return fmt.Errorf("dispatcher: pushing item: %w", err)
	}
	d.events.Emit(events.Push, it)
	return nil
}

func debounceKeyFor(name string, argsBlob, kwargsBlob []byte) debounce.Key {
	return debounce.Key(fmt.Sprintf("%s.%s.%s", name, argsBlob, kwargsBlob))
}

func validateRunTime(delaySeconds, debounceSeconds, ttlSeconds float64) error {
	if delaySeconds > item.MaximumDelaySeconds || debounceSeconds > item.MaximumDelaySeconds {
		return fmt.Errorf("dispatcher: delay or debounce window cannot exceed %d seconds", item.MaximumDelaySeconds)
	}
	if ttlSeconds > 0 {
		if delaySeconds > ttlSeconds || debounceSeconds > ttlSeconds {
			return fmt.Errorf("dispatcher: delay_seconds or debounce_seconds must not exceed ttl_seconds")
		}
	}
	return nil
}
