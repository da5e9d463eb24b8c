// Package dispatcher is the orchestrator binding BackoffPolicy, TTLPolicy,
// the DebounceEngine, the Backend abstraction, MetadataExtensions, and the
// EventBus into the registration / later / process lifecycle.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thieman/deferrable/internal/backend"
	"github.com/thieman/deferrable/internal/backoffpolicy"
	"github.com/thieman/deferrable/internal/codec"
	"github.com/thieman/deferrable/internal/coordination"
	"github.com/thieman/deferrable/internal/debounce"
	"github.com/thieman/deferrable/internal/events"
	"github.com/thieman/deferrable/internal/item"
	"github.com/thieman/deferrable/internal/metadata"
	"github.com/thieman/deferrable/internal/ttlpolicy"
	"go.uber.org/zap"
)

// Fn is a registered target. The dispatcher decodes args/kwargs from the
// item's codec-serialized blobs but does not type them further; fn is
// responsible for asserting whatever shape it expects.
type Fn func(ctx context.Context, args any, kwargs any) error

// Dispatcher binds a Backend, a Codec, and the supporting registries into
// the registration/later/process lifecycle. The zero value is not usable;
// construct with New.
type Dispatcher struct {
	backend      *backend.Backend
	codec        codec.Codec
	coordination coordination.Store
	debounce     *debounce.Engine
	metadata     *metadata.Registry
	events       *events.Bus
	log          *zap.Logger
	hostname     string

	defaultErrorClasses []string
	defaultMaxAttempts  int
	popWaitTime         time.Duration

	mu       sync.RWMutex
	handlers map[string]*Handle
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithCoordinationStore wires the coordination store the debounce engine
// needs. Registering a function with WithDebounceSeconds before this option
// is applied fails validation.
func WithCoordinationStore(store coordination.Store) Option {
	return func(d *Dispatcher) {
		d.coordination = store
		d.debounce = debounce.New(store)
	}
}

// WithDefaultErrorClasses sets the error classes used by registrations that
// don't supply their own via WithErrorClasses.
func WithDefaultErrorClasses(classes ...string) Option {
	return func(d *Dispatcher) { d.defaultErrorClasses = classes }
}

// WithDefaultMaxAttempts sets the max_attempts used by registrations that
// don't supply their own via WithMaxAttempts.
func WithDefaultMaxAttempts(n int) Option {
	return func(d *Dispatcher) { d.defaultMaxAttempts = n }
}

// WithPopWaitTime sets how long RunOnce blocks waiting for an item.
func WithPopWaitTime(wait time.Duration) Option {
	return func(d *Dispatcher) { d.popWaitTime = wait }
}

// WithLogger overrides the no-op default logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithMetadataRegistry swaps in a pre-populated metadata registry instead of
// an empty one.
func WithMetadataRegistry(r *metadata.Registry) Option {
	return func(d *Dispatcher) { d.metadata = r }
}

// WithEventBus swaps in a pre-populated event bus instead of an empty one.
func WithEventBus(b *events.Bus) Option {
	return func(d *Dispatcher) { d.events = b }
}

// New returns a Dispatcher driving b through c. Defaults: max_attempts=5,
// pop wait time of one second, no coordination store (debounce disabled
// until WithCoordinationStore is supplied), a no-op logger.
func New(b *backend.Backend, c codec.Codec, opts ...Option) *Dispatcher {
	hostname, _ := os.Hostname()
	d := &Dispatcher{
		backend:            b,
		codec:              c,
		metadata:           metadata.NewRegistry(),
		events:             events.NewBus(),
		log:                zap.NewNop(),
		hostname:           hostname,
		defaultMaxAttempts: 5,
		popWaitTime:        time.Second,
		handlers:           make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register binds name to fn and returns a Handle exposing Later and Call.
// name is used verbatim as the item's method_path; any worker sharing this
// codec and registering the same name under that path can execute items
// enqueued here.
func (d *Dispatcher) Register(name string, fn Fn, opts ...RegisterOption) (*Handle, error) {
	reg := &registration{name: name, fn: fn, useExponentialBackoff: true}
	for _, opt := range opts {
		opt(reg)
	}

	if reg.hasDebounce && d.coordination == nil {
		return nil, fmt.Errorf("dispatcher: %q: debounce_seconds requires a coordination store", name)
	}
	if reg.hasDelay && reg.hasDebounce {
		return nil, fmt.Errorf("dispatcher: %q: delay_seconds and debounce_seconds cannot both be set", name)
	}
	if reg.debounceAlwaysDelay && !reg.hasDebounce {
		return nil, fmt.Errorf("dispatcher: %q: debounce_always_delay requires debounce_seconds", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; exists {
		return nil, fmt.Errorf("dispatcher: method %q is already registered", name)
	}
	h := &Handle{d: d, reg: reg}
	d.handlers[name] = h
	return h, nil
}

// RegisterEventObserver appends obs to the dispatcher's event bus.
func (d *Dispatcher) RegisterEventObserver(obs events.Observer) {
	d.events.Register(obs)
}

// ClearEventObservers removes every registered observer.
func (d *Dispatcher) ClearEventObservers() {
	d.events.Clear()
}

// RegisterMetadataExtension adds ext to the dispatcher's metadata registry.
func (d *Dispatcher) RegisterMetadataExtension(ext metadata.Extension) error {
	return d.metadata.Register(ext)
}

// ClearMetadataExtensions removes every registered metadata extension.
func (d *Dispatcher) ClearMetadataExtensions() {
	d.metadata.Clear()
}

func (d *Dispatcher) lookup(name string) (Fn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[name]
	if !ok {
		return nil, false
	}
	return h.reg.fn, true
}

// RunOnce pops one envelope from the primary queue and drives it through
// Process end-to-end. Consumers that need their own heartbeat loop should
// call backend.Queue.Pop and Process directly instead.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	env, it, err := d.backend.Queue.Pop(ctx, d.popWaitTime)
	if err != nil {
		return err
	}
	return d.Process(ctx, env, it)
}

// Process runs one popped item through TTL check, method resolution and
// execution, retry-with-backoff or error-queue routing on failure, and a
// Complete of the envelope on every path except a failed retry Push, whose
// error is returned before the envelope is completed.
func (d *Dispatcher) Process(ctx context.Context, env *backend.Envelope, it *item.Item) error {
	if env == nil {
		d.events.Emit(events.Empty, nil)
		return nil
	}
	d.events.Emit(events.Pop, it)

	var errorClasses []string
	if len(it.ErrorClasses) > 0 {
		if err := d.codec.Decode(it.ErrorClasses, &errorClasses); err != nil {
			d.log.Warn("failed to decode error_classes", zap.String("method_path", it.MethodPath), zap.Error(err))
		}
	}
	d.metadata.ConsumeAll(it)

	now := time.Now()
	if ttlpolicy.IsExpired(it, now) {
		d.log.Warn("item dropped with expired TTL", zap.String("method_path", it.MethodPath))
		d.events.Emit(events.Expire, it)
		if err := d.backend.Queue.Complete(ctx, env); err != nil {
			return err
		}
		d.events.Emit(events.Complete, it)
		return nil
	}

	if err := d.execute(ctx, it, errorClasses); err != nil {
		return err
	}

	if err := d.backend.Queue.Complete(ctx, env); err != nil {
		return err
	}
	d.events.Emit(events.Complete, it)
	return nil
}

func (d *Dispatcher) execute(ctx context.Context, it *item.Item, errorClasses []string) error {
	fn, ok := d.lookup(it.MethodPath)
	if !ok {
		d.routeToErrorQueue(ctx, it, fmt.Errorf("dispatcher: no function registered for method %q", it.MethodPath), "")
		return nil
	}

	var args, kwargs any
	if err := d.codec.Decode(it.ArgsBlob, &args); err != nil {
		d.routeToErrorQueue(ctx, it, err, "")
		return nil
	}
	if err := d.codec.Decode(it.KwargsBlob, &kwargs); err != nil {
		d.routeToErrorQueue(ctx, it, err, "")
		return nil
	}

	err := fn(ctx, args, kwargs)
	if err == nil {
		return nil
	}

	class, retriable := classify(err, errorClasses)
	if !retriable {
		d.routeToErrorQueue(ctx, it, err, class)
		return nil
	}

	if it.Attempts >= it.MaxAttempts-1 {
		d.routeToErrorQueue(ctx, it, err, class)
		return nil
	}

	it.Attempts++
	backoffpolicy.Apply(it, time.Now())
	if pushErr := d.backend.Queue.Push(ctx, it); pushErr != nil {
		return pushErr
	}
	d.events.Emit(events.Retry, it)
	return nil
}

func classify(err error, errorClasses []string) (class string, retriable bool) {
	var re *RetriableError
	if !errors.As(err, &re) {
		return "", false
	}
	for _, c := range errorClasses {
		if c == re.Class {
			return re.Class, true
		}
	}
	return re.Class, false
}

func (d *Dispatcher) routeToErrorQueue(ctx context.Context, it *item.Item, cause error, class string) {
	errType := class
	if errType == "" {
		errType = "fatal"
	}
	now := time.Now()
	it.Error = &item.ErrorInfo{
		ErrorType: errType,
		ErrorText: cause.Error(),
		Traceback: fmt.Sprintf("%+v", cause),
		Hostname:  d.hostname,
		Timestamp: float64(now.Unix()),
		ID:        uuid.NewString(),
		At:        now,
	}
	it.LastPushTime = float64(now.Unix())
	it.Delay = 0
	it.HasDelay = false

	if err := d.backend.ErrorQueue.Push(ctx, it); err != nil {
		d.log.Error("failed to push item to error queue", zap.String("method_path", it.MethodPath), zap.Error(err))
	}
	d.events.Emit(events.Error, it)
}
