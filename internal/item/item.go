// Package item defines the invocation record that flows through the
// deferrable pipeline: built by Later, mutated by the dispatcher's retry
// path, and carried opaquely by whichever Backend a caller configures.
package item

import "time"

// MaximumDelaySeconds bounds any delay or debounce window the dispatcher
// will honor. later() calls whose resolved delay or debounce window exceeds
// it fail validation; Register does not check it.
const MaximumDelaySeconds = 3600

// ErrorInfo is populated only on the failure path, when an item is routed
// to the error queue.
type ErrorInfo struct {
	ErrorType  string    `json:"error_type"`
	ErrorText  string    `json:"error_text"`
	Traceback  string    `json:"traceback"`
	Hostname   string    `json:"hostname"`
	Timestamp  float64   `json:"ts"`
	ID         string    `json:"id"`
	At         time.Time `json:"-"`
}

// Item is the serialized invocation record, the unit of work.
type Item struct {
	MethodPath string `json:"method_path"`
	ArgsBlob   []byte `json:"args_blob,omitempty"`
	KwargsBlob []byte `json:"kwargs_blob,omitempty"`

	// ErrorClasses is the opaque serialized set of exception/error category
	// names considered retriable for this item. It round-trips through the
	// same codec as the args/kwargs blobs.
	ErrorClasses []byte `json:"error_classes,omitempty"`

	Group string `json:"group"`

	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	FirstPushTime float64 `json:"first_push_time"`
	LastPushTime  float64 `json:"last_push_time"`

	OriginalDelaySeconds          float64 `json:"original_delay_seconds"`
	OriginalDebounceSeconds       float64 `json:"original_debounce_seconds"`
	OriginalDebounceAlwaysDelay   bool    `json:"original_debounce_always_delay"`
	OriginalDelay                 float64 `json:"original_delay"`

	// Delay is the delay in seconds applied to the current push. A zero
	// value with HasDelay false means immediate availability.
	Delay    float64 `json:"delay,omitempty"`
	HasDelay bool    `json:"-"`

	UseExponentialBackoff bool `json:"use_exponential_backoff"`

	TTLSeconds         float64 `json:"ttl_seconds,omitempty"`
	ItemQueuedTimestamp float64 `json:"item_queued_timestamp,omitempty"`

	// DebounceSkip is a transient flag on the enqueue path; it is never
	// pushed anywhere because a SKIP decision short-circuits before push.
	DebounceSkip bool `json:"debounce_skip,omitempty"`

	Error *ErrorInfo `json:"error,omitempty"`

	// Metadata holds namespaced fields written by MetadataExtensions. Core
	// fields never live here; extensions own this entire sub-map.
	Metadata map[string]map[string]any `json:"metadata,omitempty"`
}

// SetMetadata writes a single key into the given extension namespace,
// creating the namespace's sub-map on first use.
func (it *Item) SetMetadata(namespace, key string, value any) {
	if it.Metadata == nil {
		it.Metadata = make(map[string]map[string]any)
	}
	ns, ok := it.Metadata[namespace]
	if !ok {
		ns = make(map[string]any)
		it.Metadata[namespace] = ns
	}
	ns[key] = value
}

// GetMetadata reads a single key from the given extension namespace.
func (it *Item) GetMetadata(namespace, key string) (any, bool) {
	ns, ok := it.Metadata[namespace]
	if !ok {
		return nil, false
	}
	v, ok := ns[key]
	return v, ok
}
