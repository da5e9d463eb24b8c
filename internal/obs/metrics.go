// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thieman/deferrable/internal/config"
	"github.com/thieman/deferrable/internal/events"
	"github.com/thieman/deferrable/internal/item"
)

var (
	PushTotal          = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_push_total", Help: "Items pushed to the primary queue"})
	PopTotal           = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_pop_total", Help: "Envelopes popped from the primary queue"})
	EmptyTotal         = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_empty_total", Help: "Pop attempts that returned nothing"})
	CompleteTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_complete_total", Help: "Envelopes completed on the primary queue"})
	ExpireTotal        = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_expire_total", Help: "Items dropped for exceeding their TTL"})
	RetryTotal         = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_retry_total", Help: "Items re-pushed after a retriable failure"})
	ErrorTotal         = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_error_total", Help: "Items routed to the error queue"})
	DebounceHitTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_debounce_hit_total", Help: "later() calls skipped by the debounce engine"})
	DebounceMissTotal  = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_debounce_miss_total", Help: "later() calls that passed the debounce engine"})
	DebounceErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "deferrable_debounce_error_total", Help: "Debounce engine coordination-store failures"})

	BackendStats = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deferrable_backend_stats",
		Help: "Sampled backend partition sizes",
	}, []string{"queue", "partition"})
)

func init() {
	prometheus.MustRegister(
		PushTotal, PopTotal, EmptyTotal, CompleteTotal, ExpireTotal, RetryTotal, ErrorTotal,
		DebounceHitTotal, DebounceMissTotal, DebounceErrorTotal, BackendStats,
	)
}

// RecordEvent increments the counter matching typ. Unknown types (there are
// none today) are silently ignored, matching the EventBus's own tolerance
// for unset handlers.
func RecordEvent(typ events.Type) {
	switch typ {
	case events.Push:
		PushTotal.Inc()
	case events.Pop:
		PopTotal.Inc()
	case events.Empty:
		EmptyTotal.Inc()
	case events.Complete:
		CompleteTotal.Inc()
	case events.Expire:
		ExpireTotal.Inc()
	case events.Retry:
		RetryTotal.Inc()
	case events.Error:
		ErrorTotal.Inc()
	case events.DebounceHit:
		DebounceHitTotal.Inc()
	case events.DebounceMiss:
		DebounceMissTotal.Inc()
	case events.DebounceErr:
		DebounceErrorTotal.Inc()
	}
}

// MetricsObserver returns an events.Observer that records every lifecycle
// event to the package counters. Register it on a dispatcher's EventBus
// once at startup.
func MetricsObserver() events.Observer {
	return events.Observer{
		OnPush:         func(*item.Item) { RecordEvent(events.Push) },
		OnPop:          func(*item.Item) { RecordEvent(events.Pop) },
		OnEmpty:        func(*item.Item) { RecordEvent(events.Empty) },
		OnComplete:     func(*item.Item) { RecordEvent(events.Complete) },
		OnExpire:       func(*item.Item) { RecordEvent(events.Expire) },
		OnRetry:        func(*item.Item) { RecordEvent(events.Retry) },
		OnError:        func(*item.Item) { RecordEvent(events.Error) },
		OnDebounceHit:  func(*item.Item) { RecordEvent(events.DebounceHit) },
		OnDebounceMiss: func(*item.Item) { RecordEvent(events.DebounceMiss) },
		OnDebounceErr:  func(*item.Item) { RecordEvent(events.DebounceErr) },
	}
}

// StartMetricsServer exposes /metrics and returns the server for controlled
// shutdown. Prefer StartHTTPServer, which also serves health endpoints.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
