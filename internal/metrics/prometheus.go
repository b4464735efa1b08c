// Package metrics exposes Prometheus collectors for store, listener and
// channel operations. Metrics are best-effort: until Init is called every
// recording function is a no-op, so stores/listeners/channels never need a
// nil check of their own before recording.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors for a fabric process.
type Metrics struct {
	registry *prometheus.Registry

	storeOpsTotal    *prometheus.CounterVec
	listenerRetries  *prometheus.CounterVec
	listenerOutcomes *prometheus.CounterVec
	deadLettersTotal *prometheus.CounterVec

	executionDuration *prometheus.HistogramVec
	destinationsTotal *prometheus.CounterVec
	replaysTotal      *prometheus.CounterVec
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

var active *Metrics

// Init creates and registers the collector set under namespace. Calling it
// more than once replaces the active collector set.
func Init(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		storeOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Store operations by kind (store/retrieve/acknowledge) and outcome",
			},
			[]string{"store", "operation", "outcome"},
		),

		listenerRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listener_retries_total",
				Help:      "Handler retry attempts by listener",
			},
			[]string{"listener"},
		),

		listenerOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listener_poll_outcomes_total",
				Help:      "Poll-cycle outcomes by listener (acked/dropped/kept/dead_lettered)",
			},
			[]string{"listener", "outcome"},
		),

		deadLettersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dead_letters_total",
				Help:      "Messages routed to a dead-letter store",
			},
			[]string{"listener"},
		),

		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "channel_execution_duration_milliseconds",
				Help:      "Duration of a channel execute/replay run in milliseconds",
				Buckets:   defaultBuckets,
			},
			[]string{"channel", "operation", "outcome"},
		),

		destinationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_destination_invocations_total",
				Help:      "Destination invocations by channel, destination name and outcome",
			},
			[]string{"channel", "destination", "outcome"},
		),

		replaysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_replays_total",
				Help:      "Replay attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
	}

	registry.MustRegister(
		m.storeOpsTotal,
		m.listenerRetries,
		m.listenerOutcomes,
		m.deadLettersTotal,
		m.executionDuration,
		m.destinationsTotal,
		m.replaysTotal,
	)

	active = m
	return m
}

// RecordStoreOp records one store operation outcome.
func RecordStoreOp(store, operation, outcome string) {
	if active == nil {
		return
	}
	active.storeOpsTotal.WithLabelValues(store, operation, outcome).Inc()
}

// RecordListenerRetry records one handler retry attempt.
func RecordListenerRetry(listener string) {
	if active == nil {
		return
	}
	active.listenerRetries.WithLabelValues(listener).Inc()
}

// RecordListenerOutcome records the terminal outcome of one poll cycle.
func RecordListenerOutcome(listener, outcome string) {
	if active == nil {
		return
	}
	active.listenerOutcomes.WithLabelValues(listener, outcome).Inc()
}

// RecordDeadLetter records one message routed to a dead-letter store.
func RecordDeadLetter(listener string) {
	if active == nil {
		return
	}
	active.deadLettersTotal.WithLabelValues(listener).Inc()
}

// ObserveExecutionDuration records one execute/replay run's duration.
func ObserveExecutionDuration(channel, operation, outcome string, durationMs float64) {
	if active == nil {
		return
	}
	active.executionDuration.WithLabelValues(channel, operation, outcome).Observe(durationMs)
}

// RecordDestination records one destination invocation outcome.
func RecordDestination(channel, destination, outcome string) {
	if active == nil {
		return
	}
	active.destinationsTotal.WithLabelValues(channel, destination, outcome).Inc()
}

// RecordReplay records one replay attempt's outcome.
func RecordReplay(channel, outcome string) {
	if active == nil {
		return
	}
	active.replaysTotal.WithLabelValues(channel, outcome).Inc()
}

// Handler returns an HTTP handler for Prometheus scraping. Until Init has
// been called it responds 503.
func Handler() http.Handler {
	if active == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(active.registry, promhttp.HandlerOpts{})
}

// Registry returns the active Prometheus registry, or nil if Init hasn't
// been called.
func Registry() *prometheus.Registry {
	if active == nil {
		return nil
	}
	return active.registry
}
