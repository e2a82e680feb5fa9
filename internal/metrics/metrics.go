// Package metrics holds the Prometheus collectors for tutorsheets.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tutorsheets"

// Metrics holds all Prometheus metrics for a tutorsheets process.
type Metrics struct {
	// Table store metrics
	StoreOpsTotal    *prometheus.CounterVec
	StoreOpDuration  *prometheus.HistogramVec
	StoreErrorsTotal *prometheus.CounterVec

	// Registry metrics
	RegistryOpsTotal *prometheus.CounterVec

	// Conversation metrics
	SessionsActive     prometheus.Gauge
	SessionsExpired    prometheus.Counter
	FlowOutcomesTotal  *prometheus.CounterVec
	EventLogFailures   prometheus.Counter
	PublishFailures    prometheus.Counter
	SyncRunsTotal      *prometheus.CounterVec
	SyncLastSuccessSec prometheus.Gauge
}

// New creates all collectors and registers them with reg. Passing nil uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		StoreOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of table store operations",
		}, []string{"backend", "op"}),
		StoreOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of table store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		StoreErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Total number of failed table store operations",
		}, []string{"backend", "op"}),

		RegistryOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Total number of registry operations by result",
		}, []string{"op", "result"}),

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "sessions_active",
			Help:      "Number of conversation sessions in progress",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "sessions_expired_total",
			Help:      "Total number of sessions dropped by the idle reaper",
		}),
		FlowOutcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "flow_outcomes_total",
			Help:      "Total number of finished flows by outcome",
		}, []string{"flow", "outcome"}),
		EventLogFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "event_log_failures_total",
			Help:      "Total number of Events rows that could not be written",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Total number of events that failed to publish",
		}),
		SyncRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of registry backup runs by result",
		}, []string{"result"}),
		SyncLastSuccessSec: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful registry backup",
		}),
	}
}

// RegistryObserver returns a callback suitable for registry.WithObserver.
func (m *Metrics) RegistryObserver() func(op string, err error) {
	return func(op string, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.RegistryOpsTotal.WithLabelValues(op, result).Inc()
	}
}
