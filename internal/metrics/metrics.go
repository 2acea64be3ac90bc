// Package metrics owns the Prometheus collectors exported on /metrics.
//
// Every recording method is safe on a nil *Metrics so that services and
// tests can run without a registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agencyledger"

// Admission outcomes.
const (
	OutcomeCommitted  = "committed"
	OutcomeRejected   = "rejected"
	OutcomeRolledBack = "rolled_back"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"
)

// Admission paths.
const (
	PathTransaction = "transaction"
	PathFallback    = "fallback"
	PathNone        = "none"
)

type Metrics struct {
	registry *prometheus.Registry

	admissions           *prometheus.CounterVec
	compensationFailures *prometheus.CounterVec
	milestonesCompleted  prometheus.Counter
	publishFailures      prometheus.Counter
	remindersCreated     prometheus.Counter
	eventsConsumed       *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// New builds a private registry with the ledger collectors plus the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Budgeted payment and expense mutations by terminal outcome.",
		}, []string{"kind", "path", "outcome"}),
		compensationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensation_failures_total",
			Help:      "Fallback compensations that could not undo an over-budget write.",
		}, []string{"kind"}),
		milestonesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "milestones_auto_completed_total",
			Help:      "Milestones completed by a matching payment.",
		}),
		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Ledger events that could not be published.",
		}),
		remindersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_created_total",
			Help:      "Overdue project reminders created by the reminder processor.",
		}),
		eventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Ledger events handled by the audit worker.",
		}, []string{"result"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAdmission(kind, path, outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(kind, path, outcome).Inc()
}

func (m *Metrics) CompensationFailed(kind string) {
	if m == nil {
		return
	}
	m.compensationFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) MilestoneCompleted() {
	if m == nil {
		return
	}
	m.milestonesCompleted.Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) RemindersCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remindersCreated.Add(float64(n))
}

func (m *Metrics) EventConsumed(result string) {
	if m == nil {
		return
	}
	m.eventsConsumed.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// AdmissionCount reads the current value of one admissions series.
func (m *Metrics) AdmissionCount(kind, path, outcome string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.admissions.WithLabelValues(kind, path, outcome))
}

func (m *Metrics) CompensationFailureCount(kind string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.compensationFailures.WithLabelValues(kind))
}

func (m *Metrics) EventConsumedCount(result string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.eventsConsumed.WithLabelValues(result))
}
