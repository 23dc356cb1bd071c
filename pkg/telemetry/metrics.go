package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "x402relay"

var Metrics = struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	FetchTotal           *prometheus.CounterVec
	RelayTotal           *prometheus.CounterVec
	RelayDuration        prometheus.Histogram
	PaymentsTotal        *prometheus.CounterVec
	ToolExecutions       *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec
	TaskTransitionsTotal *prometheus.CounterVec
	ActiveTasks          prometheus.Gauge
	ErrorsTotal          *prometheus.CounterVec
}{
	RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total number of inbound agent requests by method and status.",
	}, []string{"method", "status"}),

	RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Inbound agent request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"}),

	FetchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_total",
		Help:      "Paywall-aware fetches by outcome (ok, paid, timeout, unreachable, provider_error, relay_error).",
	}, []string{"outcome"}),

	RelayTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_total",
		Help:      "Payment relays by outcome (ok, degraded, failed, timeout, malformed, error).",
	}, []string{"outcome"}),

	RelayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "relay_duration_seconds",
		Help:      "Time spent waiting on the payment agent in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 90},
	}),

	PaymentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_total",
		Help:      "Payment attempts by outcome (free, settled, rejected, unsupported, duplicate, error).",
	}, []string{"outcome"}),

	ToolExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_executions_total",
		Help:      "Total tool executions by tool name and status.",
	}, []string{"tool", "status"}),

	ToolDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tool_duration_seconds",
		Help:      "Tool execution duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"tool"}),

	TaskTransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_transitions_total",
		Help:      "Task state transitions by target state.",
	}, []string{"state"}),

	ActiveTasks: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_tasks",
		Help:      "Number of tasks that have not reached a terminal state.",
	}),

	ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Total errors by component.",
	}, []string{"component"}),
}
