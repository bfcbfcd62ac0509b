package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type coreMetrics struct {
	busPublishTotal *prometheus.CounterVec
	busDroppedTotal *prometheus.CounterVec
	busQueueDepth   *prometheus.GaugeVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	taskTotal    *prometheus.CounterVec
	taskDuration prometheus.Histogram

	registeredAgents prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *coreMetrics
)

func getMetrics() *coreMetrics {
	metricsOnce.Do(func() {
		m := &coreMetrics{
			busPublishTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bus_publish_total",
					Help: "Total messages published by message type.",
				},
				[]string{"type"},
			),
			busDroppedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bus_dropped_total",
					Help: "Total messages dropped by reason.",
				},
				[]string{"reason"},
			),
			busQueueDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "bus_queue_depth",
					Help: "Current per-recipient queue depth.",
				},
				[]string{"recipient"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			taskTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "task_total",
					Help: "Total coordinator tasks by terminal state.",
				},
				[]string{"state"},
			),
			taskDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "End-to-end coordinator task duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			registeredAgents: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "registered_agents",
					Help: "Current number of registered agents.",
				},
			),
		}

		prometheus.MustRegister(
			m.busPublishTotal,
			m.busDroppedTotal,
			m.busQueueDepth,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.taskTotal,
			m.taskDuration,
			m.registeredAgents,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration. Safe to call multiple times.
func EnsureRegistered() {
	getMetrics()
}

// RecordBusPublish records a published message by type.
func RecordBusPublish(msgType string) {
	getMetrics().busPublishTotal.WithLabelValues(msgType).Inc()
}

// RecordBusDropped records a dropped message by reason.
func RecordBusDropped(reason string) {
	getMetrics().busDroppedTotal.WithLabelValues(reason).Inc()
}

// SetBusQueueDepth updates the queue depth gauge for a recipient.
func SetBusQueueDepth(recipient string, depth int) {
	getMetrics().busQueueDepth.WithLabelValues(recipient).Set(float64(depth))
}

// RecordToolExecution records a tool execution outcome.
func RecordToolExecution(tool string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordTask records a coordinator task reaching a terminal state.
func RecordTask(state string, duration time.Duration) {
	m := getMetrics()
	m.taskTotal.WithLabelValues(state).Inc()
	m.taskDuration.Observe(duration.Seconds())
}

// SetRegisteredAgents updates the registered agent gauge.
func SetRegisteredAgents(n int) {
	getMetrics().registeredAgents.Set(float64(n))
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
