// Package telemetry holds the prometheus instrumentation of the orchestration engine.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "surogate_orchestrator"

// Metrics provides Prometheus metrics for the orchestrator. A nil *Metrics is valid
// and records nothing, so components can be constructed without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	tasksRunning prometheus.Gauge

	streamsActive        *prometheus.GaugeVec
	ticksTotal           *prometheus.CounterVec
	tickDuration         *prometheus.HistogramVec
	lifecycleTransitions *prometheus.CounterVec

	clustersRegistered *prometheus.GaugeVec
	clustersSkipped    *prometheus.CounterVec
	nodeEvents         *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Mutating tasks by name and outcome (mutated, skipped, failed, timeout, cancelled).",
			},
			[]string{"task", "outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Wall time from execute to done, including waiting for readiness.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"task"},
		),
		tasksRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_running",
				Help:      "Tasks currently holding a worker slot.",
			},
		),

		streamsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "streams_active",
				Help:      "Open reconciliation streams per resource kind.",
			},
			[]string{"kind"},
		),
		ticksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Per-resource fetch results inside reconciliation ticks.",
			},
			[]string{"kind", "result"},
		),
		tickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Duration of one reconciliation tick.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		lifecycleTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_transitions_total",
				Help:      "Lifecycle state transitions applied by reconciliation.",
			},
			[]string{"kind", "from", "to"},
		),

		clustersRegistered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "clusters_registered",
				Help:      "Clusters with a live client bundle per zone.",
			},
			[]string{"zone"},
		),
		clustersSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clusters_skipped_total",
				Help:      "Clusters skipped at startup by reason.",
			},
			[]string{"zone", "reason"},
		),
		nodeEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_events_total",
				Help:      "Node change events forwarded to bookkeeping.",
			},
			[]string{"zone", "cluster", "type"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasksTotal, m.taskDuration, m.tasksRunning,
		m.streamsActive, m.ticksTotal, m.tickDuration, m.lifecycleTransitions,
		m.clustersRegistered, m.clustersSkipped, m.nodeEvents,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskStarted marks a worker slot as taken.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksRunning.Inc()
}

// TaskFinished records the outcome of a task and releases the running gauge.
func (m *Metrics) TaskFinished(task, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksRunning.Dec()
	m.tasksTotal.WithLabelValues(task, outcome).Inc()
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// StreamOpened increments the open stream gauge.
func (m *Metrics) StreamOpened(kind string) {
	if m == nil {
		return
	}
	m.streamsActive.WithLabelValues(kind).Inc()
}

// StreamClosed decrements the open stream gauge.
func (m *Metrics) StreamClosed(kind string) {
	if m == nil {
		return
	}
	m.streamsActive.WithLabelValues(kind).Dec()
}

// FetchResult counts one per-resource fetch (ok, transient, gone, error).
func (m *Metrics) FetchResult(kind, result string) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(kind, result).Inc()
}

// TickObserved records the duration of a whole tick.
func (m *Metrics) TickObserved(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// LifecycleTransition counts a lifecycle change.
func (m *Metrics) LifecycleTransition(kind, from, to string) {
	if m == nil {
		return
	}
	m.lifecycleTransitions.WithLabelValues(kind, from, to).Inc()
}

// ClusterRegistered increments the registered cluster gauge of a zone.
func (m *Metrics) ClusterRegistered(zone string) {
	if m == nil {
		return
	}
	m.clustersRegistered.WithLabelValues(zone).Inc()
}

// ClusterSkipped counts a cluster left out of the registry.
func (m *Metrics) ClusterSkipped(zone, reason string) {
	if m == nil {
		return
	}
	m.clustersSkipped.WithLabelValues(zone, reason).Inc()
}

// NodeEvent counts a forwarded node event.
func (m *Metrics) NodeEvent(zone, cluster, eventType string) {
	if m == nil {
		return
	}
	m.nodeEvents.WithLabelValues(zone, cluster, eventType).Inc()
}
