// Package observability exposes Prometheus metrics and health endpoints for
// engines, operators, hooks and remote workers.
package observability

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Launch metrics
	launchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synode_launches_total",
			Help: "Total number of graph launches",
		},
		[]string{"graph", "status"},
	)

	activeLaunches = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synode_active_launches",
			Help: "Number of launches currently running",
		},
		[]string{"graph"},
	)

	// Agent metrics
	agentRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synode_agent_runs_total",
			Help: "Total number of agent invocations",
		},
		[]string{"graph", "agent", "outcome"},
	)

	agentRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synode_agent_run_duration_seconds",
			Help:    "Agent invocation duration in seconds, operations included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"graph", "agent"},
	)

	// Operator metrics
	operatorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synode_operator_calls_total",
			Help: "Total number of operator dispatches",
		},
		[]string{"kind", "alias", "status"},
	)

	operatorCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synode_operator_call_duration_seconds",
			Help:    "Operator dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Hook metrics
	hookFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synode_hook_failures_total",
			Help: "Total number of failed or cancelled hook tasks",
		},
		[]string{"action"},
	)

	// Remote metrics
	remoteTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synode_remote_tasks_total",
			Help: "Total number of remote tasks by side and status",
		},
		[]string{"task", "side", "status"},
	)

	// System metrics
	goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "synode_goroutines",
			Help: "Number of goroutines",
		},
	)

	initOnce sync.Once
)

// Status labels
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// InitMetrics registers the metrics with the default Prometheus registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			launchesTotal,
			activeLaunches,
			agentRunsTotal,
			agentRunDuration,
			operatorCallsTotal,
			operatorCallDuration,
			hookFailuresTotal,
			remoteTasksTotal,
			goroutines,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	h := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goroutines.Set(float64(goroutineCount()))
		h.ServeHTTP(w, r)
	})
}

// LaunchStarted marks a launch of graph as running and returns a function
// recording its completion.
func LaunchStarted(graph string) func(err error) {
	activeLaunches.WithLabelValues(graph).Inc()
	return func(err error) {
		activeLaunches.WithLabelValues(graph).Dec()
		launchesTotal.WithLabelValues(graph, statusOf(err)).Inc()
	}
}

// RecordAgentRun records one agent invocation. outcome is "ok", "error" or
// the name of the signal that ended it.
func RecordAgentRun(graph, agent, outcome string, duration time.Duration) {
	agentRunsTotal.WithLabelValues(graph, agent, outcome).Inc()
	agentRunDuration.WithLabelValues(graph, agent).Observe(duration.Seconds())
}

// RecordOperatorCall records one operator dispatch
func RecordOperatorCall(kind, alias string, err error, duration time.Duration) {
	operatorCallsTotal.WithLabelValues(kind, alias, statusOf(err)).Inc()
	operatorCallDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordHookFailure records a hook task that failed or was cancelled
func RecordHookFailure(action string) {
	hookFailuresTotal.WithLabelValues(action).Inc()
}

// RecordRemoteTask records a remote task on the "client" or "worker" side
func RecordRemoteTask(task, side string, err error) {
	remoteTasksTotal.WithLabelValues(task, side, statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err == nil {
		return StatusOK
	}
	return StatusError
}

func goroutineCount() int { return runtime.NumGoroutine() }
