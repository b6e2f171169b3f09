package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the timetable solver pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	solveDuration   *prometheus.HistogramVec
	solveObjective  *prometheus.GaugeVec
	entriesWritten  *prometheus.CounterVec
	runStatusTotal  *prometheus.CounterVec
	conflictsRaised *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	solveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_solve_duration_seconds",
		Help:    "Wall-clock duration of a solve attempt, by scope",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"scope"})

	solveObjective := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "timetable_solve_objective_score",
		Help: "Objective value of the most recently completed solve, by run",
	}, []string{"run_id"})

	entriesWritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_entries_written_total",
		Help: "Total timetable entries persisted by a run",
	}, []string{"run_id"})

	runStatusTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_run_status_total",
		Help: "Count of timetable runs by terminal status",
	}, []string{"status"})

	conflictsRaised := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_conflicts_total",
		Help: "Count of conflicts raised during validation or diagnosis, by severity",
	}, []string{"severity"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		solveDuration, solveObjective, entriesWritten, runStatusTotal, conflictsRaised,
		goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		solveDuration:   solveDuration,
		solveObjective:  solveObjective,
		entriesWritten:  entriesWritten,
		runStatusTotal:  runStatusTotal,
		conflictsRaised: conflictsRaised,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveSolve records the wall time of one solve attempt for the given scope
// ("year" or "program").
func (m *MetricsService) ObserveSolve(scope string, duration time.Duration) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordObjective publishes the objective score reached by a run.
func (m *MetricsService) RecordObjective(runID string, value float64) {
	if m == nil {
		return
	}
	m.solveObjective.WithLabelValues(runID).Set(value)
}

// RecordEntriesWritten increments the persisted entry count for a run.
func (m *MetricsService) RecordEntriesWritten(runID string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.entriesWritten.WithLabelValues(runID).Add(float64(count))
}

// RecordRunStatus increments the terminal-status counter for a completed run.
func (m *MetricsService) RecordRunStatus(status string) {
	if m == nil {
		return
	}
	m.runStatusTotal.WithLabelValues(status).Inc()
}

// RecordConflict increments the conflict counter for a given severity.
func (m *MetricsService) RecordConflict(severity string) {
	if m == nil {
		return
	}
	m.conflictsRaised.WithLabelValues(severity).Inc()
}
