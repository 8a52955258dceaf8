package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the planner and API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// BatchesTotal counts solved batches by engine status
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashroute_batches_total", Help: "Batches solved by status."},
		[]string{"status"},
	)
	// SolveSeconds tracks engine wall time per batch
	SolveSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "dashroute_batch_solve_seconds", Help: "Engine time per batch in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120}},
		[]string{"status"},
	)
	// BatchObjective records the summed latency objective of decoded batches
	BatchObjective = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "dashroute_batch_objective_seconds", Help: "Summed customer latency per decoded batch.", Buckets: prometheus.ExponentialBuckets(60, 2, 12)},
	)
	// RoutePointsTotal counts emitted output rows
	RoutePointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dashroute_route_points_total", Help: "Route point rows emitted."},
	)
	// PlansTotal counts finished plans by final status
	PlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dashroute_plans_total", Help: "Plans finished by status."},
		[]string{"status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(BatchesTotal)
		Registry.MustRegister(SolveSeconds)
		Registry.MustRegister(BatchObjective)
		Registry.MustRegister(RoutePointsTotal)
		Registry.MustRegister(PlansTotal)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
