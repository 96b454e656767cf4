package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Split request metrics
	SplitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defilens_split_requests_total",
			Help: "Total number of split requests",
		},
		[]string{"orchestrator", "metric", "status"}, // status: success|error|empty
	)

	SplitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "defilens_split_duration_seconds",
			Help:    "Split request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"orchestrator", "metric"},
	)

	SplitSeriesCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "defilens_split_series_count",
			Help:    "Number of series in split responses",
			Buckets: []float64{0, 1, 2, 5, 10, 15, 21},
		},
		[]string{"orchestrator"},
	)

	// OthersClamped counts timestamps where the residual bucket went
	// negative and was clamped to zero. A steadily growing count indicates
	// categorization or timing skew between upstream sources.
	OthersClamped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defilens_others_clamped_total",
			Help: "Total number of timestamps where the Others residual was clamped at zero",
		},
		[]string{"orchestrator"},
	)

	// Upstream API metrics
	UpstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defilens_upstream_calls_total",
			Help: "Total number of upstream API calls",
		},
		[]string{"upstream", "endpoint", "status"}, // status: success|error|rate_limited
	)

	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "defilens_upstream_latency_seconds",
			Help:    "Upstream API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"upstream", "endpoint"},
	)

	// Category lookup cache metrics
	CategoryLookupHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defilens_category_lookup_total",
			Help: "Protocol category lookup cache accesses",
		},
		[]string{"result"}, // result: hit|miss|refresh_error
	)

	// Result cache metrics
	ResultCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defilens_result_cache_total",
			Help: "Split result cache accesses",
		},
		[]string{"tier", "result"}, // tier: redis|memory; result: hit|miss|error
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defilens_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "defilens_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "defilens_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(SplitRequests)
	prometheus.MustRegister(SplitDuration)
	prometheus.MustRegister(SplitSeriesCount)
	prometheus.MustRegister(OthersClamped)

	prometheus.MustRegister(UpstreamCalls)
	prometheus.MustRegister(UpstreamLatency)

	prometheus.MustRegister(CategoryLookupHits)
	prometheus.MustRegister(ResultCache)

	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSplitRequest records one orchestrator invocation
func RecordSplitRequest(orchestrator, metric string, duration time.Duration, seriesCount int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else if seriesCount == 0 {
		status = "empty"
	}

	SplitRequests.WithLabelValues(orchestrator, metric, status).Inc()
	SplitDuration.WithLabelValues(orchestrator, metric).Observe(duration.Seconds())
	SplitSeriesCount.WithLabelValues(orchestrator).Observe(float64(seriesCount))
}

// RecordOthersClamped records clamped residual timestamps for an orchestrator
func RecordOthersClamped(orchestrator string, count int) {
	if count > 0 {
		OthersClamped.WithLabelValues(orchestrator).Add(float64(count))
	}
}

// RecordUpstreamCall records an upstream API call
func RecordUpstreamCall(upstream, endpoint string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	UpstreamCalls.WithLabelValues(upstream, endpoint, status).Inc()
	UpstreamLatency.WithLabelValues(upstream, endpoint).Observe(latency.Seconds())
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}
