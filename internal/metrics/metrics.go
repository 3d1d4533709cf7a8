package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	classifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_classify_total",
		Help: "Classifications by category and method (remote|keyword|workflow)",
	}, []string{"category", "method"})

	classifyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agri_classify_latency_ms",
		Help:    "Classification latency in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	sourceLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agri_source_latency_ms",
		Help:    "Knowledge-source query latency in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2000},
	}, []string{"source"})

	sourceResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agri_source_results",
		Help:    "Passages returned per knowledge-source query",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
	}, []string{"source"})

	sourceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_source_errors_total",
		Help: "Failed knowledge-source queries",
	}, []string{"source"})

	generationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_generation_total",
		Help: "Generation calls by provider and status (success|fallback|error)",
	}, []string{"provider", "status"})

	generationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agri_generation_latency_ms",
		Help:    "Generation latency in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
	}, []string{"provider"})

	workflowTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_workflow_transitions_total",
		Help: "Workflow state transitions by target status",
	}, []string{"status"})

	workflowsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agri_workflows_active",
		Help: "Workflows currently held in memory",
	})

	summaryAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agri_summary_attempts",
		Help:    "Generation attempts needed per workflow summary",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

// ObserveClassify records one classification.
func ObserveClassify(category, method string, start time.Time) {
	ensureRegistered()
	classifyTotal.WithLabelValues(category, method).Inc()
	classifyLatency.Observe(float64(time.Since(start).Milliseconds()))
}

// ObserveSource records latency and result size for one source query.
func ObserveSource(source string, start time.Time, results int, err error) {
	ensureRegistered()
	sourceLatency.WithLabelValues(source).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		sourceErrors.WithLabelValues(source).Inc()
		return
	}
	sourceResults.WithLabelValues(source).Observe(float64(results))
}

// ObserveGeneration records one generation call.
func ObserveGeneration(provider, status string, start time.Time) {
	ensureRegistered()
	generationTotal.WithLabelValues(provider, status).Inc()
	generationLatency.WithLabelValues(provider).Observe(float64(time.Since(start).Milliseconds()))
}

// IncWorkflowTransition counts a transition into status.
func IncWorkflowTransition(status string) {
	ensureRegistered()
	workflowTransitions.WithLabelValues(status).Inc()
}

// SetWorkflowsActive reports the size of the workflow table.
func SetWorkflowsActive(n int) {
	ensureRegistered()
	workflowsActive.Set(float64(n))
}

// ObserveSummaryAttempts records how many tries a summary took.
func ObserveSummaryAttempts(n int) {
	ensureRegistered()
	summaryAttempts.Observe(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	ensureRegistered()
	return promhttp.Handler()
}

// Collectors exposes all collectors for registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		classifyTotal, classifyLatency,
		sourceLatency, sourceResults, sourceErrors,
		generationTotal, generationLatency,
		workflowTransitions, workflowsActive, summaryAttempts,
	}
}
