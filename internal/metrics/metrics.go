package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PlatformFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brandscout_platform_fetches_total",
		Help: "Total platform fetch calls",
	}, []string{"platform"})
	PlatformErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brandscout_platform_errors_total",
		Help: "Platform fetches that failed after retry exhaustion",
	}, []string{"platform"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brandscout_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	ScoringCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandscout_scoring_calls_total",
		Help: "Total content scoring service calls",
	})
	ScoringFixups = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandscout_scoring_fixups_total",
		Help: "Scoring responses that needed clamping or defaulting",
	})
	ResearchCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandscout_research_cache_hits_total",
		Help: "Research lookups served from cache",
	})
	ResearchCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandscout_research_cache_misses_total",
		Help: "Research lookups that submitted a new job",
	})
	ResearchJobFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandscout_research_job_failures_total",
		Help: "Research jobs that failed or timed out",
	})
	WeightFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandscout_weight_fallbacks_total",
		Help: "Fit score computations that substituted default weights",
	})
	AnalysisRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandscout_analysis_runs_total",
		Help: "Total analysis pipeline runs",
	})
	AnalysisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandscout_analysis_errors_total",
		Help: "Analysis runs that failed outright",
	})
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "brandscout_analysis_duration_seconds",
		Help:    "Analysis pipeline run duration seconds",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		PlatformFetches, PlatformErrors, APIRetries,
		ScoringCalls, ScoringFixups,
		ResearchCacheHits, ResearchCacheMisses, ResearchJobFailures,
		WeightFallbacks,
		AnalysisRuns, AnalysisErrors, AnalysisDuration,
	)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
// Empty addr disables the server.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveAnalysisDuration records a run duration.
func ObserveAnalysisDuration(start time.Time) {
	AnalysisDuration.Observe(time.Since(start).Seconds())
}
