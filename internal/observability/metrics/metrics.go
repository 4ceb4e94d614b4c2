package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_render_duration_seconds",
		Help:    "Duration of full page renders by page type and result",
		Buckets: prometheus.DefBuckets,
	}, []string{"page_type", "result"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_pipeline_stage_duration_seconds",
		Help:    "Duration of each render pipeline stage",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"stage", "result"})

	cacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cache_operations_total",
		Help: "Cache lookups by category and result",
	}, []string{"category", "result"})

	cacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_cache_entries",
		Help: "Live entries per cache category after the last sweep",
	}, []string{"category"})

	coalescedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_template_fetches_total",
		Help: "Template storage fetches; shared counts callers served by an in-flight fetch",
	}, []string{"result"})

	sectionFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_section_fallbacks_total",
		Help: "Section renders that needed a fallback tier",
	}, []string{"tier"})

	themeInstalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_theme_installs_total",
		Help: "Theme install attempts by result",
	}, []string{"result"})

	studioClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_studio_clients",
		Help: "Connected Theme Studio live-reload clients",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveRender records the duration of a full page render
func ObserveRender(pageType, result string, duration time.Duration) {
	renderDuration.WithLabelValues(pageType, result).Observe(duration.Seconds())
}

// ObserveStage records one pipeline stage
func ObserveStage(stage, result string, duration time.Duration) {
	stageDuration.WithLabelValues(stage, result).Observe(duration.Seconds())
}

// ObserveCache counts a cache lookup
func ObserveCache(category string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheOperations.WithLabelValues(category, result).Inc()
}

// SetCacheEntries sets the live entry gauge for a category
func SetCacheEntries(category string, count int) {
	if count < 0 {
		count = 0
	}
	cacheEntries.WithLabelValues(category).Set(float64(count))
}

// ObserveTemplateFetch counts a storage fetch ("fetched", "shared" or "error")
func ObserveTemplateFetch(result string) {
	coalescedFetches.WithLabelValues(result).Inc()
}

// ObserveSectionFallback counts a section rendered through a fallback tier
func ObserveSectionFallback(tier string) {
	sectionFallbacks.WithLabelValues(tier).Inc()
}

// ObserveThemeInstall counts a theme install attempt
func ObserveThemeInstall(result string) {
	themeInstalls.WithLabelValues(result).Inc()
}

// IncrementStudioClients increments the connected studio client gauge.
func IncrementStudioClients() {
	studioClients.Inc()
}

// DecrementStudioClients decrements the connected studio client gauge.
func DecrementStudioClients() {
	studioClients.Dec()
}
