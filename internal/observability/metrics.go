// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Coordinator metrics
	OpenDecisions   *prometheus.CounterVec
	OpenTabs        prometheus.Gauge
	InFlight        prometheus.Gauge
	CooldownEntries prometheus.Gauge
	TabCreate       prometheus.Histogram
	TabsClosed      prometheus.Counter

	// Detector metrics
	DetectorScans      *prometheus.CounterVec
	DetectorCandidates *prometheus.CounterVec

	// Favorites metrics
	FavoritesQueries *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration prometheus.Histogram
	RateLimited  prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "autofilter"
	}

	return &Metrics{
		OpenDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "open_decisions_total",
			Help:      "Token open decisions by outcome",
		}, []string{"outcome"}),
		OpenTabs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "open_tabs",
			Help:      "Token tabs currently tracked as open",
		}),
		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "in_flight",
			Help:      "Tab creations in progress",
		}),
		CooldownEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "cooldown_entries",
			Help:      "Tokens currently held in the cooldown table",
		}),
		TabCreate: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "tab_create_seconds",
			Help:      "Latency of background tab creation",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		TabsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "tabs_closed_total",
			Help:      "Token tabs reported closed by the browser",
		}),

		DetectorScans: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "scans_total",
			Help:      "Listing page scans by site",
		}, []string{"site"}),
		DetectorCandidates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "candidates_total",
			Help:      "Token candidates emitted to the coordinator by site",
		}, []string{"site"}),

		FavoritesQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "favorites",
			Name:      "queries_total",
			Help:      "Favorites store operations by operation and status",
		}, []string{"operation", "status"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code",
		}, []string{"method", "code"}),
		HTTPDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limit",
		}),
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOpenDecision increments the decision counter for one outcome.
func RecordOpenDecision(outcome string) {
	DefaultMetrics.OpenDecisions.WithLabelValues(outcome).Inc()
}

// UpdateCoordinatorGauges sets the table size gauges.
func UpdateCoordinatorGauges(openTabs, inFlight, cooldowns int) {
	DefaultMetrics.OpenTabs.Set(float64(openTabs))
	DefaultMetrics.InFlight.Set(float64(inFlight))
	DefaultMetrics.CooldownEntries.Set(float64(cooldowns))
}

// RecordTabCreate observes tab creation latency.
func RecordTabCreate(seconds float64) {
	DefaultMetrics.TabCreate.Observe(seconds)
}

func RecordTabClosed() {
	DefaultMetrics.TabsClosed.Inc()
}

// RecordScan records one detector scan and the candidates it emitted.
func RecordScan(site string, candidates int) {
	DefaultMetrics.DetectorScans.WithLabelValues(site).Inc()
	if candidates > 0 {
		DefaultMetrics.DetectorCandidates.WithLabelValues(site).Add(float64(candidates))
	}
}

// RecordFavoritesQuery records a favorites store operation.
func RecordFavoritesQuery(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.FavoritesQueries.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records one served API request.
func RecordHTTPRequest(method string, code int, d time.Duration) {
	DefaultMetrics.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	DefaultMetrics.HTTPDuration.Observe(d.Seconds())
}

func RecordRateLimited() {
	DefaultMetrics.RateLimited.Inc()
}
