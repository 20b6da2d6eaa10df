// Package metrics registers the overlay engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_fetches_total",
		Help: "Score fetches by data source and outcome (ok, error, stale)",
	}, []string{"source", "outcome"})
	FetchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "overlay_fetch_duration_ms",
		Help:    "Score fetch duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	}, []string{"source"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_cache_hits_total",
		Help: "Score cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_cache_misses_total",
		Help: "Score cache misses",
	})
	CacheErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overlay_cache_errors_total",
		Help: "Score cache backend errors",
	})
	SelectionRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_selection_rejected_total",
		Help: "Selection requests naming an unknown layer",
	}, []string{"kind"})
	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_searches_total",
		Help: "Region searches by status (resolved, not_found)",
	}, []string{"status"})
	RendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_renders_total",
		Help: "Overlay documents rendered by encoding",
	}, []string{"format"})
	OrphanRegions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "overlay_orphan_regions",
		Help: "Scored regions missing from the base geometry in the last render",
	})
	SurfaceClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "overlay_surface_clients",
		Help: "Connected display surfaces (websocket and SSE)",
	})
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overlay_reports_total",
		Help: "Region reports submitted by severity",
	}, []string{"severity"})
)

func init() {
	prometheus.MustRegister(FetchesTotal)
	prometheus.MustRegister(FetchDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheErrorsTotal)
	prometheus.MustRegister(SelectionRejectedTotal)
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(RendersTotal)
	prometheus.MustRegister(OrphanRegions)
	prometheus.MustRegister(SurfaceClients)
	prometheus.MustRegister(ReportsTotal)
}

// Handler exposes the default registry for scraping at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
