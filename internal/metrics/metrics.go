// Package metrics exposes the plugin's daemon-mode Prometheus gauges and
// counters. The per-invocation CLI mode never starts this server: a
// process that lives for one hook event has nothing worth scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncplugin_jobs_processed_total",
		Help: "Sync jobs processed, by terminal outcome.",
	}, []string{"outcome"})

	ReconcileGapsFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "syncplugin_reconcile_gaps_found_total",
		Help: "Gaps detected across all reconciliation passes.",
	})

	BreakerOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "syncplugin_breaker_open",
		Help: "1 if the Target circuit breaker is currently open, else 0.",
	})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "syncplugin_queue_depth",
		Help: "Job queue depth by status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(JobsProcessed, ReconcileGapsFound, BreakerOpen, QueueDepth)
}

// Serve starts the metrics HTTP server on addr. It blocks until the
// server errors or is shut down by the caller closing the listener, so
// callers run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
