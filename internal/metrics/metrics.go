// Package metrics exposes Prometheus collectors for the link engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sweepsTotal           prometheus.Counter
	sweepDurationSeconds  prometheus.Histogram
	sweepDispatchedLinks  prometheus.Histogram
	dispatchesTotal       *prometheus.CounterVec
	jobsTotal             *prometheus.CounterVec
	scrapeDurationSeconds *prometheus.HistogramVec
	discoveredLinksTotal  prometheus.Counter
	activeWorkers         prometheus.Gauge

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call more than once;
// observation helpers are no-ops until it runs.
func Init() {
	once.Do(func() {
		sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkcycle_sweeps_total",
			Help: "Total number of scheduler sweeps started.",
		})

		sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkcycle_sweep_duration_seconds",
			Help:    "Histogram of sweep durations.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60},
		})

		sweepDispatchedLinks = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkcycle_sweep_dispatched_links",
			Help:    "Histogram of links dispatched per sweep.",
			Buckets: []float64{0, 1, 5, 10, 20, 50},
		})

		dispatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcycle_dispatches_total",
				Help: "Total scrape jobs dispatched, labeled by content type.",
			},
			[]string{"content_type"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkcycle_jobs_total",
				Help: "Total scrape jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkcycle_scrape_duration_seconds",
				Help:    "Histogram of scrape pipeline durations, labeled by content type.",
				Buckets: []float64{1, 2.5, 5, 10, 20, 45, 90},
			},
			[]string{"content_type"},
		)

		discoveredLinksTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkcycle_discovered_links_total",
			Help: "Total links upserted through discovery.",
		})

		activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "linkcycle_active_workers",
			Help: "Number of workers currently processing a job.",
		})
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSweepStarted increments the sweep counter.
func ObserveSweepStarted() {
	if sweepsTotal == nil {
		return
	}
	sweepsTotal.Inc()
}

// ObserveSweepFinished records the dispatch count and duration of a sweep.
func ObserveSweepFinished(dispatched int, duration time.Duration) {
	if sweepDurationSeconds == nil {
		return
	}
	sweepDurationSeconds.Observe(duration.Seconds())
	sweepDispatchedLinks.Observe(float64(dispatched))
}

// ObserveDispatch counts one dispatched job for a content type.
func ObserveDispatch(contentType string) {
	if dispatchesTotal == nil {
		return
	}
	dispatchesTotal.WithLabelValues(contentType).Inc()
}

// ObserveJob counts one finished job for the given status.
func ObserveJob(status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveScrape records the duration of one scrape pipeline run.
func ObserveScrape(contentType string, duration time.Duration) {
	if scrapeDurationSeconds == nil {
		return
	}
	scrapeDurationSeconds.WithLabelValues(contentType).Observe(duration.Seconds())
}

// ObserveDiscovered counts links upserted through discovery.
func ObserveDiscovered(count int) {
	if discoveredLinksTotal == nil || count <= 0 {
		return
	}
	discoveredLinksTotal.Add(float64(count))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}
