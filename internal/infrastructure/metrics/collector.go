// Package metrics exposes pipeline counters through Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

// Collector records link outcomes and run totals.
type Collector struct {
	outcomes    *prometheus.CounterVec
	runs        prometheus.Counter
	runDuration prometheus.Histogram
	lastRun     prometheus.Gauge
	lastCounts  *prometheus.GaugeVec
}

var _ ports.Metrics = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recipe_collector_links_total",
			Help: "Links processed, by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recipe_collector_runs_total",
			Help: "Completed collection runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recipe_collector_run_duration_seconds",
			Help:    "Wall time of collection runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recipe_collector_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		lastCounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "recipe_collector_last_run_links",
			Help: "Per-outcome link counts of the last run.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.outcomes, c.runs, c.runDuration, c.lastRun, c.lastCounts)
	return c
}

// ObserveOutcome counts one processed link by its outcome.
func (c *Collector) ObserveOutcome(outcome domain.Outcome) {
	c.outcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveRun records a completed run and its per-outcome totals.
func (c *Collector) ObserveRun(report domain.RunReport) {
	c.runs.Inc()
	c.runDuration.Observe(report.Duration().Seconds())
	c.lastRun.Set(float64(report.FinishedAt.Unix()))
	c.lastCounts.WithLabelValues(string(domain.OutcomeSuccess)).Set(float64(report.State.SuccessCount))
	c.lastCounts.WithLabelValues(string(domain.OutcomeFailed)).Set(float64(report.State.FailedCount))
	c.lastCounts.WithLabelValues(string(domain.OutcomeSkipped)).Set(float64(report.State.SkippedCount))
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Push sends everything in gatherer to a Prometheus Pushgateway under job.
func Push(ctx context.Context, url, job string, gatherer prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
