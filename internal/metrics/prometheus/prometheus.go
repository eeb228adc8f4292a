// Package prometheus provides a Prometheus implementation of the metrics
// interface.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"salestrack/backend/internal/metrics"
)

type PrometheusMetrics struct {
	saleCreatedTotal   prometheus.Counter
	saleCompletedTotal *prometheus.CounterVec
	saleCancelledTotal *prometheus.CounterVec
	saleConflictTotal  *prometheus.CounterVec

	sweepScannedTotal   prometheus.Counter
	sweepProcessedTotal *prometheus.CounterVec
	sweepDuration       prometheus.Histogram
}

var _ metrics.Metrics = (*PrometheusMetrics)(nil)

// Config holds configuration for PrometheusMetrics.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "salestrack").
	Namespace string
	// Registry is the Prometheus registry to use. If nil, the default
	// registry is used.
	Registry prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		Namespace: "salestrack",
		Registry:  prometheus.DefaultRegisterer,
	}
}

func New(cfg Config) *PrometheusMetrics {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)

	return &PrometheusMetrics{
		saleCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sale_created_total",
			Help:      "Total number of sales created in pending state",
		}),

		saleCompletedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sale_completed_total",
			Help:      "Total number of sales completed, by source (manual or sweep)",
		}, []string{"source"}),

		saleCancelledTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sale_cancelled_total",
			Help:      "Total number of sales cancelled, by prior status",
		}, []string{"from_status"}),

		saleConflictTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sale_status_conflict_total",
			Help:      "Total number of lost compare-and-set races, by operation",
		}, []string{"operation"}),

		sweepScannedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sweep_scanned_total",
			Help:      "Total number of stale pending sales scanned by the recovery sweep",
		}),

		sweepProcessedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "sweep_processed_total",
			Help:      "Total number of sales processed by the recovery sweep",
		}, []string{"success"}),

		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one recovery sweep in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
	}
}

func (p *PrometheusMetrics) SaleCreated() {
	p.saleCreatedTotal.Inc()
}

func (p *PrometheusMetrics) SaleCompleted(source string) {
	p.saleCompletedTotal.WithLabelValues(source).Inc()
}

func (p *PrometheusMetrics) SaleCancelled(fromStatus string) {
	p.saleCancelledTotal.WithLabelValues(fromStatus).Inc()
}

func (p *PrometheusMetrics) SaleConflict(operation string) {
	p.saleConflictTotal.WithLabelValues(operation).Inc()
}

func (p *PrometheusMetrics) SweepScanned(count int) {
	p.sweepScannedTotal.Add(float64(count))
}

func (p *PrometheusMetrics) SweepProcessed(success bool) {
	successStr := "false"
	if success {
		successStr = "true"
	}
	p.sweepProcessedTotal.WithLabelValues(successStr).Inc()
}

func (p *PrometheusMetrics) SweepDuration(d time.Duration) {
	p.sweepDuration.Observe(d.Seconds())
}
