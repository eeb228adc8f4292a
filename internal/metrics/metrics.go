// Package metrics defines the observability hooks for the sale lifecycle
// engine and the recovery sweep.
package metrics

import "time"

// Metrics is implemented by concrete backends (see the prometheus subpackage)
// or by NoopMetrics when metrics are disabled.
type Metrics interface {
	SaleCreated()
	// SaleCompleted records a pending-to-completed transition. source is
	// "manual" for operator-driven completion and "sweep" for the recovery
	// scheduler's force-completion.
	SaleCompleted(source string)
	SaleCancelled(fromStatus string)
	// SaleConflict records a lost compare-and-set race.
	SaleConflict(operation string)

	SweepScanned(count int)
	SweepProcessed(success bool)
	SweepDuration(d time.Duration)
}

const (
	SourceManual = "manual"
	SourceSweep  = "sweep"
)

type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

func (NoopMetrics) SaleCreated() {}
func (NoopMetrics) SaleCompleted(source string) {}
func (NoopMetrics) SaleCancelled(fromStatus string) {}
func (NoopMetrics) SaleConflict(operation string) {}
func (NoopMetrics) SweepScanned(count int) {}
func (NoopMetrics) SweepProcessed(success bool) {}
func (NoopMetrics) SweepDuration(d time.Duration) {}
