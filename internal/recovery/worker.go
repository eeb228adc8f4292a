// Package recovery force-completes pending sales that have outlived their
// useful life. Sales stuck in pending are usually abandoned carts or crashed
// clients; the sweep turns them into completed sales so the books and the
// shelf agree again.
package recovery

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"salestrack/backend/internal/cache"
	"salestrack/backend/internal/domain"
	"salestrack/backend/internal/metrics"
	"salestrack/backend/internal/service"
	"salestrack/backend/internal/store"
)

// Logger is the minimal logging surface the worker needs. The default
// implementation routes to the standard library logger.
type Logger interface {
	Printf(format string, args ...any)
}

type stdLogger struct{}

func (stdLogger) Printf(format string, args ...any) {
	log.Printf("[recovery] "+format, args...)
}

// Config controls sweep cadence and scope. Zero values fall back to the
// defaults below.
type Config struct {
	// Interval between automatic sweeps.
	Interval time.Duration
	// MaxAge is how long a sale may stay pending before the sweep
	// force-completes it.
	MaxAge time.Duration
	// BatchLimit caps how many sales one sweep will process.
	BatchLimit int

	Logger Logger
}

const (
	defaultInterval   = time.Hour
	defaultMaxAge     = 3 * time.Hour
	defaultBatchLimit = 500
)

// Worker runs the periodic sweep and serves the pending-backlog stats. It is
// safe to trigger a sweep manually while the ticker is running: every
// force-completion goes through the same compare-and-set transition, so two
// overlapping sweeps resolve each sale exactly once.
type Worker struct {
	svc     *service.Service
	repo    store.Repository
	cache   cache.PendingStatsCache
	metrics metrics.Metrics
	cfg     Config

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewWorker(svc *service.Service, repo store.Repository, c cache.PendingStatsCache, m metrics.Metrics, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = stdLogger{}
	}
	if c == nil {
		c = cache.NoopCache{}
	}
	if m == nil {
		m = metrics.NoopMetrics{}
	}

	return &Worker{
		svc:     svc,
		repo:    repo,
		cache:   c,
		metrics: m,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the sweep loop. The first sweep runs after one full
// interval, not immediately, so a crash-looping process does not hammer the
// store on boot.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
	})
}

func (w *Worker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.cfg.Logger.Printf("sweep loop started interval=%s max_age=%s", w.cfg.Interval, w.cfg.MaxAge)
	for {
		select {
		case <-w.stopCh:
			w.cfg.Logger.Printf("sweep loop stopped")
			return
		case <-ticker.C:
			result, err := w.AutoComplete(context.Background(), w.cfg.MaxAge)
			if err != nil {
				w.cfg.Logger.Printf("ERROR: sweep aborted: %v", err)
				continue
			}
			if result.Completed > 0 || result.Errors > 0 {
				w.cfg.Logger.Printf("sweep done completed=%d errors=%d", result.Completed, result.Errors)
			}
		}
	}
}

// TriggerNow runs one sweep with the configured max age, outside the ticker.
func (w *Worker) TriggerNow(ctx context.Context) (domain.SweepResult, error) {
	return w.AutoComplete(ctx, w.cfg.MaxAge)
}

// AutoComplete force-completes every pending sale created before now-maxAge.
// Failing to list the backlog aborts the sweep; a failure on an individual
// sale is logged and counted, and the sweep moves on. A sale that loses its
// compare-and-set race was handled by someone else and still counts as an
// error here, not a completion.
func (w *Worker) AutoComplete(ctx context.Context, maxAge time.Duration) (domain.SweepResult, error) {
	start := time.Now()
	cutoff := time.Now().UTC().Add(-maxAge)

	stale, err := w.repo.ListPendingOlderThan(ctx, cutoff, w.cfg.BatchLimit)
	if err != nil {
		return domain.SweepResult{}, err
	}
	w.metrics.SweepScanned(len(stale))

	var result domain.SweepResult
	for _, tx := range stale {
		if _, err := w.svc.ForceCompleteSale(ctx, tx.ID); err != nil {
			result.Errors++
			w.metrics.SweepProcessed(false)
			if errors.Is(err, store.ErrConflict) {
				w.cfg.Logger.Printf("sale %s transitioned concurrently, skipping", tx.ID)
			} else {
				w.cfg.Logger.Printf("ERROR: force-complete sale %s: %v", tx.ID, err)
			}
			continue
		}
		result.Completed++
		w.metrics.SweepProcessed(true)
	}

	w.metrics.SweepDuration(time.Since(start))
	return result, nil
}

// PendingStats reports the pending backlog, served from cache when a recent
// scan is available.
func (w *Worker) PendingStats(ctx context.Context) (domain.PendingStats, error) {
	if cached, ok := w.cache.GetPendingStats(ctx); ok {
		return *cached, nil
	}

	stats, err := w.repo.GetPendingStats(ctx, time.Now().UTC())
	if err != nil {
		return domain.PendingStats{}, err
	}
	w.cache.SetPendingStats(ctx, stats)
	return stats, nil
}
