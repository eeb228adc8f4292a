package cache

import (
	"context"

	"salestrack/backend/internal/domain"
)

// PendingStatsCache short-circuits repeated pending-backlog scans for
// dashboards polling the stats endpoint. Entries are best effort; a miss or
// a cache outage just means the store is scanned again.
type PendingStatsCache interface {
	GetPendingStats(ctx context.Context) (*domain.PendingStats, bool)
	SetPendingStats(ctx context.Context, stats domain.PendingStats)
}

// NoopCache is used when no redis address is configured.
type NoopCache struct{}

func (NoopCache) GetPendingStats(ctx context.Context) (*domain.PendingStats, bool) { return nil, false }
func (NoopCache) SetPendingStats(ctx context.Context, stats domain.PendingStats) {}

var _ PendingStatsCache = (*NoopCache)(nil)
