package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"salestrack/backend/internal/domain"
)

const pendingStatsKey = "salestrack:pending_stats"

// RedisCache stores pending-backlog stats in redis with a short TTL so that
// several dashboard pollers share one scan. It is a read-through cache only;
// sale state itself never lives here.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if ttl <= 0 {
		ttl = 15 * time.Second
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) GetPendingStats(ctx context.Context) (*domain.PendingStats, bool) {
	raw, err := c.client.Get(ctx, pendingStatsKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[cache] WARN: redis get failed: %v", err)
		}
		return nil, false
	}

	var stats domain.PendingStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		log.Printf("[cache] WARN: dropping corrupt cached stats: %v", err)
		return nil, false
	}
	return &stats, true
}

func (c *RedisCache) SetPendingStats(ctx context.Context, stats domain.PendingStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		log.Printf("[cache] WARN: marshal stats: %v", err)
		return
	}
	if err := c.client.Set(ctx, pendingStatsKey, raw, c.ttl).Err(); err != nil {
		log.Printf("[cache] WARN: redis set failed: %v", err)
	}
}

func (c *RedisCache) Close() error { return c.client.Close() }

var _ PendingStatsCache = (*RedisCache)(nil)
