package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/name-indexer/internal/adapter/metrics"
)

const keyPrefix = "name_indexer:seen:"

// DedupCache implements domain.DedupCache on Redis. It shortcuts upserts for
// unique ids seen recently; entries expire so the cache never grows without
// bound. Strictly best-effort: any Redis failure reports "not seen" and the
// store's unique index remains the source of truth.
type DedupCache struct {
	client  *redis.Client
	logger  *slog.Logger
	ttl     time.Duration
	metrics *metrics.IndexerMetrics
}

// NewDedupCache creates a Redis-backed dedup cache. Metrics may be nil.
func NewDedupCache(client *redis.Client, logger *slog.Logger, ttl time.Duration, m *metrics.IndexerMetrics) *DedupCache {
	return &DedupCache{
		client:  client,
		logger:  logger.With("component", "dedup_cache"),
		ttl:     ttl,
		metrics: m,
	}
}

// Seen reports whether uniqueID was remembered recently.
func (c *DedupCache) Seen(ctx context.Context, uniqueID string) bool {
	n, err := c.client.Exists(ctx, keyPrefix+uniqueID).Result()
	if err != nil {
		c.logger.Debug("dedup lookup failed, treating as unseen", "unique_id", uniqueID, "error", err)
		return false
	}
	seen := n > 0
	if c.metrics != nil {
		if seen {
			c.metrics.DedupCacheHits.Inc()
		} else {
			c.metrics.DedupCacheMisses.Inc()
		}
	}
	return seen
}

// Remember records unique ids for the configured TTL. Failures are logged and
// dropped; a forgotten id only costs one redundant conflict-skipped upsert.
func (c *DedupCache) Remember(ctx context.Context, uniqueIDs ...string) {
	if len(uniqueIDs) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for _, id := range uniqueIDs {
		pipe.Set(ctx, keyPrefix+id, 1, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Debug("dedup remember failed", "count", len(uniqueIDs), "error", err)
	}
}
