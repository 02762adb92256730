package businessflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/utils"
	"github.com/redis/go-redis/v9"
)

// StatusCache holds recently computed recipient histograms. The histogram scan
// is the expensive part of a status read; campaign counters are always served
// fresh from the campaign row. Staleness is bounded by the entry TTL.
type StatusCache interface {
	GetHistogram(ctx context.Context, campaignID uint) (models.Histogram, bool)
	SetHistogram(ctx context.Context, campaignID uint, hist models.Histogram)
}

// RedisStatusCache shares histogram entries across instances. Cache failures
// degrade to a miss; the caller recomputes from storage.
type RedisStatusCache struct {
	client *redis.Client
}

// NewRedisStatusCache creates a redis-backed status cache
func NewRedisStatusCache(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{client: client}
}

func statusCacheKey(campaignID uint) string {
	return fmt.Sprintf("%s%d", utils.CampaignStatusCacheKeyPrefix, campaignID)
}

// GetHistogram fetches the cached histogram for the campaign
func (c *RedisStatusCache) GetHistogram(ctx context.Context, campaignID uint) (models.Histogram, bool) {
	var hist models.Histogram
	raw, err := c.client.Get(ctx, statusCacheKey(campaignID)).Bytes()
	if err != nil {
		return hist, false
	}
	if err := json.Unmarshal(raw, &hist); err != nil {
		return hist, false
	}
	return hist, true
}

// SetHistogram stores the histogram with the status cache TTL
func (c *RedisStatusCache) SetHistogram(ctx context.Context, campaignID uint, hist models.Histogram) {
	raw, err := json.Marshal(hist)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, statusCacheKey(campaignID), raw, utils.CampaignStatusCacheTTL).Err()
}

// NoopStatusCache disables caching; every status read scans storage
type NoopStatusCache struct{}

// NewNoopStatusCache creates a cache that never hits
func NewNoopStatusCache() NoopStatusCache {
	return NoopStatusCache{}
}

// GetHistogram always misses
func (NoopStatusCache) GetHistogram(ctx context.Context, campaignID uint) (models.Histogram, bool) {
	return models.Histogram{}, false
}

// SetHistogram discards the entry
func (NoopStatusCache) SetHistogram(ctx context.Context, campaignID uint, hist models.Histogram) {}
