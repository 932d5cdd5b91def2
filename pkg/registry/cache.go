package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/pkgvault/registry/pkg/observability"
)

// CachedCatalog layers an in-process LRU (L1) and optional Redis (L2) over
// catalog version lookups. Download traffic hits the same few hot versions
// over and over; the database only sees misses.
//
// Cache failures are never fatal. A dead Redis degrades to L1 plus the
// database.
type CachedCatalog struct {
	catalog *Catalog
	l1      *lru.LRU[string, *Version]
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	log     *logrus.Entry
}

// CacheConfig controls the catalog cache tiers
type CacheConfig struct {
	// Size is the max number of L1 entries
	Size int

	// TTL bounds staleness in both tiers
	TTL time.Duration
}

// NewCachedCatalog wraps a catalog with caching. The redis client may be
// nil, leaving only the L1 tier. Metrics may be nil in tests.
func NewCachedCatalog(catalog *Catalog, redisClient *redis.Client, cfg CacheConfig, metrics *observability.Metrics) *CachedCatalog {
	if cfg.Size <= 0 {
		cfg.Size = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}

	return &CachedCatalog{
		catalog: catalog,
		l1:      lru.NewLRU[string, *Version](cfg.Size, nil, cfg.TTL),
		redis:   redisClient,
		ttl:     cfg.TTL,
		metrics: metrics,
		log:     logrus.WithField("component", "catalog-cache"),
	}
}

// FindVersion resolves a version through L1, then L2, then the database.
// Not-found results are not cached; a publish must become visible on the
// next request.
func (c *CachedCatalog) FindVersion(ctx context.Context, pkg, version string) (*Version, error) {
	key := cacheKey(pkg, version)

	if v, ok := c.l1.Get(key); ok {
		c.recordHit("l1")
		return v, nil
	}

	if v := c.getL2(ctx, key); v != nil {
		c.recordHit("l2")
		c.l1.Add(key, v)
		return v, nil
	}

	c.recordMiss()

	v, err := c.catalog.FindVersion(ctx, pkg, version)
	if err != nil {
		return nil, err
	}

	c.l1.Add(key, v)
	c.setL2(ctx, key, v)
	return v, nil
}

// Invalidate drops a version from both cache tiers
func (c *CachedCatalog) Invalidate(ctx context.Context, pkg, version string) {
	key := cacheKey(pkg, version)
	c.l1.Remove(key)
	if c.redis != nil {
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			c.log.WithError(err).Warn("failed to invalidate redis cache entry")
		}
	}
}

func (c *CachedCatalog) getL2(ctx context.Context, key string) *Version {
	if c.redis == nil {
		return nil
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.log.WithError(err).Debug("redis cache read failed")
		return nil
	}

	var v Version
	if err := json.Unmarshal(data, &v); err != nil {
		c.log.WithError(err).Warn("corrupt redis cache entry, dropping")
		c.redis.Del(ctx, key)
		return nil
	}
	return &v
}

func (c *CachedCatalog) setL2(ctx context.Context, key string, v *Version) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("redis cache write failed")
	}
}

func (c *CachedCatalog) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *CachedCatalog) recordMiss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func cacheKey(pkg, version string) string {
	return fmt.Sprintf("catalog:%s@%s", pkg, version)
}
