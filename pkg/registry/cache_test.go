package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCachedCatalog(t *testing.T, withRedis bool) (*CachedCatalog, *miniredis.Miniredis) {
	t.Helper()

	catalog := setupCatalog(t)
	seedVersion(t, catalog, "serde", "1.0.0")

	var client *redis.Client
	var mr *miniredis.Miniredis
	if withRedis {
		var err error
		mr, err = miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)

		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
	}

	cached := NewCachedCatalog(catalog, client, CacheConfig{Size: 100, TTL: time.Minute}, nil)
	return cached, mr
}

func TestCachedCatalogHitsDatabase(t *testing.T) {
	cached, _ := setupCachedCatalog(t, false)
	ctx := context.Background()

	v, err := cached.FindVersion(ctx, "serde", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "serde", v.Package)

	// Second lookup served from L1
	v, err = cached.FindVersion(ctx, "serde", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.Version)
}

func TestCachedCatalogNotFoundPassesThrough(t *testing.T) {
	cached, _ := setupCachedCatalog(t, false)
	ctx := context.Background()

	_, err := cached.FindVersion(ctx, "unknown", "1.0.0")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	_, err = cached.FindVersion(ctx, "serde", "9.9.9")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestCachedCatalogPopulatesRedis(t *testing.T) {
	cached, mr := setupCachedCatalog(t, true)
	ctx := context.Background()

	_, err := cached.FindVersion(ctx, "serde", "1.0.0")
	require.NoError(t, err)

	assert.True(t, mr.Exists("catalog:serde@1.0.0"))
}

func TestCachedCatalogServesFromRedis(t *testing.T) {
	cached, mr := setupCachedCatalog(t, true)
	ctx := context.Background()

	_, err := cached.FindVersion(ctx, "serde", "1.0.0")
	require.NoError(t, err)

	// Drop L1 by building a fresh wrapper over the same redis
	fresh := NewCachedCatalog(cached.catalog, cached.redis, CacheConfig{Size: 100, TTL: time.Minute}, nil)

	v, err := fresh.FindVersion(ctx, "serde", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "serde", v.Package)
	assert.True(t, mr.Exists("catalog:serde@1.0.0"))
}

func TestCachedCatalogSurvivesRedisOutage(t *testing.T) {
	cached, mr := setupCachedCatalog(t, true)
	mr.Close()

	v, err := cached.FindVersion(context.Background(), "serde", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "serde", v.Package)
}

func TestCachedCatalogCorruptRedisEntry(t *testing.T) {
	cached, mr := setupCachedCatalog(t, true)
	require.NoError(t, mr.Set("catalog:serde@1.0.0", "{not json"))

	v, err := cached.FindVersion(context.Background(), "serde", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.Version)
}

func TestCachedCatalogInvalidate(t *testing.T) {
	cached, mr := setupCachedCatalog(t, true)
	ctx := context.Background()

	_, err := cached.FindVersion(ctx, "serde", "1.0.0")
	require.NoError(t, err)
	require.True(t, mr.Exists("catalog:serde@1.0.0"))

	cached.Invalidate(ctx, "serde", "1.0.0")
	assert.False(t, mr.Exists("catalog:serde@1.0.0"))
}
