package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fabnest-api/internal/repository"
)

func newRedisCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	metrics := NewMetricsService()
	return NewCacheService(repository.NewCacheRepository(client, nil), metrics, time.Minute, nil, true), mr
}

func TestCacheServiceRemember(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()
	loads := 0
	load := func(dest *[]string) func() error {
		return func() error {
			loads++
			*dest = []string{"dragon", "vase"}
			return nil
		}
	}

	var first []string
	require.NoError(t, cache.Remember(ctx, "catalog:products:list", &first, load(&first)))
	var second []string
	require.NoError(t, cache.Remember(ctx, "catalog:products:list", &second, load(&second)))

	assert.Equal(t, 1, loads)
	assert.Equal(t, []string{"dragon", "vase"}, second)
	assert.True(t, mr.Exists("catalog:products:list"))

	mr.FastForward(2 * time.Minute)
	var third []string
	require.NoError(t, cache.Remember(ctx, "catalog:products:list", &third, load(&third)))
	assert.Equal(t, 2, loads)
}

func TestCacheServiceRememberPropagatesLoadError(t *testing.T) {
	cache, mr := newRedisCache(t)
	var dest []string
	err := cache.Remember(context.Background(), "catalog:gallery:list", &dest, func() error { return errors.New("db down") })
	require.Error(t, err)
	assert.False(t, mr.Exists("catalog:gallery:list"))
}

func TestCacheServiceInvalidateCatalog(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "catalog:product:1", map[string]string{"id": "1"}, 0))
	require.NoError(t, cache.Set(ctx, "catalog:gallery:list", []string{"a"}, 0))
	require.NoError(t, mr.Set("session:keep", "1"))

	cache.InvalidateCatalog(ctx)
	assert.False(t, mr.Exists("catalog:product:1"))
	assert.False(t, mr.Exists("catalog:gallery:list"))
	assert.True(t, mr.Exists("session:keep"))
}

func TestCacheServiceDisabledAndDegraded(t *testing.T) {
	disabled := NewCacheService(nil, nil, 0, nil, true)
	assert.False(t, disabled.Enabled())
	calls := 0
	var dest int
	require.NoError(t, disabled.Remember(context.Background(), "k", &dest, func() error { calls++; dest = 7; return nil }))
	assert.Equal(t, 1, calls)

	cache, mr := newRedisCache(t)
	mr.Close()
	require.NoError(t, cache.Remember(context.Background(), "catalog:x", &dest, func() error { calls++; return nil }))
	assert.Equal(t, 2, calls)
}

func TestCatalogKey(t *testing.T) {
	assert.Equal(t, "catalog:products:list:category=Figures:limit=100", catalogKey("products", "list", "category=Figures", "limit=100"))
	assert.Equal(t, "catalog:product:42", catalogKey("product", 42))
}
