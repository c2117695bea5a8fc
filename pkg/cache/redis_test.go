package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &RedisCache{client: client, config: &RedisConfig{}}
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type position struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}

	require.NoError(t, c.Set(ctx, "location:abc", position{Lat: 52.52, Lon: 13.405}, time.Minute))

	var got position
	require.NoError(t, c.Get(ctx, "location:abc", &got))
	assert.Equal(t, 52.52, got.Lat)
	assert.Equal(t, 13.405, got.Lon)
}

func TestGetMissReturnsError(t *testing.T) {
	c := newTestCache(t)

	var dest map[string]string
	err := c.Get(context.Background(), "absent", &dest)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestDeleteRemovesKeys(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Delete(ctx, "a", "b"))

	exists, err := c.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetNXOnlyFirstWriterWins(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "floor:g1", "holder-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "floor:g1", "holder-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	var holder string
	require.NoError(t, c.Get(ctx, "floor:g1", &holder))
	assert.Equal(t, "holder-1", holder)
}

func TestGeoAddAndRadius(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.GeoAdd(ctx, "geo:latest", &redis.GeoLocation{
		Name: "unit-1", Longitude: 13.405, Latitude: 52.52,
	}))
	require.NoError(t, c.GeoAdd(ctx, "geo:latest", &redis.GeoLocation{
		Name: "unit-2", Longitude: 2.3522, Latitude: 48.8566,
	}))

	near, err := c.GeoRadius(ctx, "geo:latest", 13.4, 52.5, &redis.GeoRadiusQuery{
		Radius: 10, Unit: "km",
	})
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "unit-1", near[0].Name)
}

func TestSetExpireAndTTL(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.SetExpire(ctx, "k", time.Minute))

	ttl, err := c.GetTTL(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
