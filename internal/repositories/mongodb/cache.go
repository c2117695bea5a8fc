package mongodb

import (
	"context"
	"time"
)

// CacheService is the narrow slice of the Redis cache the repositories
// use for hot records. Satisfied by *cache.RedisCache.
type CacheService interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
