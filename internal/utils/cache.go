package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"fmt"           // Key formatting
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

// CacheTTL is how long wallet views stay cached.
const CacheTTL = 60 * time.Second

// WalletGenerationKey holds the owner's cache generation. Views are cached under the
// generation read before they were loaded; InvalidateWallet moves it forward, so a view
// loaded before a mutation is never served after it.
func WalletGenerationKey(ownerID uint) string {
	return fmt.Sprintf("wallet:owner:%d:gen", ownerID)
}

// WalletCacheKey is the cache key of an owner's wallet view
func WalletCacheKey(ownerID uint, gen int64) string {
	return fmt.Sprintf("wallet:owner:%d:gen:%d", ownerID, gen)
}

// HistoryCacheKey is the cache key of one page of an owner's ledger history
func HistoryCacheKey(ownerID uint, gen int64, page, pageSize int) string {
	return fmt.Sprintf("txhistory:owner:%d:gen:%d:page:%d:size:%d", ownerID, gen, page, pageSize)
}

// CacheGeneration returns the owner's current cache generation, 0 before the first mutation
func CacheGeneration(ctx context.Context, rdb *redis.Client, ownerID uint) (int64, error) {
	if rdb == nil {
		return 0, nil
	}
	gen, err := rdb.Get(ctx, WalletGenerationKey(ownerID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// InvalidateWallet retires every cached wallet view and history page of the owner
func InvalidateWallet(ctx context.Context, rdb *redis.Client, ownerID uint) {
	if rdb == nil {
		return
	}
	if err := rdb.Incr(ctx, WalletGenerationKey(ownerID)).Err(); err != nil {
		// Stale views expire with CacheTTL
		logrus.WithFields(logrus.Fields{
			"owner_id": ownerID,
			"error":    err.Error(),
		}).Warn("Failed to invalidate wallet cache")
	}
}
