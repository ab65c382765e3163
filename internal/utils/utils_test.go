package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(12, "seller", "secret")
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.UserID)
	assert.Equal(t, "seller", claims.Role)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)
}

func TestInvalidateWallet(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	gen, err := CacheGeneration(ctx, rdb, 3)
	require.NoError(t, err)
	assert.Zero(t, gen)
	require.NoError(t, SetCache(ctx, rdb, WalletCacheKey(3, gen), map[string]int{"a": 1}, time.Minute))
	require.NoError(t, SetCache(ctx, rdb, HistoryCacheKey(3, gen, 1, 20), []int{1}, time.Minute))
	other, err := CacheGeneration(ctx, rdb, 33)
	require.NoError(t, err)
	require.NoError(t, SetCache(ctx, rdb, WalletCacheKey(33, other), map[string]int{"a": 1}, time.Minute))

	InvalidateWallet(ctx, rdb, 3)

	next, err := CacheGeneration(ctx, rdb, 3)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)
	var dest map[string]int
	found, err := GetCache(ctx, rdb, WalletCacheKey(3, next), &dest)
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists(HistoryCacheKey(3, next, 1, 20)))

	unchanged, err := CacheGeneration(ctx, rdb, 33)
	require.NoError(t, err)
	assert.Equal(t, other, unchanged, "other owners keep their cache")
	assert.True(t, mr.Exists(WalletCacheKey(33, other)))
}

func TestLateWriteAfterInvalidationIsNotServed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	// A reader takes the generation and loads the old wallet...
	readerGen, err := CacheGeneration(ctx, rdb, 5)
	require.NoError(t, err)
	// ...a mutation commits and invalidates...
	InvalidateWallet(ctx, rdb, 5)
	// ...then the reader stores what it loaded.
	require.NoError(t, SetCache(ctx, rdb, WalletCacheKey(5, readerGen), map[string]string{"available": "100"}, time.Minute))

	gen, err := CacheGeneration(ctx, rdb, 5)
	require.NoError(t, err)
	var dest map[string]string
	found, err := GetCache(ctx, rdb, WalletCacheKey(5, gen), &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNilClientIsNoop(t *testing.T) {
	ctx := context.Background()
	var dest []int
	found, err := GetCache(ctx, nil, "k", &dest)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetCache(ctx, nil, "k", 1, time.Second))
	gen, err := CacheGeneration(ctx, nil, 1)
	assert.NoError(t, err)
	assert.Zero(t, gen)
	assert.NotPanics(t, func() { InvalidateWallet(ctx, nil, 1) })
}
