package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSortsAndDedupes(t *testing.T) {
	got := normalize([]string{"wallet:2", "", "engagement:1", "wallet:2"})
	assert.Equal(t, []string{"engagement:1", "wallet:2"}, got)
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker(time.Second)
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), WalletKey(7))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestLocalLockerTimesOut(t *testing.T) {
	l := NewLocalLocker(30 * time.Millisecond)
	release, err := l.Acquire(context.Background(), WithdrawalKey(1), WalletKey(1))
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), WalletKey(1))
	assert.ErrorIs(t, err, ErrTimeout)

	// Different keys do not block each other.
	other, err := l.Acquire(context.Background(), WalletKey(2))
	require.NoError(t, err)
	other()
}

func TestLocalLockerReleaseIsIdempotent(t *testing.T) {
	l := NewLocalLocker(time.Second)
	release, err := l.Acquire(context.Background(), EngagementKey(3))
	require.NoError(t, err)
	release()
	release()
	again, err := l.Acquire(context.Background(), EngagementKey(3))
	require.NoError(t, err)
	again()
}

func newRedisLocker(t *testing.T, timeout time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, 5*time.Second, timeout), mr
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	l, mr := newRedisLocker(t, 100*time.Millisecond)
	release, err := l.Acquire(context.Background(), StatementKey(9), WalletKey(4))
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:statement:9"))
	assert.True(t, mr.Exists("lock:wallet:4"))

	_, err = l.Acquire(context.Background(), EngagementKey(1), WalletKey(4))
	assert.ErrorIs(t, err, ErrTimeout)
	// The failed attempt gives back the key it did get.
	assert.False(t, mr.Exists("lock:engagement:1"))

	release()
	assert.False(t, mr.Exists("lock:statement:9"))
	assert.False(t, mr.Exists("lock:wallet:4"))
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t, 100*time.Millisecond)
	release, err := l.Acquire(context.Background(), WalletKey(5))
	require.NoError(t, err)

	// Simulate TTL expiry followed by another holder taking the key.
	require.NoError(t, mr.Set("lock:wallet:5", "someone-else"))
	release()
	got, err := mr.Get("lock:wallet:5")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
