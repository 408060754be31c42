package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "a@x.com")
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
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent
	assert.Equal(t, 0, k.size())
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return client, server
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	client, server := newTestRedis(t)
	l := NewRedisLocker(client, "lock", time.Minute, nil)

	unlock, err := l.Lock(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, server.Exists("lock:a@x.com"))
	ttl := server.TTL("lock:a@x.com")
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	unlock()
	assert.False(t, server.Exists("lock:a@x.com"))
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	client, _ := newTestRedis(t)
	l := NewRedisLocker(client, "", time.Minute, nil)

	unlock, err := l.Lock(context.Background(), "a@x.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a@x.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := l.Lock(context.Background(), "a@x.com")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_UnlockKeepsForeignToken(t *testing.T) {
	client, server := newTestRedis(t)
	l := NewRedisLocker(client, "lock", time.Minute, nil)

	unlock, err := l.Lock(context.Background(), "a@x.com")
	require.NoError(t, err)

	// the key expired and someone else took it
	require.NoError(t, server.Set("lock:a@x.com", "other"))
	unlock()

	got, err := server.Get("lock:a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
}

func TestRedisLocker_UnlockFailureIsLogged(t *testing.T) {
	client, server := newTestRedis(t)
	core, logs := observer.New(zapcore.WarnLevel)
	l := NewRedisLocker(client, "lock", time.Minute, zap.New(core))

	unlock, err := l.Lock(context.Background(), "a@x.com")
	require.NoError(t, err)

	server.SetError("ERR unlock refused")
	unlock()
	server.SetError("")

	entries := logs.FilterMessage("redis unlock failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lock:a@x.com", entries[0].ContextMap()["key"])
	assert.True(t, server.Exists("lock:a@x.com"))
}
