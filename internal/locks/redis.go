package locks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ballouchi/internal/utils"
)

const (
	defaultLockPrefix = "lock"
	defaultRetryEvery = 25 * time.Millisecond
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every process talking to the same Redis.
// A holder that dies keeps the key until ttl passes.
type RedisLocker struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	retryEvery time.Duration
	log        *zap.Logger
}

func NewRedisLocker(client *redis.Client, keyPrefix string, ttl time.Duration, log *zap.Logger) *RedisLocker {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultLockPrefix
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		retryEvery: defaultRetryEvery,
		log:        log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := utils.NewOpaqueToken(16)
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}
	redisKey := l.key(key)

	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be done
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := unlockScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
				// ключ освободится только по ttl
				l.log.Warn("redis unlock failed",
					zap.String("key", redisKey),
					zap.Duration("ttl", l.ttl),
					zap.Error(err),
				)
			}
		})
	}, nil
}

func (l *RedisLocker) key(k string) string {
	return l.prefix + ":" + k
}
