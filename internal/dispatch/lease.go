// Package dispatch runs the recurring sweep that delivers due follow-ups.
package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadflow_backend/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseKey = "leadflow:dispatch:sweep-lease"

// Lease grants exclusive execution of one sweep at a time across processes.
type Lease interface {
	// TryAcquire returns a release token and true when the lease was free.
	TryAcquire(ctx context.Context) (string, bool, error)
	// Extend pushes the expiry out by another TTL while token still holds
	// the lease. It returns false once the lease was lost.
	Extend(ctx context.Context, token string) (bool, error)
	// Release frees the lease only if it is still held with token.
	Release(ctx context.Context, token string) error
	// TTL is how long the lease survives without Extend. Zero disables
	// renewal.
	TTL() time.Duration
}

// RedisLease is a Lease backed by SET NX PX with a token-checked release.
type RedisLease struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

var releaseScript = redis.NewScript(`
-- KEYS[1] = lease key
-- ARGV[1] = holder token
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
-- KEYS[1] = lease key
-- ARGV[1] = holder token
-- ARGV[2] = ttl in milliseconds
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// NewRedisLease creates a lease on key that expires after ttl if never released.
func NewRedisLease(rdb redis.Cmdable, key string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = defaultLeaseKey
	}
	return &RedisLease{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLease) TryAcquire(ctx context.Context) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLease) Extend(ctx context.Context, token string) (bool, error) {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend sweep lease: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLease) TTL() time.Duration { return l.ttl }

func (l *RedisLease) Release(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("release sweep lease: %w", err)
	}
	return nil
}

// OpenRedis parses the scheduler Redis URL and verifies connectivity.
func OpenRedis(ctx context.Context, cfg config.SchedulerConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
