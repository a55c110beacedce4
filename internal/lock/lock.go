package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

// Locker serializes work on one key across processes.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type NoopLocker struct{}

func (NoopLocker) Obtain(_ context.Context, _ string, _ time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

type RedisLocker struct {
	client *redislock.Client
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "costing:lock:"
	}
	return &RedisLocker{client: redislock.New(client), prefix: prefix}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lk, err := l.client.Obtain(ctx, l.prefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	// Without a caller deadline redislock waits at most ttl.
	if errors.Is(err, redislock.ErrNotObtained) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func(releaseCtx context.Context) error {
		err := lk.Release(releaseCtx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
