package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	customError "github.com/sitecrew/advance-engine/pkg/errors"
)

// RunLocker hands out expiring redis locks. It does not retry: a held key
// fails immediately with customError.ErrLockHeld.
type RunLocker struct {
	client *redislock.Client
}

func NewRunLocker(rdb *redis.Client) *RunLocker {
	return &RunLocker{client: redislock.New(rdb)}
}

func (l *RunLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, customError.ErrLockHeld
	}
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// expired before release
			return nil
		}
		return err
	}, nil
}
