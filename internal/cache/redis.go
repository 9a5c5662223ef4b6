package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitecrew/advance-engine/internal/config"
)

// OpenRedis connects and pings within five seconds.
func OpenRedis(cfg config.RedisConfig) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}
