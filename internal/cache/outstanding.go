package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	outstandingKeyPrefix        = "advance:outstanding:"
	outstandingVersionKeyPrefix = "advance:outstanding:version:"
)

// setIfVersion stores the total only while the worker's version key still
// holds the version the caller read before computing it. A missing version
// key counts as version 0.
var setIfVersion = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if current == false then
	current = "0"
end
if current ~= ARGV[2] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// OutstandingCache stores per-worker outstanding totals as decimal strings.
// Every invalidation bumps a per-worker version, and writes carry the version
// read before the total was summed, so a total computed before a repayment
// cannot overwrite the invalidation that followed it.
type OutstandingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewOutstandingCache(rdb *redis.Client, ttl time.Duration) *OutstandingCache {
	return &OutstandingCache{rdb: rdb, ttl: ttl}
}

func outstandingKey(workerID string) string {
	return outstandingKeyPrefix + workerID
}

func outstandingVersionKey(workerID string) string {
	return outstandingVersionKeyPrefix + workerID
}

// GetOutstanding returns the cached total and the current version. The
// version is valid on a miss too and must be passed to SetOutstanding.
func (c *OutstandingCache) GetOutstanding(ctx context.Context, workerID string) (decimal.Decimal, int64, bool, error) {
	vals, err := c.rdb.MGet(ctx, outstandingKey(workerID), outstandingVersionKey(workerID)).Result()
	if err != nil {
		return decimal.Zero, 0, false, err
	}

	var version int64
	if raw, ok := vals[1].(string); ok {
		if version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return decimal.Zero, 0, false, err
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return decimal.Zero, version, false, nil
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		// unreadable entry, treat as a miss and let the next write replace it
		_ = c.rdb.Del(ctx, outstandingKey(workerID)).Err()
		return decimal.Zero, version, false, nil
	}
	return amount, version, true, nil
}

// SetOutstanding stores amount unless the worker was invalidated after
// version was read. A rejected write is not an error.
func (c *OutstandingCache) SetOutstanding(ctx context.Context, workerID string, amount decimal.Decimal, version int64) error {
	err := setIfVersion.Run(ctx, c.rdb,
		[]string{outstandingKey(workerID), outstandingVersionKey(workerID)},
		amount.StringFixed(2), strconv.FormatInt(version, 10), c.ttl.Milliseconds(),
	).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (c *OutstandingCache) InvalidateOutstanding(ctx context.Context, workerID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, outstandingVersionKey(workerID))
		pipe.Del(ctx, outstandingKey(workerID))
		return nil
	})
	return err
}
