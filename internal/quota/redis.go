// AngelaMos | 2026
// redis.go

package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript checks both buckets and increments them only on admission, so
// concurrent requests cannot overshoot the ceiling.
var takeScript = redis.NewScript(`
local minute = tonumber(redis.call('GET', KEYS[1]) or '0')
local day = tonumber(redis.call('GET', KEYS[2]) or '0')

if minute >= tonumber(ARGV[1]) or day >= tonumber(ARGV[2]) then
	return {0, minute, day}
end

minute = redis.call('INCR', KEYS[1])
if minute == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[3])
end

day = redis.call('INCR', KEYS[2])
if day == 1 then
	redis.call('EXPIRE', KEYS[2], ARGV[4])
end

return {1, minute, day}
`)

type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Take(ctx context.Context, userID string, limits Limits, now time.Time) (*Result, error) {
	keys := []string{
		l.prefix + minuteKey(userID, now),
		l.prefix + dayKey(userID, now),
	}

	vals, err := takeScript.Run(ctx, l.client, keys,
		limits.PerMinute,
		limits.Daily,
		int(minuteBucketTTL.Seconds()),
		int(dayBucketTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("quota script: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("quota script: unexpected reply length %d", len(vals))
	}

	return evaluate(limits, now, vals[0] == 1, int(vals[1]), int(vals[2])), nil
}
