package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowSeconds is the width of one rate-limit window: the Executor's rate
// manager is specified in spec.md §4.4 as a per-hour budget, not a
// continuously-refilling allowance, so the window is fixed at one hour.
const windowSeconds = 3600

// hourlyWindowScript enforces a fixed-window call budget for the current
// hour. The key embeds the hour number, so Redis's own EXPIRE retires last
// hour's counter for free instead of the client tracking a token balance and
// a last-refill timestamp. One INCR gives an atomic check-and-increment —
// Lua still has to run the comparison against the budget server-side,
// though, or a burst of concurrent Executor processes could each read a
// stale count and all admit past it.
//
// KEYS[1] = window key ("<prefix>:<bucket>:<hour>")
// ARGV[1] = budget (max calls allowed across this window)
// ARGV[2] = window_seconds, so the key expires with the window it counts
var hourlyWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
end
if count > tonumber(ARGV[1]) then
    return {0, count}
end
return {1, count}
`)

// RedisLimiter shares one platform-call rate budget across every Executor
// process pointed at the same Redis instance and bucket-key prefix, so a
// fleet of Executors enforces one fleet-wide hourly budget instead of N
// independent per-process budgets.
type RedisLimiter struct {
	client    *redis.Client
	perHour   int
	keyPrefix string
}

// NewRedisLimiter builds a RedisLimiter allowing perHour platform calls per
// fixed UTC clock-hour window per bucket key, against the Redis instance at
// addr. The count resets at each hour boundary; it is not a rolling hour.
func NewRedisLimiter(addr, password string, db, perHour int, keyPrefix string) *RedisLimiter {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLimiter{client: rdb, perHour: perHour, keyPrefix: keyPrefix}
}

// Allow increments key's counter for the current hourly window, never
// blocking: a budget-exceeding call is rejected immediately rather than
// queued until the window rolls over, matching spec.md §4.4's "surface rate
// exhaustion as a terminal failure, never block" requirement.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.perHour <= 0 {
		return true, nil
	}

	hour := time.Now().UTC().Unix() / windowSeconds
	windowKey := fmt.Sprintf("%s:%s:%d", r.keyPrefix, key, hour)

	res, err := hourlyWindowScript.Run(ctx, r.client, []string{windowKey}, r.perHour, windowSeconds).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis script: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("ratelimit: unexpected redis script response")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// Close releases the underlying Redis client connection pool.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
