package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/pkg/logger"
)

// Lua script for an atomic per-second counter. Checking and
// incrementing in one round trip avoids the GET-check-INCR race when
// several instances share a sender.
const perSecondLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return {0, current}
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, 2)
end
return {1, newVal}
`

// RateLimiter bounds messages per second per sender. With Redis it is
// shared across instances; without Redis, or when Redis fails, it
// degrades to an in-process token counter.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	limit  int

	now func() time.Time

	mu        sync.Mutex
	window    int64 // unix second of the local window
	granted   int
}

func NewRateLimiter(rdb *redis.Client, messagesPerSecond int) *RateLimiter {
	if messagesPerSecond <= 0 {
		messagesPerSecond = 10
	}
	return &RateLimiter{
		redis:  rdb,
		script: redis.NewScript(perSecondLuaScript),
		limit:  messagesPerSecond,
		now:    time.Now,
	}
}

// Wait blocks until a send slot is available for senderKey or ctx is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, senderKey string) error {
	for {
		ok, err := rl.allow(ctx, senderKey)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (rl *RateLimiter) allow(ctx context.Context, senderKey string) (bool, error) {
	if rl.redis != nil {
		ok, err := rl.allowRedis(ctx, senderKey)
		if err == nil {
			return ok, nil
		}
		logger.Warn("rate limiter redis error, using local counter", "error", err.Error())
	}
	return rl.allowLocal(), ctx.Err()
}

func (rl *RateLimiter) allowRedis(ctx context.Context, senderKey string) (bool, error) {
	key := "outreach:ratelimit:" + senderKey + ":" + rl.nowSecond()
	res, err := rl.script.Run(ctx, rl.redis, []string{key}, rl.limit).Result()
	if err != nil {
		return false, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 1 {
		return false, nil
	}
	allowed, _ := vals[0].(int64)
	return allowed == 1, nil
}

func (rl *RateLimiter) nowSecond() string {
	return rl.now().UTC().Format("20060102150405")
}

// allowLocal grants up to limit tokens per wall-clock second. Single
// process only; used when Redis is unavailable.
func (rl *RateLimiter) allowLocal() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	sec := rl.now().Unix()
	if sec != rl.window {
		rl.window = sec
		rl.granted = 0
	}
	if rl.granted >= rl.limit {
		return false
	}
	rl.granted++
	return true
}
