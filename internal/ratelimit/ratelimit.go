// Package ratelimit implements the distributed admission-control
// algorithms. Both limiters execute as a single atomic round trip against
// the shared store, so two concurrent callers on the same key can never both
// observe a free slot. On any store error the limiters fail open: admitting
// under a broken limiter is preferred to rejecting all traffic.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/flashmart/seckill/config"
)

type Algorithm string

const (
	SlidingWindow Algorithm = "sliding_window"
	TokenBucket   Algorithm = "token_bucket"
)

// Policy is the typed configuration of one protected operation. Sub-limits
// for the user and origin-address dimensions are expressed as fractions of
// the global budget; zero disables the dimension.
type Policy struct {
	Algorithm Algorithm

	// sliding window
	Window time.Duration
	Limit  int

	// token bucket
	Capacity   int
	RefillRate float64
	Tokens     int

	UserFraction float64
	IPFraction   float64
}

// FromConfig converts the serializable config policy into a typed one.
func FromConfig(p config.RateLimitPolicy) Policy {
	return Policy{
		Algorithm:    Algorithm(p.Algorithm),
		Window:       p.Window(),
		Limit:        p.Limit,
		Capacity:     p.Capacity,
		RefillRate:   p.RefillRate,
		Tokens:       p.Tokens,
		UserFraction: p.UserFraction,
		IPFraction:   p.IPFraction,
	}
}

// slidingWindowScript drops expired entries, counts what remains, and only
// inserts the new entry when the count is under the limit. Timestamps are in
// milliseconds. The member carries a caller-generated suffix: the script
// PRNG is deterministically seeded, so two same-millisecond admissions would
// otherwise collapse into one member and undercount the window.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local current = tonumber(ARGV[3])
local start = current - window
redis.call('ZREMRANGEBYSCORE', key, 0, start)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, current, current .. ':' .. ARGV[4])
    redis.call('PEXPIRE', key, window)
    return 1
else
    return 0
end`)

// tokenBucketScript refills by elapsed seconds * rate, capped at capacity,
// then subtracts the request cost when enough tokens remain. State is not
// touched on rejection.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local current = tonumber(ARGV[3])
local tokens = tonumber(ARGV[4])
local lastUpdate = redis.call('HGET', key, 'lastUpdate')
local lastUpdateNum = current
if lastUpdate then
    lastUpdateNum = tonumber(lastUpdate)
end
local timePassed = current - lastUpdateNum
if timePassed < 0 then
    timePassed = 0
end
local newTokens = timePassed * rate
local currentTokens = redis.call('HGET', key, 'tokens')
local currentTokensNum = capacity
if currentTokens then
    currentTokensNum = tonumber(currentTokens)
end
local actualTokens = math.min(capacity, currentTokensNum + newTokens)
if actualTokens >= tokens then
    actualTokens = actualTokens - tokens
    redis.call('HSET', key, 'tokens', actualTokens)
    redis.call('HSET', key, 'lastUpdate', current)
    redis.call('EXPIRE', key, 3600)
    return 1
else
    return 0
end`)

// Limiter evaluates admission-control policies against the shared store.
type Limiter struct {
	client redis.UniversalClient
}

func NewLimiter(client redis.UniversalClient) *Limiter {
	return &Limiter{client: client}
}

// AllowSlidingWindow admits when fewer than limit events happened in the
// trailing window. Fails open on store errors.
func (l *Limiter) AllowSlidingWindow(ctx context.Context, key string, window time.Duration, limit int) bool {
	now := time.Now().UnixMilli()
	result, err := slidingWindowScript.Run(ctx, l.client, []string{key}, window.Milliseconds(), limit, now, uuid.NewString()).Int64()
	if err != nil {
		logrus.Warnf("sliding window limiter unavailable for key %s, admitting: %v", key, err)
		return true
	}
	return result == 1
}

// AllowTokenBucket admits when the bucket holds at least tokens, refilling
// at rate per second up to capacity. Fails open on store errors.
func (l *Limiter) AllowTokenBucket(ctx context.Context, key string, capacity int, rate float64, tokens int) bool {
	now := time.Now().Unix()
	result, err := tokenBucketScript.Run(ctx, l.client, []string{key}, capacity, rate, now, tokens).Int64()
	if err != nil {
		logrus.Warnf("token bucket limiter unavailable for key %s, admitting: %v", key, err)
		return true
	}
	return result == 1
}

// Allow evaluates the policy's global dimension against the key.
func (l *Limiter) Allow(ctx context.Context, key string, p Policy) bool {
	switch p.Algorithm {
	case TokenBucket:
		return l.AllowTokenBucket(ctx, key, p.Capacity, p.RefillRate, p.Tokens)
	default:
		return l.AllowSlidingWindow(ctx, key, p.Window, p.Limit)
	}
}

// AllowRequest evaluates global, then per-user, then per-address budgets.
// Evaluation order means an earlier dimension's budget is consumed even when
// a later dimension rejects; the overcount errs toward safety.
func (l *Limiter) AllowRequest(ctx context.Context, key, userID, ip string, p Policy) bool {
	if !l.Allow(ctx, key, p) {
		return false
	}
	if p.UserFraction > 0 && userID != "" {
		if !l.Allow(ctx, key+":user:"+userID, scale(p, p.UserFraction)) {
			return false
		}
	}
	if p.IPFraction > 0 && ip != "" {
		if !l.Allow(ctx, key+":ip:"+ip, scale(p, p.IPFraction)) {
			return false
		}
	}
	return true
}

// scale derives the sub-limit policy for a dimension: the window limit or
// the refill rate shrinks by the fraction, never below one admissible
// request.
func scale(p Policy, fraction float64) Policy {
	scaled := p
	switch p.Algorithm {
	case TokenBucket:
		scaled.RefillRate = p.RefillRate * fraction
	default:
		scaled.Limit = int(float64(p.Limit) * fraction)
		if scaled.Limit < 1 {
			scaled.Limit = 1
		}
	}
	return scaled
}

// WindowCount returns the number of events currently inside the window for
// the key.
func (l *Limiter) WindowCount(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now().UnixMilli()
	start := now - window.Milliseconds()
	return l.client.ZCount(ctx, key, strconv.FormatInt(start, 10), strconv.FormatInt(now, 10)).Result()
}

// BucketTokens returns the token level currently recorded for the key.
func (l *Limiter) BucketTokens(ctx context.Context, key string) (float64, error) {
	val, err := l.client.HGet(ctx, key, "tokens").Float64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// Reset clears the limiter state for the key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
