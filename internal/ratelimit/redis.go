package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "cubegate:rl:"
	redisBlockPrefix = "cubegate:rl:block:"
)

// RedisLimiter applies the same sliding-window policy as MemoryLimiter but
// keeps request histories in Redis, so multiple service instances share one
// view of each caller. Histories are sorted sets scored by arrival time in
// milliseconds; block state is a plain key whose TTL is the block duration,
// which makes expiry lazy on the Redis side with no sweep required.
//
// Rate limiting is a best-effort safety valve: on any Redis error the
// limiter fails open and logs, rather than failing the request.
type RedisLimiter struct {
	client *redis.Client

	mu        sync.Mutex
	cfg       Config
	whitelist map[string]struct{}

	seq atomic.Int64 // uniquifies members added within the same millisecond
}

// NewRedis creates a Redis-backed limiter. It verifies connectivity once so
// a misconfigured address fails at startup rather than on the first request.
func NewRedis(ctx context.Context, client *redis.Client, cfg Config) (*RedisLimiter, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLimiter{
		client:    client,
		cfg:       cfg.clone(),
		whitelist: whitelistSet(cfg.Whitelist),
	}, nil
}

// Check decides whether a request may proceed and records it when allowed.
// Evaluation order matches MemoryLimiter: kill switch, whitelist, block
// state, burst check, window check.
func (r *RedisLimiter) Check(ctx context.Context, identifier, endpoint string) Result {
	r.mu.Lock()
	cfg := r.cfg
	_, whitelisted := r.whitelist[identifier]
	r.mu.Unlock()

	now := time.Now()

	if !cfg.Enabled {
		return Result{
			Allowed:   true,
			Limit:     cfg.MaxRequests,
			Remaining: cfg.MaxRequests,
			ResetAt:   now.Add(cfg.Window),
		}
	}

	if whitelisted {
		return Result{
			Allowed:   true,
			Limit:     cfg.MaxRequests,
			Remaining: math.MaxInt,
			ResetAt:   now.Add(cfg.Window),
		}
	}

	maxRequests, window := cfg.limitsFor(endpoint)
	k := key(identifier, endpoint)
	zkey := redisKeyPrefix + k

	if until, blocked := r.blockedUntil(ctx, identifier, now); blocked {
		return Result{
			Allowed:    false,
			Limit:      maxRequests,
			Remaining:  0,
			ResetAt:    until,
			RetryAfter: until.Sub(now),
		}
	}

	nowMs := now.UnixMilli()
	windowCutoff := now.Add(-window).UnixMilli()
	burstCutoff := now.Add(-burstWindow).UnixMilli()

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", fmt.Sprintf("%d", windowCutoff))
	burstCount := pipe.ZCount(ctx, zkey, fmt.Sprintf("(%d", burstCutoff), "+inf")
	inWindow := pipe.ZCard(ctx, zkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return r.failOpen(err, maxRequests, window, now)
	}

	if int(burstCount.Val()) >= cfg.BurstLimit {
		until := now.Add(burstPenalty)
		pipe := r.client.TxPipeline()
		pipe.Set(ctx, redisBlockPrefix+identifier, "1", burstPenalty)
		// History does not carry over once the block lifts.
		pipe.Del(ctx, zkey)
		if _, err := pipe.Exec(ctx); err != nil {
			return r.failOpen(err, maxRequests, window, now)
		}
		return Result{
			Allowed:    false,
			Limit:      maxRequests,
			Remaining:  0,
			ResetAt:    until,
			RetryAfter: burstPenalty,
		}
	}

	if int(inWindow.Val()) >= maxRequests {
		resetAt := now.Add(window)
		if oldest, err := r.client.ZRangeWithScores(ctx, zkey, 0, 0).Result(); err == nil && len(oldest) > 0 {
			resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(window)
		}
		return Result{
			Allowed:    false,
			Limit:      maxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	member := fmt.Sprintf("%d-%d", nowMs, r.seq.Add(1))
	pipe = r.client.TxPipeline()
	pipe.ZAdd(ctx, zkey, redis.Z{Score: float64(nowMs), Member: member})
	pipe.Expire(ctx, zkey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return r.failOpen(err, maxRequests, window, now)
	}

	return Result{
		Allowed:   true,
		Limit:     maxRequests,
		Remaining: maxRequests - int(inWindow.Val()) - 1,
		ResetAt:   now.Add(window),
	}
}

// Consume is an alias for Check.
func (r *RedisLimiter) Consume(ctx context.Context, identifier, endpoint string) Result {
	return r.Check(ctx, identifier, endpoint)
}

// Reset removes the identifier's history, block state, and all of its
// per-endpoint histories.
func (r *RedisLimiter) Reset(ctx context.Context, identifier string) {
	keys := []string{redisKeyPrefix + identifier, redisBlockPrefix + identifier}

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+identifier+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Error("rate limit reset scan failed", "identifier", identifier, "error", err)
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		slog.Error("rate limit reset failed", "identifier", identifier, "error", err)
	}
}

// Block installs a block for identifier, overwriting any prior state under
// that exact key.
func (r *RedisLimiter) Block(ctx context.Context, identifier string, duration time.Duration) {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisBlockPrefix+identifier, "1", duration)
	pipe.Del(ctx, redisKeyPrefix+identifier)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("rate limit block failed", "identifier", identifier, "error", err)
	}
}

// IsBlocked reports whether identifier is under an active block. Expiry is
// handled by the key's TTL; nothing needs clearing here.
func (r *RedisLimiter) IsBlocked(ctx context.Context, identifier string) bool {
	_, blocked := r.blockedUntil(ctx, identifier, time.Now())
	return blocked
}

// Status returns a read view of one key's state without recording a request.
func (r *RedisLimiter) Status(ctx context.Context, identifier, endpoint string) Status {
	r.mu.Lock()
	cfg := r.cfg
	r.mu.Unlock()

	now := time.Now()
	maxRequests, window := cfg.limitsFor(endpoint)
	st := Status{Limit: maxRequests, Remaining: maxRequests}

	zkey := redisKeyPrefix + key(identifier, endpoint)
	count, err := r.client.ZCount(ctx, zkey,
		fmt.Sprintf("(%d", now.Add(-window).UnixMilli()), "+inf").Result()
	if err != nil {
		slog.Error("rate limit status failed", "identifier", identifier, "error", err)
		return st
	}

	st.RequestsInWindow = int(count)
	st.Remaining = maxRequests - st.RequestsInWindow
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	if until, blocked := r.blockedUntil(ctx, identifier, now); blocked {
		st.Blocked = true
		st.BlockedUntil = until
		st.Remaining = 0
	}
	return st
}

// Config returns a copy of the live configuration.
func (r *RedisLimiter) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.clone()
}

// SetConfig shallow-merges the patch into the live configuration.
func (r *RedisLimiter) SetConfig(patch ConfigPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if patch.Enabled != nil {
		r.cfg.Enabled = *patch.Enabled
	}
	if patch.MaxRequests != nil {
		r.cfg.MaxRequests = *patch.MaxRequests
	}
	if patch.Window != nil {
		r.cfg.Window = *patch.Window
	}
	if patch.BurstLimit != nil {
		r.cfg.BurstLimit = *patch.BurstLimit
	}
	if patch.Whitelist != nil {
		r.cfg.Whitelist = append([]string(nil), patch.Whitelist...)
		r.whitelist = whitelistSet(patch.Whitelist)
	}
	if patch.EndpointLimits != nil {
		limits := make(map[string]EndpointLimit, len(patch.EndpointLimits))
		for k, v := range patch.EndpointLimits {
			limits[k] = v
		}
		r.cfg.EndpointLimits = limits
	}
}

// Close releases the Redis connection pool.
func (r *RedisLimiter) Close() {
	if err := r.client.Close(); err != nil {
		slog.Error("redis close failed", "error", err)
	}
}

// blockedUntil resolves the block key's remaining TTL into an absolute
// expiry instant. A missing key or error reads as unblocked.
func (r *RedisLimiter) blockedUntil(ctx context.Context, identifier string, now time.Time) (time.Time, bool) {
	ttl, err := r.client.PTTL(ctx, redisBlockPrefix+identifier).Result()
	if err != nil {
		slog.Error("rate limit block lookup failed", "identifier", identifier, "error", err)
		return time.Time{}, false
	}
	if ttl <= 0 {
		return time.Time{}, false
	}
	return now.Add(ttl), true
}

// failOpen logs a backend error and allows the request. A broken Redis must
// not take the API down with it.
func (r *RedisLimiter) failOpen(err error, limit int, window time.Duration, now time.Time) Result {
	slog.Error("rate limit backend unavailable, allowing request", "error", err)
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(window),
	}
}
