package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitStatus is the outcome of a rate limit check. When not
// allowed, Wait is the residual window the caller should surface as a
// retry hint.
type RateLimitStatus struct {
	Allowed bool
	Wait    time.Duration
}

// RateLimitCheck counts this call against the session's fixed window
// and reports whether it is allowed. The counter is created on first
// increment and destroyed by its own expiry; a window resets to empty
// once the expiry fires, which permits bursts exactly at window
// boundaries (accepted imprecision).
func (s *RedisStore) RateLimitCheck(ctx context.Context, sessionID string) (RateLimitStatus, error) {
	key := rateLimitKey(sessionID)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return RateLimitStatus{}, s.unavailable("rate limit", err)
	}
	if count == 1 {
		s.client.Expire(ctx, key, s.cfg.RateLimitWindow)
	}

	if count > int64(s.cfg.RateLimitCap) {
		wait, err := s.client.TTL(ctx, key).Result()
		if err != nil || wait < 0 {
			wait = s.cfg.RateLimitWindow
		}
		return RateLimitStatus{Allowed: false, Wait: wait}, nil
	}

	return RateLimitStatus{Allowed: true}, nil
}

// FloodCheck reports whether the origin is still under its per-window
// cap. Check only: the counter is incremented by trackFlood after a
// successful insert, never here.
func (s *RedisStore) FloodCheck(ctx context.Context, originHash string) (bool, error) {
	count, err := s.client.Get(ctx, floodKey(originHash)).Int64()
	if err != nil && err != redis.Nil {
		return false, s.unavailable("flood check", err)
	}
	return count < int64(s.cfg.FloodCap), nil
}

// trackFlood counts one accepted write against the origin's window.
func (s *RedisStore) trackFlood(ctx context.Context, originHash string) {
	key := floodKey(originHash)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("flood tracking failed")
		return
	}
	if count == 1 {
		s.client.Expire(ctx, key, s.cfg.RateLimitWindow)
	}
}
