package store

import (
	"context"
	"strconv"

	"github.com/Murkirpus/Redis-Chat/internal/crypto"
)

// IssueToken returns the session's anti-forgery token, generating one
// if none exists. Idempotent: repeated calls within the token's
// lifetime return the same value.
func (s *RedisStore) IssueToken(ctx context.Context, sessionID string) (string, error) {
	key := tokenKey(sessionID)

	existing, err := s.client.HGet(ctx, key, "value").Result()
	if err == nil && existing != "" {
		return existing, nil
	}

	value, err := crypto.NewToken()
	if err != nil {
		return "", err
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "value", value, "issued", strconv.FormatInt(s.now().Unix(), 10))
	// Keep the record past the lifetime so an aged token is recognized
	// as expired rather than missing.
	pipe.Expire(ctx, key, 2*s.cfg.TokenLifetime)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", s.unavailable("issue token", err)
	}

	return value, nil
}

// VerifyToken checks a candidate against the session's token in
// constant time. An aged token fails verification and is silently
// regenerated; a plain mismatch fails without touching the stored
// value, so tokens persist across many verified requests.
func (s *RedisStore) VerifyToken(ctx context.Context, sessionID, candidate string) (bool, error) {
	key := tokenKey(sessionID)

	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return false, s.unavailable("verify token", err)
	}
	value, ok := vals["value"]
	if !ok || value == "" {
		return false, nil
	}

	issued, _ := strconv.ParseInt(vals["issued"], 10, 64)
	if s.now().Unix()-issued > int64(s.cfg.TokenLifetime.Seconds()) {
		if err := s.client.Del(ctx, key).Err(); err == nil {
			if _, err := s.IssueToken(ctx, sessionID); err != nil {
				s.logger.Error().Err(err).Msg("token regeneration failed")
			}
		}
		return false, nil
	}

	return crypto.TokensEqual(value, candidate), nil
}
