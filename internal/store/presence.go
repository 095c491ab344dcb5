package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Heartbeat records the session as active now. Every heartbeat also
// refreshes the absolute expiry on the whole presence set, so the set
// cannot outlive prolonged total silence.
func (s *RedisStore) Heartbeat(ctx context.Context, sessionID string) {
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, onlineKey, redis.Z{
		Score:  float64(s.now().Unix()),
		Member: sessionID,
	})
	pipe.Expire(ctx, onlineKey, s.cfg.PresenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error().Err(err).Msg("heartbeat failed")
	}
}

// OnlineCount prunes sessions whose last heartbeat fell outside the
// activity window, then returns how many remain. Degrades to zero when
// Redis is unreachable.
func (s *RedisStore) OnlineCount(ctx context.Context) int64 {
	cutoff := s.now().Unix() - int64(s.cfg.ActivityWindow.Seconds())
	s.client.ZRemRangeByScore(ctx, onlineKey, "-inf", fmt.Sprintf("(%d", cutoff))

	count, err := s.client.ZCard(ctx, onlineKey).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("online count degraded to zero")
		return 0
	}
	return count
}
