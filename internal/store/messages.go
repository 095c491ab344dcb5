package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Murkirpus/Redis-Chat/internal/metrics"
	"github.com/Murkirpus/Redis-Chat/internal/models"
)

// softCleanupMax bounds how many messages one soft cleanup pass evicts.
const softCleanupMax = 500

// Append admits and stores a new message. Admission runs in order:
// flood check, hard cap, memory budget, soft cap. Each step may refuse
// with a *RejectionError; the flood counter is only incremented after a
// successful insert, so rejected writes never count against the window.
// On success the message's ID and CreatedAt are filled in.
func (s *RedisStore) Append(ctx context.Context, msg *models.Message) error {
	if msg.OriginHash != "" {
		allowed, err := s.FloodCheck(ctx, msg.OriginHash)
		if err != nil {
			return err
		}
		if !allowed {
			return &RejectionError{Reason: ReasonFlood}
		}
	}

	count, err := s.count(ctx)
	if err != nil {
		return s.unavailable("append: count", err)
	}

	if count >= int64(s.cfg.HardCap) {
		s.emergencyCleanup(ctx, count)
		count, err = s.count(ctx)
		if err != nil {
			return s.unavailable("append: recount", err)
		}
		if count >= int64(s.cfg.HardCap) {
			return &RejectionError{Reason: ReasonCapacity}
		}
	}

	if s.cfg.MemoryBudget > 0 {
		used, err := s.usedMemory(ctx)
		if err != nil {
			return s.unavailable("append: memory", err)
		}
		if used > s.cfg.MemoryBudget {
			// Free what we can, but still refuse: callers should back
			// off until memory pressure clears.
			s.emergencyCleanup(ctx, count)
			return &RejectionError{Reason: ReasonMemory}
		}
	}

	if count >= int64(s.cfg.SoftCap) {
		s.softCleanup(ctx, count)
	}

	msg.ID = ulid.Make().String()
	msg.CreatedAt = s.now().Unix()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, messagesKey, redis.Z{
		Score:  float64(msg.CreatedAt),
		Member: string(data),
	})
	// Coarse safety net: the whole log dies after a TTL of total silence.
	pipe.Expire(ctx, messagesKey, s.cfg.MessageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.unavailable("append: insert", err)
	}

	if msg.OriginHash != "" {
		s.trackFlood(ctx, msg.OriginHash)
	}

	return nil
}

// emergencyCleanup evicts the oldest batch when the store is at hard
// cap, bounded by min(CleanupBatchSize, count-SoftCap).
func (s *RedisStore) emergencyCleanup(ctx context.Context, count int64) {
	n := count - int64(s.cfg.SoftCap)
	if n > int64(s.cfg.CleanupBatchSize) {
		n = int64(s.cfg.CleanupBatchSize)
	}
	if n <= 0 {
		return
	}
	removed, err := s.client.ZRemRangeByRank(ctx, messagesKey, 0, n-1).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("emergency cleanup failed")
		return
	}
	metrics.MessagesEvicted.WithLabelValues("emergency").Add(float64(removed))
}

// softCleanup trims the oldest messages once the soft cap is crossed,
// at most softCleanupMax per pass. Spreading eviction over many writes
// keeps the store oscillating just above SoftCap instead of deferring
// one big emergency pass at HardCap.
func (s *RedisStore) softCleanup(ctx context.Context, count int64) {
	n := count - int64(s.cfg.SoftCap) + softCleanupMax
	if n > softCleanupMax {
		n = softCleanupMax
	}
	if n <= 0 {
		return
	}
	removed, err := s.client.ZRemRangeByRank(ctx, messagesKey, 0, n-1).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("soft cleanup failed")
		return
	}
	metrics.MessagesEvicted.WithLabelValues("soft").Add(float64(removed))
}

// SweepExpired removes messages older than the TTL. A sentinel marker
// key throttles sweeps to once per CleanupInterval; concurrent callers
// racing on the marker may run one extra sweep, which is harmless
// because the deletion is idempotent.
func (s *RedisStore) SweepExpired(ctx context.Context) {
	set, err := s.client.SetNX(ctx, sweepMarkKey, "1", s.cfg.CleanupInterval).Result()
	if err != nil || !set {
		return
	}

	cutoff := s.now().Unix() - int64(s.cfg.MessageTTL.Seconds())
	removed, err := s.client.ZRemRangeByScore(ctx, messagesKey, "-inf", fmt.Sprintf("(%d", cutoff)).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	metrics.SweepsRun.Inc()
	if removed > 0 {
		metrics.MessagesEvicted.WithLabelValues("expired").Add(float64(removed))
		s.logger.Debug().Int64("removed", removed).Msg("swept expired messages")
	}
}

// EnforceHardCap trims unconditionally down to HardCap. Run once at
// startup so a lowered cap takes effect on restart.
func (s *RedisStore) EnforceHardCap(ctx context.Context) error {
	count, err := s.count(ctx)
	if err != nil {
		return s.unavailable("enforce hard cap", err)
	}
	excess := count - int64(s.cfg.HardCap)
	if excess <= 0 {
		return nil
	}
	if err := s.client.ZRemRangeByRank(ctx, messagesKey, 0, excess-1).Err(); err != nil {
		return s.unavailable("enforce hard cap", err)
	}
	metrics.MessagesEvicted.WithLabelValues("startup").Add(float64(excess))
	return nil
}

// Count returns the number of stored messages, zero when Redis is down.
func (s *RedisStore) Count(ctx context.Context) int64 {
	s.SweepExpired(ctx)

	count, err := s.count(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("count degraded to zero")
		return 0
	}
	return count
}

func (s *RedisStore) count(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, messagesKey).Result()
}

// LatestTimestamp returns the newest message's CreatedAt, or zero when
// the store is empty or unreachable. Cheap enough to serve as the sync
// protocol's liveness probe.
func (s *RedisStore) LatestTimestamp(ctx context.Context) int64 {
	s.SweepExpired(ctx)

	results, err := s.client.ZRevRangeWithScores(ctx, messagesKey, 0, 0).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("latest timestamp degraded to zero")
		return 0
	}
	if len(results) == 0 {
		return 0
	}
	return int64(results[0].Score)
}

// QueryRecent returns the last limit messages visible to viewerSession,
// in ascending chronological order. Internal correlation fields are
// stripped. Redis errors degrade to an empty result.
func (s *RedisStore) QueryRecent(ctx context.Context, viewerSession string, limit int) []models.Message {
	s.SweepExpired(ctx)

	// Over-fetch: private messages belonging to other sessions are
	// filtered out below. The 3x window bounds work per call, at the
	// cost that a viewer may get fewer than limit results when more
	// than two thirds of the recent window is other sessions' private
	// traffic.
	raw, err := s.client.ZRevRange(ctx, messagesKey, 0, int64(limit*3)-1).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("recent query degraded to empty")
		return []models.Message{}
	}

	// raw is newest-first; collect then reverse to ascending.
	picked := make([]models.Message, 0, limit)
	for _, data := range raw {
		if len(picked) >= limit {
			break
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		if !msg.VisibleTo(viewerSession) {
			continue
		}
		picked = append(picked, msg.Public())
	}

	messages := make([]models.Message, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		messages = append(messages, picked[i])
	}
	return messages
}

// QueryAfter returns up to limit messages strictly newer than after,
// ascending, visible to viewerSession. This is the delta fetch: clients
// pass their watermark and only pay for what they have not seen.
func (s *RedisStore) QueryAfter(ctx context.Context, viewerSession string, after int64, limit int) []models.Message {
	s.SweepExpired(ctx)

	raw, err := s.client.ZRangeByScore(ctx, messagesKey, &redis.ZRangeBy{
		Min:   fmt.Sprintf("(%d", after),
		Max:   "+inf",
		Count: int64(limit * 3),
	}).Result()
	if err != nil {
		s.logger.Error().Err(err).Msg("delta query degraded to empty")
		return []models.Message{}
	}

	messages := make([]models.Message, 0, limit)
	for _, data := range raw {
		if len(messages) >= limit {
			break
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		if !msg.VisibleTo(viewerSession) {
			continue
		}
		messages = append(messages, msg.Public())
	}
	return messages
}

// unavailable logs a Redis failure and converts it to the write-path
// sentinel error.
func (s *RedisStore) unavailable(op string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Msg("store unavailable")
	return ErrStoreUnavailable
}
