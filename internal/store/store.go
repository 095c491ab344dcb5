package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Murkirpus/Redis-Chat/internal/config"
	"github.com/Murkirpus/Redis-Chat/internal/metrics"
)

const (
	messagesKey  = "chat:messages"
	sweepMarkKey = "chat:sweep:mark"
	onlineKey    = "chat:online"
)

// rateLimitKey returns the key for a session's rate limit counter.
func rateLimitKey(sessionID string) string {
	return "chat:rate:" + sessionID
}

// floodKey returns the key for an origin's flood counter.
func floodKey(originHash string) string {
	return "chat:flood:" + originHash
}

// tokenKey returns the key for a session's anti-forgery token.
func tokenKey(sessionID string) string {
	return "chat:token:" + sessionID
}

// RedisStore owns the chat state in Redis: the message log, abuse
// counters, presence set and anti-forgery tokens. All cross-request
// coordination goes through Redis primitives; the store itself holds no
// mutable state, so one value is shared by every request.
type RedisStore struct {
	client *redis.Client
	cfg    *config.Config
	logger zerolog.Logger

	// now and usedMemory are swappable for tests.
	now        func() time.Time
	usedMemory func(ctx context.Context) (int64, error)
}

// New connects to Redis and returns a store.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	client.AddHook(latencyHook{})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg, logger), nil
}

// latencyHook feeds Redis command latency into Prometheus.
type latencyHook struct{}

func (latencyHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (latencyHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
		return err
	}
}

func (latencyHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
		return err
	}
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(client *redis.Client, cfg *config.Config, logger zerolog.Logger) *RedisStore {
	s := &RedisStore{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	s.usedMemory = s.infoUsedMemory
	return s
}

// Now returns the store's clock reading. Handlers use it so origin
// hashes rotate on the same day boundary the store sees.
func (s *RedisStore) Now() time.Time {
	return s.now()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// infoUsedMemory reads used_memory from INFO. Approximate by design;
// the overflow controller only needs a coarse signal.
func (s *RedisStore) infoUsedMemory(ctx context.Context) (int64, error) {
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
	}
	return 0, nil
}
