package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Murkirpus/Redis-Chat/internal/config"
	"github.com/Murkirpus/Redis-Chat/internal/models"
)

// testConfig returns generous defaults; individual tests tighten the
// knobs they exercise.
func testConfig() *config.Config {
	return &config.Config{
		SoftCap:          1000,
		HardCap:          2000,
		CleanupBatchSize: 100,
		MemoryBudget:     0, // disabled unless a test overrides usedMemory
		RateLimitCap:     3,
		FloodCap:         10,
		RateLimitWindow:  time.Minute,
		MessageTTL:       24 * time.Hour,
		CleanupInterval:  5 * time.Minute,
		TokenLifetime:    time.Hour,
		PresenceTTL:      10 * time.Minute,
		ActivityWindow:   5 * time.Minute,
	}
}

func newTestStore(t *testing.T, cfg *config.Config) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, cfg, zerolog.Nop()), mr
}

// appendAt inserts a message with the store clock pinned to the given
// unix second.
func appendAt(t *testing.T, s *RedisStore, ts int64, body string) *models.Message {
	t.Helper()
	s.now = func() time.Time { return time.Unix(ts, 0) }
	msg := &models.Message{Author: "alice", Body: body}
	require.NoError(t, s.Append(context.Background(), msg))
	return msg
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	s, _ := newTestStore(t, testConfig())

	msg := appendAt(t, s, 1000, "hello")
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, int64(1000), msg.CreatedAt)
	assert.Equal(t, int64(1), s.Count(context.Background()))
}

func TestQueryRecentOrderAndLimit(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	appendAt(t, s, 100, "first")
	appendAt(t, s, 200, "second")
	appendAt(t, s, 300, "third")

	msgs := s.QueryRecent(ctx, "viewer", 2)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Body)
	assert.Equal(t, "third", msgs[1].Body)
	assert.Equal(t, int64(200), msgs[0].CreatedAt)
	assert.Equal(t, int64(300), msgs[1].CreatedAt)
}

func TestQueryAfterStrictlyNewerAscending(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	appendAt(t, s, 100, "a")
	appendAt(t, s, 200, "b")
	appendAt(t, s, 300, "c")
	appendAt(t, s, 400, "d")

	msgs := s.QueryAfter(ctx, "viewer", 200, 10)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[0].Body)
	assert.Equal(t, "d", msgs[1].Body)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].CreatedAt, msgs[i-1].CreatedAt)
	}

	// Limit caps the result.
	msgs = s.QueryAfter(ctx, "viewer", 0, 2)
	assert.Len(t, msgs, 2)

	// Watermark at the newest message yields nothing.
	assert.Empty(t, s.QueryAfter(ctx, "viewer", 400, 10))
}

func TestOriginHashNeverLeavesStore(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	s.now = func() time.Time { return time.Unix(100, 0) }
	msg := &models.Message{Author: "alice", Body: "hi", OriginHash: "deadbeef"}
	require.NoError(t, s.Append(ctx, msg))

	for _, m := range s.QueryRecent(ctx, "viewer", 10) {
		assert.Empty(t, m.OriginHash)
		assert.Empty(t, m.OwnerSession)
	}
	for _, m := range s.QueryAfter(ctx, "viewer", 0, 10) {
		assert.Empty(t, m.OriginHash)
	}
}

func TestPrivateVisibility(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	s.now = func() time.Time { return time.Unix(100, 0) }
	pub := &models.Message{Author: "alice", Body: "public"}
	require.NoError(t, s.Append(ctx, pub))

	s.now = func() time.Time { return time.Unix(101, 0) }
	priv := &models.Message{
		Author:       "assistant",
		Body:         "just for bob",
		Visibility:   models.VisibilityPrivate,
		OwnerSession: "bob",
	}
	require.NoError(t, s.Append(ctx, priv))

	bobView := s.QueryRecent(ctx, "bob", 10)
	require.Len(t, bobView, 2)
	assert.Empty(t, bobView[1].OwnerSession)

	otherView := s.QueryRecent(ctx, "carol", 10)
	require.Len(t, otherView, 1)
	assert.Equal(t, "public", otherView[0].Body)
}

func TestLatestTimestamp(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	assert.Equal(t, int64(0), s.LatestTimestamp(ctx))

	appendAt(t, s, 100, "a")
	appendAt(t, s, 250, "b")
	assert.Equal(t, int64(250), s.LatestTimestamp(ctx))
}

func TestHardCapNeverExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.SoftCap = 3
	cfg.HardCap = 5
	cfg.CleanupBatchSize = 2
	s, _ := newTestStore(t, cfg)
	ctx := context.Background()

	for i := int64(0); i < 20; i++ {
		s.now = func() time.Time { return time.Unix(1000+i, 0) }
		err := s.Append(ctx, &models.Message{Author: "a", Body: "x"})
		if err != nil {
			require.NotNil(t, AsRejection(err))
		}
		assert.LessOrEqual(t, s.Count(ctx), int64(cfg.HardCap))
	}
}

func TestSoftCleanupKeepsStoreNearSoftCap(t *testing.T) {
	cfg := testConfig()
	cfg.SoftCap = 3
	cfg.HardCap = 5
	s, _ := newTestStore(t, cfg)
	ctx := context.Background()

	appendAt(t, s, 100, "a")
	appendAt(t, s, 101, "b")
	appendAt(t, s, 102, "c")
	require.Equal(t, int64(3), s.Count(ctx))

	// One more append crosses the soft cap and triggers soft cleanup.
	appendAt(t, s, 103, "d")

	count := s.Count(ctx)
	assert.LessOrEqual(t, count, int64(cfg.HardCap))
	assert.GreaterOrEqual(t, count, int64(1))
	// Soft cleanup evicts oldest first: the new message survives.
	msgs := s.QueryRecent(ctx, "v", 10)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "d", msgs[len(msgs)-1].Body)
}

func TestEmergencyCleanupAtHardCap(t *testing.T) {
	cfg := testConfig()
	cfg.SoftCap = 3
	cfg.HardCap = 5
	cfg.CleanupBatchSize = 2
	s, mr := newTestStore(t, cfg)
	ctx := context.Background()

	// Seed straight through Redis to land exactly at hard cap without
	// tripping the soft-cap path.
	s.now = func() time.Time { return time.Unix(200, 0) }
	for i := 0; i < 5; i++ {
		seedMessage(t, mr, int64(100+i))
	}
	require.Equal(t, int64(5), s.Count(ctx))

	// Emergency cleanup frees min(batch, count-softCap) = 2; the write
	// then fits.
	require.NoError(t, s.Append(ctx, &models.Message{Author: "a", Body: "new"}))
	assert.LessOrEqual(t, s.Count(ctx), int64(cfg.HardCap))
}

func TestCapacityRejectedWhenCleanupCannotFree(t *testing.T) {
	cfg := testConfig()
	cfg.SoftCap = 5 // count-softCap = 0: emergency cleanup frees nothing
	cfg.HardCap = 5
	cfg.CleanupBatchSize = 2
	s, mr := newTestStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedMessage(t, mr, int64(100+i))
	}

	s.now = func() time.Time { return time.Unix(200, 0) }
	err := s.Append(ctx, &models.Message{Author: "a", Body: "x"})
	rej := AsRejection(err)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonCapacity, rej.Reason)
	assert.Equal(t, int64(5), s.Count(ctx))
}

func TestMemoryRejected(t *testing.T) {
	cfg := testConfig()
	cfg.MemoryBudget = 1024
	s, _ := newTestStore(t, cfg)
	ctx := context.Background()

	s.usedMemory = func(ctx context.Context) (int64, error) { return 2048, nil }
	s.now = func() time.Time { return time.Unix(100, 0) }

	err := s.Append(ctx, &models.Message{Author: "a", Body: "x"})
	rej := AsRejection(err)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonMemory, rej.Reason)
	assert.Equal(t, int64(0), s.Count(ctx))
}

func TestSweepExpired(t *testing.T) {
	cfg := testConfig()
	cfg.MessageTTL = 100 * time.Second
	cfg.CleanupInterval = time.Minute
	s, _ := newTestStore(t, cfg)
	ctx := context.Background()

	appendAt(t, s, 100, "old")
	appendAt(t, s, 290, "fresh")

	// At t=300 with TTL=100 the cutoff is 200: "old" goes, "fresh" stays.
	s.now = func() time.Time { return time.Unix(300, 0) }
	s.SweepExpired(ctx)

	msgs := s.QueryRecent(ctx, "v", 10)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Body)
}

func TestSweepThrottledBySentinel(t *testing.T) {
	cfg := testConfig()
	cfg.MessageTTL = 100 * time.Second
	cfg.CleanupInterval = time.Minute
	s, mr := newTestStore(t, cfg)
	ctx := context.Background()

	s.now = func() time.Time { return time.Unix(300, 0) }
	s.SweepExpired(ctx) // plants the sentinel

	// An expired message inserted after the sweep survives while the
	// sentinel is alive.
	seedMessage(t, mr, 100)
	s.SweepExpired(ctx)
	assert.Equal(t, int64(1), s.Count(ctx))

	// Once the sentinel expires the next sweep runs.
	mr.FastForward(2 * time.Minute)
	s.SweepExpired(ctx)
	assert.Equal(t, int64(0), s.Count(ctx))
}

func TestEnforceHardCap(t *testing.T) {
	cfg := testConfig()
	cfg.HardCap = 3
	s, mr := newTestStore(t, cfg)
	ctx := context.Background()

	s.now = func() time.Time { return time.Unix(200, 0) }
	for i := 0; i < 7; i++ {
		seedMessage(t, mr, int64(100+i))
	}

	require.NoError(t, s.EnforceHardCap(ctx))
	assert.Equal(t, int64(3), s.Count(ctx))

	// Oldest were trimmed.
	msgs := s.QueryRecent(ctx, "v", 10)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(104), msgs[0].CreatedAt)
}

func TestReadsDegradeWhenRedisDown(t *testing.T) {
	s, mr := newTestStore(t, testConfig())
	ctx := context.Background()

	appendAt(t, s, 100, "a")
	mr.Close()

	assert.Empty(t, s.QueryRecent(ctx, "v", 10))
	assert.Empty(t, s.QueryAfter(ctx, "v", 0, 10))
	assert.Equal(t, int64(0), s.Count(ctx))
	assert.Equal(t, int64(0), s.LatestTimestamp(ctx))
}

func TestWritesFailClosedWhenRedisDown(t *testing.T) {
	s, mr := newTestStore(t, testConfig())
	ctx := context.Background()

	mr.Close()

	err := s.Append(ctx, &models.Message{Author: "a", Body: "x"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

// seedMessage plants a raw message directly in the sorted set, below
// the admission pipeline.
func seedMessage(t *testing.T, mr *miniredis.Miniredis, ts int64) {
	t.Helper()
	tss := strconv.FormatInt(ts, 10)
	member := `{"id":"seed-` + tss + `","author":"seed","body":"seed","ts":` + tss + `}`
	_, err := mr.ZAdd(messagesKey, float64(ts), member)
	require.NoError(t, err)
}
