package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOnlineCountTracksRecentHeartbeats(t *testing.T) {
	s, _ := newTestStore(t, testConfig())
	ctx := context.Background()

	s.now = func() time.Time { return time.Unix(1000, 0) }
	s.Heartbeat(ctx, "session-1")
	s.Heartbeat(ctx, "session-2")
	assert.Equal(t, int64(2), s.OnlineCount(ctx))

	// Re-heartbeating the same session does not double count.
	s.Heartbeat(ctx, "session-1")
	assert.Equal(t, int64(2), s.OnlineCount(ctx))
}

func TestOnlineCountPrunesStaleSessions(t *testing.T) {
	cfg := testConfig()
	cfg.ActivityWindow = 5 * time.Minute
	s, _ := newTestStore(t, cfg)
	ctx := context.Background()

	s.now = func() time.Time { return time.Unix(1000, 0) }
	s.Heartbeat(ctx, "session-1")

	s.now = func() time.Time { return time.Unix(1200, 0) }
	s.Heartbeat(ctx, "session-2")

	// At t=1400 session-1's heartbeat is 400s old (outside the 300s
	// window), session-2's is 200s old.
	s.now = func() time.Time { return time.Unix(1400, 0) }
	assert.Equal(t, int64(1), s.OnlineCount(ctx))

	// A fresh heartbeat revives the pruned session.
	s.Heartbeat(ctx, "session-1")
	assert.Equal(t, int64(2), s.OnlineCount(ctx))
}

func TestPresenceSetExpiresAfterTotalSilence(t *testing.T) {
	cfg := testConfig()
	cfg.PresenceTTL = 10 * time.Minute
	s, mr := newTestStore(t, cfg)
	ctx := context.Background()

	s.now = func() time.Time { return time.Unix(1000, 0) }
	s.Heartbeat(ctx, "session-1")
	assert.True(t, mr.Exists(onlineKey))

	// The coarse safety net removes the whole set once nobody has
	// heartbeated for the TTL.
	mr.FastForward(11 * time.Minute)
	assert.False(t, mr.Exists(onlineKey))
}
