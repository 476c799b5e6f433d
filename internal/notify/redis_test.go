package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisTransport_Deliver(t *testing.T) {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		event   models.Event
		channel string
		err     error
	}{
		{
			name:    "auction_event",
			event:   models.Event{ID: "e1", Topic: models.TopicNewBid, AuctionID: "a1", CreatedAt: at},
			channel: "auction_events:a1",
		},
		{
			name:    "user_event",
			event:   models.Event{ID: "e2", Topic: models.TopicUserOutbid, AuctionID: "a1", UserID: "u7", CreatedAt: at},
			channel: "user_events:u7",
		},
		{
			name:    "publish_failure",
			event:   models.Event{ID: "e3", Topic: models.TopicAuctionEnded, AuctionID: "a1", CreatedAt: at},
			channel: "auction_events:a1",
			err:     errors.New("redis down"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			transport := NewRedisTransport(db)

			payload, err := json.Marshal(tc.event)
			require.NoError(t, err)
			if tc.err != nil {
				mock.ExpectPublish(tc.channel, payload).SetErr(tc.err)
			} else {
				mock.ExpectPublish(tc.channel, payload).SetVal(1)
			}

			err = transport.Deliver(context.Background(), tc.event)
			if tc.err != nil {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// presenceClock is a manual clock shared by RedisPresence and miniredis TTLs
type presenceClock struct {
	mu  sync.Mutex
	now time.Time
	mr  *miniredis.Miniredis
}

func (c *presenceClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *presenceClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	c.mr.FastForward(d)
}

func newPresenceRedis(t *testing.T) (*redis.Client, *presenceClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, &presenceClock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), mr: mr}
}

func TestRedisPresence_ClaimExpiresWithoutRefresh(t *testing.T) {
	client, clock := newPresenceRedis(t)
	presence := NewRedisPresence(client, "i1", time.Minute, WithPresenceClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, presence.MarkOnline(ctx, "u1"))
	online, err := presence.IsOnline(ctx, "u1")
	require.NoError(t, err)
	require.True(t, online)

	clock.Advance(50 * time.Second)
	require.NoError(t, presence.MarkOnline(ctx, "u1"))
	clock.Advance(50 * time.Second)
	online, err = presence.IsOnline(ctx, "u1")
	require.NoError(t, err)
	require.True(t, online, "a refreshed claim outlives the original TTL")

	clock.Advance(time.Minute)
	online, err = presence.IsOnline(ctx, "u1")
	require.NoError(t, err)
	require.False(t, online)
}

func TestRedisPresence_ClaimsArePerInstance(t *testing.T) {
	client, clock := newPresenceRedis(t)
	a := NewRedisPresence(client, "instance-a", time.Minute, WithPresenceClock(clock.Now))
	b := NewRedisPresence(client, "instance-b", time.Minute, WithPresenceClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, a.MarkOnline(ctx, "u1"))
	require.NoError(t, b.MarkOnline(ctx, "u1"))

	require.NoError(t, a.MarkOffline(ctx, "u1"))
	online, err := b.IsOnline(ctx, "u1")
	require.NoError(t, err)
	require.True(t, online, "the session on instance-b is still open")

	require.NoError(t, b.MarkOffline(ctx, "u1"))
	online, err = a.IsOnline(ctx, "u1")
	require.NoError(t, err)
	require.False(t, online)
}

func TestRedisPresence_LookupError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	presence := NewRedisPresence(db, "i1", time.Minute, WithPresenceClock(func() time.Time { return at }))

	mock.ExpectZCount("presence:user:u2", "("+strconv.FormatInt(at.UnixMilli(), 10), "+inf").SetErr(errors.New("timeout"))
	_, err := presence.IsOnline(context.Background(), "u2")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
