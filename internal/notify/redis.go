package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"auction-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	auctionChannelPrefix = "auction_events:"
	userChannelPrefix    = "user_events:"
	presenceKeyPrefix    = "presence:user:"

	// DefaultPresenceTTL bounds how long a crashed instance can report a user as online
	DefaultPresenceTTL = 2 * time.Minute
)

// NewRedisClient parses a redis URL and checks the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// RedisTransport publishes events on Redis Pub/Sub so other instances can
// push them to their own websocket sessions.
// Channels: "auction_events:{auctionID}" and "user_events:{userID}".
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport wraps a connected client
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

// Name implements Transport
func (t *RedisTransport) Name() string { return "redis" }

// Deliver implements Transport
func (t *RedisTransport) Deliver(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	if err := t.client.Publish(ctx, ChannelFor(event), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", event.Topic, err)
	}
	return nil
}

// ChannelFor returns the Pub/Sub channel an event is published on
func ChannelFor(event models.Event) string {
	if event.UserID != "" {
		return userChannelPrefix + event.UserID
	}
	return auctionChannelPrefix + event.AuctionID
}

// RedisPresence is a presence directory shared by every instance. Each user
// has a sorted set "presence:user:{userID}" whose members are instance IDs
// scored by the time their claim expires. An instance that stops refreshing
// drops out after the TTL without touching the claims of other instances.
type RedisPresence struct {
	client   *redis.Client
	instance string
	ttl      time.Duration
	now      func() time.Time
}

// PresenceOption customizes a RedisPresence
type PresenceOption func(*RedisPresence)

// WithPresenceClock overrides the time source used for claim expiry
func WithPresenceClock(now func() time.Time) PresenceOption {
	return func(p *RedisPresence) { p.now = now }
}

// NewRedisPresence creates a presence directory for one instance
func NewRedisPresence(client *redis.Client, instanceID string, ttl time.Duration, opts ...PresenceOption) *RedisPresence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	p := &RedisPresence{client: client, instance: instanceID, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MarkOnline implements PresenceTracker. Calling it again extends the claim.
func (p *RedisPresence) MarkOnline(ctx context.Context, userID string) error {
	key := presenceKeyPrefix + userID
	expires := p.now().Add(p.ttl).UnixMilli()
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expires), Member: p.instance})
		// the key outlives its newest claim so abandoned sets are collected
		pipe.PExpire(ctx, key, p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis presence claim for user %s: %w", userID, err)
	}
	return nil
}

// MarkOffline implements PresenceTracker. Only this instance's claim is removed.
func (p *RedisPresence) MarkOffline(ctx context.Context, userID string) error {
	if err := p.client.ZRem(ctx, presenceKeyPrefix+userID, p.instance).Err(); err != nil {
		return fmt.Errorf("redis presence release for user %s: %w", userID, err)
	}
	return nil
}

// IsOnline implements Presence. A user is online while any instance holds an
// unexpired claim.
func (p *RedisPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	from := "(" + strconv.FormatInt(p.now().UnixMilli(), 10)
	n, err := p.client.ZCount(ctx, presenceKeyPrefix+userID, from, "+inf").Result()
	if err != nil {
		return false, fmt.Errorf("redis presence lookup for user %s: %w", userID, err)
	}
	return n > 0, nil
}
