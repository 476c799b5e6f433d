// Package notify delivers committed domain events to real-time transports.
// Delivery is best effort and at most once: events are neither persisted nor
// replayed, and a full queue drops new events instead of blocking the caller.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/utils"
)

const (
	DefaultBufferSize      = 256
	defaultDeliveryTimeout = 5 * time.Second
)

// Transport is a real-time sink for events
type Transport interface {
	Name() string
	Deliver(ctx context.Context, event models.Event) error
}

// Presence answers whether a user currently has a live session somewhere.
// It is owned by the connection layer; the bus only queries it.
type Presence interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// AnyPresence reports a user online when any of its directories does. It
// lets the local hub vouch for its own sessions when a shared directory lags.
type AnyPresence []Presence

// IsOnline implements Presence. An error is returned only when no directory
// answered.
func (ps AnyPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	var errs []error
	for _, p := range ps {
		online, err := p.IsOnline(ctx, userID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if online {
			return true, nil
		}
	}
	if len(ps) > 0 && len(errs) == len(ps) {
		return false, errors.Join(errs...)
	}
	return false, nil
}

// Bus fans events out to every transport from a single worker goroutine
type Bus struct {
	queue      chan models.Event
	transports []Transport
	presence   Presence
	timeout    time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// BusOption customizes a Bus
type BusOption func(*Bus)

// WithTransports adds delivery sinks
func WithTransports(ts ...Transport) BusOption {
	return func(b *Bus) { b.transports = append(b.transports, ts...) }
}

// WithPresence makes the bus skip user-addressed events for offline users
func WithPresence(p Presence) BusOption {
	return func(b *Bus) { b.presence = p }
}

// WithDeliveryTimeout bounds each transport delivery
func WithDeliveryTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBus creates a Bus and starts its worker
func NewBus(bufferSize int, opts ...BusOption) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	b := &Bus{
		queue:   make(chan models.Event, bufferSize),
		timeout: defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.wg.Add(1)
	go b.run()
	return b
}

// Publish enqueues an event without blocking. The event is dropped when the
// queue is full or the bus is closed.
func (b *Bus) Publish(event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		metrics.TrackEvent(string(event.Topic), "dropped")
		return
	}

	select {
	case b.queue <- event:
		metrics.TrackEvent(string(event.Topic), "queued")
		metrics.SetEventQueueDepth(len(b.queue))
	default:
		metrics.TrackEvent(string(event.Topic), "dropped")
		utils.Warn("Event queue full, dropping event", map[string]any{
			"topic":      event.Topic,
			"auction_id": event.AuctionID,
			"event_id":   event.ID,
		})
	}
}

// Close stops accepting events, drains the queue and waits for the worker
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) run() {
	defer b.wg.Done()
	for event := range b.queue {
		metrics.SetEventQueueDepth(len(b.queue))
		b.dispatch(event)
	}
}

func (b *Bus) dispatch(event models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if event.UserID != "" && b.presence != nil {
		online, err := b.presence.IsOnline(ctx, event.UserID)
		if err != nil {
			utils.Warn("Presence lookup failed, delivering anyway", map[string]any{
				"user_id": event.UserID,
				"error":   err.Error(),
			})
		} else if !online {
			metrics.TrackEvent(string(event.Topic), "offline")
			return
		}
	}

	for _, t := range b.transports {
		if err := t.Deliver(ctx, event); err != nil {
			metrics.TrackEvent(string(event.Topic), "failed")
			utils.Warn("Event delivery failed", map[string]any{
				"transport":  t.Name(),
				"topic":      event.Topic,
				"auction_id": event.AuctionID,
				"error":      err.Error(),
			})
			continue
		}
		metrics.TrackEvent(string(event.Topic), "delivered")
	}
}
