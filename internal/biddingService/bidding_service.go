package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/ledger"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 10 * time.Millisecond
)

// EventPublisher receives events after the transaction that produced them has committed
type EventPublisher interface {
	Publish(event models.Event)
}

// BiddingService is the bid processor: it joins users to auctions, accepts
// bids, settles ended auctions and runs the auction admin operations. Every
// mutation happens inside one repository transaction; events go out only
// after that transaction commits.
type BiddingService struct {
	repo         repository.AuctionDB
	ledger       *ledger.Ledger
	events       EventPublisher
	now          func() time.Time
	maxRetries   int
	retryBackoff time.Duration
	tracer       trace.Tracer
}

// Option customizes a BiddingService
type Option func(*BiddingService)

// WithClock overrides the time source used for every time guard
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithMaxRetries sets how often a conflicting transaction is retried
func WithMaxRetries(n int) Option {
	return func(s *BiddingService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between conflict retries
func WithRetryBackoff(d time.Duration) Option {
	return func(s *BiddingService) { s.retryBackoff = d }
}

// WithLedger replaces the wallet ledger
func WithLedger(l *ledger.Ledger) Option {
	return func(s *BiddingService) { s.ledger = l }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, events EventPublisher, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:         repo,
		events:       events,
		now:          func() time.Time { return time.Now().UTC() },
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
		tracer:       otel.Tracer(utils.TracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = ledger.New(ledger.WithClock(s.now))
	}
	return s
}

// Now returns the service clock; the scheduler shares it so both sides agree on time guards
func (s *BiddingService) Now() time.Time {
	return s.now()
}

// withRetry runs fn again while it fails with ErrConcurrencyConflict, up to maxRetries extra times
func (s *BiddingService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, auctionerrors.ErrConcurrencyConflict) || attempt >= s.maxRetries {
			return err
		}

		metrics.TrackConflictRetry()
		utils.Warn("Retrying after concurrency conflict", map[string]any{
			"operation": op,
			"attempt":   attempt + 1,
			"error":     err.Error(),
		})

		select {
		case <-ctx.Done():
			return fmt.Errorf("service: %s retry aborted: %w", op, err)
		case <-time.After(s.retryBackoff * time.Duration(attempt+1)):
		}
	}
}

// startSpan opens a tracing span for op
func (s *BiddingService) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "bidding."+op, trace.WithAttributes(attrs...))
}

// finish closes the span and records the metrics for one join or bid call
func finish(span trace.Span, op string, started time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	metrics.TrackBidOperation(op, outcome(err), time.Since(started))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return "auction_not_found"
	case errors.Is(err, auctionerrors.ErrAuctionNotLive):
		return "auction_not_live"
	case errors.Is(err, auctionerrors.ErrAuctionEnded):
		return "auction_ended"
	case errors.Is(err, auctionerrors.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, auctionerrors.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, auctionerrors.ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, auctionerrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, auctionerrors.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

// emit hands committed events to the publisher
func (s *BiddingService) emit(events ...models.Event) {
	if s.events == nil {
		return
	}
	for _, e := range events {
		s.events.Publish(e)
	}
}

// currentHighest is the amount a new bid has to beat
func currentHighest(a models.Auction, stakes []models.Stake) int64 {
	highest := a.StartingBid
	for _, st := range stakes {
		if st.Amount > highest {
			highest = st.Amount
		}
	}
	return highest
}

func validateIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("service: %w - missing auctionID or userID", auctionerrors.ErrInvalidInput)
		}
	}
	return nil
}
