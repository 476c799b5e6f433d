// Package scheduler sweeps auctions on an interval, claiming due transitions
// and settling auctions it claims as ended.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/statemachine"
	"auction-engine/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultInterval is used when no interval is configured
const DefaultInterval = 30 * time.Second

// Settler settles an auction inside the transaction that claimed it as ended
type Settler interface {
	Settle(tx repository.Tx, a models.Auction) (models.AuctionEndedPayload, error)
}

// Publisher receives events after the sweep transaction commits
type Publisher interface {
	Publish(event models.Event)
}

// SweepFailure records an auction that could not be transitioned
type SweepFailure struct {
	AuctionID  string `json:"auction_id"`
	Transition string `json:"transition"`
	Error      string `json:"error"`
}

// SweepReport summarizes one sweep
type SweepReport struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Started   []string       `json:"started"`
	Ended     []string       `json:"ended"`
	Failures  []SweepFailure `json:"failures"`
}

// Status is the scheduler state reported to operators
type Status struct {
	Running     bool         `json:"running"`
	Interval    string       `json:"interval"`
	IntervalMs  int64        `json:"interval_ms"`
	LastSweepAt *time.Time   `json:"last_sweep_at"`
	LastReport  *SweepReport `json:"last_report"`
}

// Scheduler drives Upcoming->Live and Live->Ended transitions
type Scheduler struct {
	repo     repository.AuctionDB
	settler  Settler
	events   Publisher
	interval time.Duration
	now      func() time.Time
	tracer   trace.Tracer

	// mu guards the lifecycle fields
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// sweepMu keeps manual and periodic sweeps of this instance from overlapping
	sweepMu sync.Mutex

	statusMu   sync.RWMutex
	lastReport *SweepReport
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithInterval sets the sweep interval
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock overrides the time source used for the due checks
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a stopped Scheduler
func New(repo repository.AuctionDB, settler Settler, events Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:     repo,
		settler:  settler,
		events:   events,
		interval: DefaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
		tracer:   otel.Tracer(utils.TracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs an initial sweep and then sweeps on every tick until Stop is
// called or ctx is done. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)

	utils.Info("Auction scheduler started", map[string]any{"interval": s.interval.String()})
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.done
	s.running = false
	s.cancel = nil

	utils.Info("Auction scheduler stopped", nil)
}

// runningLocked reports whether the loop goroutine is alive. A loop ended by
// its parent context counts as stopped. Callers hold mu.
func (s *Scheduler) runningLocked() bool {
	if !s.running {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Status reports whether the loop is running and the last sweep outcome
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running := s.runningLocked()
	s.mu.Unlock()

	st := Status{
		Running:    running,
		Interval:   s.interval.String(),
		IntervalMs: s.interval.Milliseconds(),
	}

	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	if s.lastReport != nil {
		report := *s.lastReport
		at := report.StartedAt
		st.LastSweepAt = &at
		st.LastReport = &report
	}
	return st
}

// Sweep performs one claim-and-process pass over due auctions. Failures are
// logged per auction and never stop the rest of the sweep.
func (s *Scheduler) Sweep(ctx context.Context) SweepReport {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "scheduler.Sweep")
	defer span.End()

	now := s.now()
	report := SweepReport{StartedAt: now, Started: []string{}, Ended: []string{}, Failures: []SweepFailure{}}
	clock := time.Now()

	s.pass(ctx, statemachine.Start, now, &report)
	s.pass(ctx, statemachine.End, now, &report)

	report.Duration = time.Since(clock)
	span.SetAttributes(
		attribute.Int("sweep.started", len(report.Started)),
		attribute.Int("sweep.ended", len(report.Ended)),
		attribute.Int("sweep.failures", len(report.Failures)),
	)
	metrics.TrackSweep(report.Duration, len(report.Failures))

	if len(report.Started)+len(report.Ended)+len(report.Failures) > 0 {
		utils.Info("Auction sweep completed", map[string]any{
			"started":  len(report.Started),
			"ended":    len(report.Ended),
			"failures": len(report.Failures),
			"duration": report.Duration.String(),
		})
	}

	s.statusMu.Lock()
	s.lastReport = &report
	s.statusMu.Unlock()

	return report
}

// TriggerSweep runs a sweep immediately, whether or not the loop is running
func (s *Scheduler) TriggerSweep(ctx context.Context) SweepReport {
	utils.Info("Manual auction sweep triggered", nil)
	return s.Sweep(ctx)
}

func (s *Scheduler) pass(ctx context.Context, t statemachine.Transition, now time.Time, report *SweepReport) {
	due, err := s.repo.ListDueAuctions(ctx, t.From, now)
	if err != nil {
		utils.Error("Failed to list due auctions", map[string]any{"transition": t.String(), "error": err.Error()})
		report.Failures = append(report.Failures, SweepFailure{Transition: t.String(), Error: err.Error()})
		return
	}

	for _, a := range due {
		if !statemachine.IsDue(a, t, now) {
			continue
		}
		claimed, err := s.process(ctx, t, a.ID)
		if err != nil {
			utils.Error("Failed to transition auction", map[string]any{
				"auction_id": a.ID,
				"transition": t.String(),
				"error":      err.Error(),
			})
			report.Failures = append(report.Failures, SweepFailure{AuctionID: a.ID, Transition: t.String(), Error: err.Error()})
			continue
		}
		if !claimed {
			continue
		}
		switch t {
		case statemachine.Start:
			report.Started = append(report.Started, a.ID)
		case statemachine.End:
			report.Ended = append(report.Ended, a.ID)
		}
	}
}

// process claims one transition and applies its side effects. A panic is
// turned into an error so one bad auction cannot take the loop down.
func (s *Scheduler) process(ctx context.Context, t statemachine.Transition, auctionID string) (claimed bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			claimed = false
			err = fmt.Errorf("scheduler: panic while processing auction %s: %v", auctionID, p)
		}
	}()

	var (
		auction models.Auction
		payload models.AuctionEndedPayload
	)
	err = s.repo.WithAuctionLock(ctx, auctionID, func(tx repository.Tx) error {
		claimed = false
		ok, err := tx.ClaimStatus(auctionID, t.From, t.To)
		if err != nil || !ok {
			return err
		}
		claimed = true

		auction, err = tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if t == statemachine.End {
			payload, err = s.settler.Settle(tx, auction)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("scheduler: %s auction %s: %w", t, auctionID, err)
	}
	if !claimed {
		return false, nil
	}

	metrics.TrackTransition(string(t.From), string(t.To))
	at := s.now()
	switch t {
	case statemachine.Start:
		utils.Info("Auction started", map[string]any{"auction_id": auctionID})
		s.publish(models.NewEvent(models.TopicAuctionStarted, auctionID, "", auction, at))
	case statemachine.End:
		fields := map[string]any{"auction_id": auctionID, "final_bid": payload.FinalBid, "refunded": len(payload.RefundedUsers)}
		if payload.WinnerID != nil {
			fields["winner_id"] = *payload.WinnerID
		}
		utils.Info("Auction ended", fields)
		s.publish(models.NewEvent(models.TopicAuctionEnded, auctionID, "", payload, at))
	}
	return true, nil
}

func (s *Scheduler) publish(e models.Event) {
	if s.events != nil {
		s.events.Publish(e)
	}
}
