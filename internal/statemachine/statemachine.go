// Package statemachine defines auction states, the legal transitions between
// them and the time guards that make a transition due. It performs no I/O;
// applying a transition is the repository's conditional claim.
package statemachine

import (
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
)

// Transition is a directed edge between two auction states
type Transition struct {
	From models.AuctionStatus
	To   models.AuctionStatus
}

func (t Transition) String() string {
	return fmt.Sprintf("%s->%s", t.From, t.To)
}

var (
	// Start is driven by the scheduler once start_time has passed
	Start = Transition{From: models.StatusUpcoming, To: models.StatusLive}
	// End is driven by the scheduler once end_time has passed and triggers settlement
	End = Transition{From: models.StatusLive, To: models.StatusEnded}
	// Cancel is a manual transition, only before the auction goes live
	Cancel = Transition{From: models.StatusUpcoming, To: models.StatusCancelled}
)

var transitions = []Transition{Start, End, Cancel}

// Allowed reports whether from->to is a legal edge
func Allowed(from, to models.AuctionStatus) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Validate returns ErrInvalidTransition when from->to is not a legal edge
func Validate(from, to models.AuctionStatus) error {
	if !Allowed(from, to) {
		return fmt.Errorf("%w: %s->%s", auctionerrors.ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminal reports whether no transition leaves the status
func IsTerminal(s models.AuctionStatus) bool {
	return s == models.StatusEnded || s == models.StatusCancelled
}

// IsDue reports whether the transition's guard holds for the auction at now.
// Manual transitions are never due on their own.
func IsDue(a models.Auction, t Transition, now time.Time) bool {
	if a.Status != t.From {
		return false
	}
	switch t {
	case Start:
		return !now.Before(a.StartTime)
	case End:
		return !now.Before(a.EndTime)
	default:
		return false
	}
}

// CheckJoinable validates that users may join the auction at now
func CheckJoinable(a models.Auction, now time.Time) error {
	return checkOpen(a, now)
}

// CheckBiddable validates that bids are accepted at now. The end_time cutoff
// applies even while the auction is still marked live.
func CheckBiddable(a models.Auction, now time.Time) error {
	return checkOpen(a, now)
}

func checkOpen(a models.Auction, now time.Time) error {
	switch a.Status {
	case models.StatusLive:
	case models.StatusEnded:
		return auctionerrors.ErrAuctionEnded
	default:
		return fmt.Errorf("%w: status is %s", auctionerrors.ErrAuctionNotLive, a.Status)
	}
	if !now.Before(a.EndTime) {
		return auctionerrors.ErrAuctionEnded
	}
	return nil
}

// ValidateWindow checks an auction's time window at creation or update
func ValidateWindow(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end time are required", auctionerrors.ErrInvalidTimeWindow)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end time must be after start time", auctionerrors.ErrInvalidTimeWindow)
	}
	if !end.After(now) {
		return fmt.Errorf("%w: end time must be in the future", auctionerrors.ErrInvalidTimeWindow)
	}
	return nil
}

// ParseStatus converts a status name into an AuctionStatus. The empty string
// is accepted and means "any status".
func ParseStatus(s string) (models.AuctionStatus, error) {
	switch st := models.AuctionStatus(s); st {
	case "", models.StatusUpcoming, models.StatusLive, models.StatusEnded, models.StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown auction status %q", auctionerrors.ErrInvalidInput, s)
	}
}
