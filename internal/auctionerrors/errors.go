package auctionerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrAuctionNotFound        = errors.New("auction not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrStakeNotFound          = errors.New("stake not found")
	ErrUserExists             = errors.New("user already exists")
	ErrConcurrencyConflict    = errors.New("concurrent update conflict")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// business logic errors
var (
	ErrAuctionNotLive    = errors.New("auction is not live")
	ErrAuctionEnded      = errors.New("auction has ended")
	ErrAlreadyJoined     = errors.New("already joined auction")
	ErrNotJoined         = errors.New("must join auction before bidding")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrInvalidTimeWindow = errors.New("invalid auction time window")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid auction state transition")
)

// BidTooLowError carries the highest stake a new bid has to beat.
type BidTooLowError struct {
	CurrentHighest int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: current highest bid is %d", ErrBidTooLow, e.CurrentHighest)
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

// IsTransient reports whether a retry of the same operation may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrPersistenceUnavailable)
}
