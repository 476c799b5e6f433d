package auctionerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBidTooLowError(t *testing.T) {
	err := fmt.Errorf("service: %w", &BidTooLowError{CurrentHighest: 80})

	require.True(t, errors.Is(err, ErrBidTooLow))
	require.False(t, errors.Is(err, ErrInsufficientFunds))

	var tooLow *BidTooLowError
	require.True(t, errors.As(err, &tooLow))
	require.Equal(t, int64(80), tooLow.CurrentHighest)
	require.Contains(t, err.Error(), "current highest bid is 80")
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "conflict", err: fmt.Errorf("repo: %w", ErrConcurrencyConflict), want: true},
		{name: "unavailable", err: ErrPersistenceUnavailable, want: true},
		{name: "domain_error", err: ErrNotJoined, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
