// Package ledger is the only writer of wallet balances. Every balance change
// is paired with an append-only ledger entry inside the caller's transaction,
// so for every user balance always equals the sum of their entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// ErrLedgerMismatch is returned by Reconcile when a wallet disagrees with its entries
var ErrLedgerMismatch = errors.New("wallet balance does not match ledger")

// Ledger debits and credits wallets through a repository transaction
type Ledger struct {
	now   func() time.Time
	newID func() string
}

// Option customizes a Ledger
type Option func(*Ledger)

// WithClock overrides the timestamp source for entries
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides the entry id source
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// New creates a Ledger
func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:   func() time.Time { return time.Now().UTC() },
		newID: utils.GenerateID,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Debit removes amount from the user's wallet and records a negative entry.
// It fails with ErrInsufficientFunds when the balance is below amount.
func (l *Ledger) Debit(tx repository.Tx, userID string, amount int64, kind models.LedgerKind, auctionID string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("ledger: %w - negative debit %d", auctionerrors.ErrInvalidAmount, amount)
	}
	balance, err := tx.AdjustBalance(userID, -amount)
	if err != nil {
		return balance, fmt.Errorf("ledger: debit %d (%s) from user %s: %w", amount, kind, userID, err)
	}
	if err := l.append(tx, userID, -amount, kind, auctionID); err != nil {
		return 0, err
	}
	return balance, nil
}

// Credit adds amount to the user's wallet and records a positive entry.
// A zero amount still records an entry, which is how a win is noted.
func (l *Ledger) Credit(tx repository.Tx, userID string, amount int64, kind models.LedgerKind, auctionID string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("ledger: %w - negative credit %d", auctionerrors.ErrInvalidAmount, amount)
	}
	balance, err := tx.AdjustBalance(userID, amount)
	if err != nil {
		return 0, fmt.Errorf("ledger: credit %d (%s) to user %s: %w", amount, kind, userID, err)
	}
	if err := l.append(tx, userID, amount, kind, auctionID); err != nil {
		return 0, err
	}
	return balance, nil
}

// OpenWallet creates a user with an initial balance recorded as a purchase
func (l *Ledger) OpenWallet(tx repository.Tx, userID string, initial int64) (models.User, error) {
	if initial < 0 {
		return models.User{}, fmt.Errorf("ledger: %w - negative opening balance %d", auctionerrors.ErrInvalidAmount, initial)
	}
	now := l.now()
	if err := tx.InsertUser(models.User{ID: userID, CreatedAt: now, UpdatedAt: now}); err != nil {
		return models.User{}, fmt.Errorf("ledger: open wallet for user %s: %w", userID, err)
	}
	if initial > 0 {
		if _, err := l.Credit(tx, userID, initial, models.KindPurchase, ""); err != nil {
			return models.User{}, err
		}
	}
	return tx.GetUser(userID)
}

func (l *Ledger) append(tx repository.Tx, userID string, amount int64, kind models.LedgerKind, auctionID string) error {
	entry := models.LedgerEntry{
		ID:        l.newID(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: l.now(),
	}
	if auctionID != "" {
		entry.AuctionID = &auctionID
	}
	if err := tx.AppendLedger(entry); err != nil {
		return fmt.Errorf("ledger: append %s entry for user %s: %w", kind, userID, err)
	}
	return nil
}

// Reader is the read side Reconcile needs
type Reader interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ListLedger(ctx context.Context, userID string) ([]models.LedgerEntry, error)
}

// Sum totals the signed amounts of entries
func Sum(entries []models.LedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total
}

// Reconcile checks that the user's balance equals the sum of their ledger entries
func Reconcile(ctx context.Context, r Reader, userID string) error {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("ledger: reconcile user %s: %w", userID, err)
	}
	entries, err := r.ListLedger(ctx, userID)
	if err != nil {
		return fmt.Errorf("ledger: reconcile user %s: %w", userID, err)
	}
	if total := Sum(entries); total != user.Balance {
		return fmt.Errorf("%w: user %s balance %d, entries sum %d", ErrLedgerMismatch, userID, user.Balance, total)
	}
	return nil
}
