package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"
)

// Tx is a unit of work. Every mutation made through a Tx commits or rolls back
// together with the others; nothing is visible to other callers before commit.
type Tx interface {
	GetAuction(id string) (model.Auction, error)
	InsertAuction(a model.Auction) error
	UpdateAuction(a model.Auction) error
	DeleteAuction(id string) error
	// ClaimStatus moves the auction from one status to another only if it is
	// still in the expected source status. It reports whether this call won.
	ClaimStatus(id string, from, to model.AuctionStatus) (bool, error)
	IncrementCounters(id string, participants, bids int64) error

	GetStake(auctionID, userID string) (model.Stake, error)
	ListStakes(auctionID string) ([]model.Stake, error)
	InsertStake(s model.Stake) error
	UpdateStake(s model.Stake) error

	GetUser(id string) (model.User, error)
	InsertUser(u model.User) error
	// AdjustBalance adds delta to the user's balance and returns the new value.
	// It fails with ErrInsufficientFunds instead of going below zero.
	AdjustBalance(userID string, delta int64) (int64, error)
	AppendLedger(e model.LedgerEntry) error
}

//go:generate mockgen -destination=mock_repository.go -package=repository . AuctionDB,Tx

// AuctionDB defines the storage interface for the auction engine
type AuctionDB interface {
	// WithAuctionLock runs fn in a transaction that holds the auction's write
	// lock, serializing it against every other writer of the same auction.
	WithAuctionLock(ctx context.Context, auctionID string, fn func(tx Tx) error) error
	// WithTx runs fn in a transaction without taking an auction lock.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetAuction(ctx context.Context, id string) (model.Auction, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	// ListDueAuctions returns upcoming auctions whose start_time has passed, or
	// live auctions whose end_time has passed, depending on status.
	ListDueAuctions(ctx context.Context, status model.AuctionStatus, now time.Time) ([]model.Auction, error)
	ListStakes(ctx context.Context, auctionID string) ([]model.Stake, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	ListLedger(ctx context.Context, userID string) ([]model.LedgerEntry, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// Transactions are fully serialized and rolled back through an undo log.
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]model.Auction
	stakes   map[string]map[string]model.Stake // key: auctionID -> userID -> stake
	users    map[string]model.User
	ledger   map[string][]model.LedgerEntry // key: userID -> entries in commit order
	seq      int64                          // last ledger sequence handed out
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]model.Auction),
		stakes:   make(map[string]map[string]model.Stake),
		users:    make(map[string]model.User),
		ledger:   make(map[string][]model.LedgerEntry),
	}
}

// WithAuctionLock runs fn as a serialized transaction
func (r *MemoryRepo) WithAuctionLock(ctx context.Context, auctionID string, fn func(tx Tx) error) error {
	return r.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.GetAuction(auctionID); err != nil {
			return err
		}
		return fn(tx)
	})
}

// WithTx runs fn as a serialized transaction, undoing every change if fn fails or panics
func (r *MemoryRepo) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory tx: %w: %v", auctionerrors.ErrPersistenceUnavailable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{repo: r}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(tx)
}

// GetAuction returns an auction by id
func (r *MemoryRepo) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[id]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListAuctions returns auctions newest first, optionally filtered by status
func (r *MemoryRepo) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListDueAuctions returns auctions whose next scheduled transition is due at now
func (r *MemoryRepo) ListDueAuctions(ctx context.Context, status model.AuctionStatus, now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Auction
	for _, a := range r.auctions {
		if a.Status != status {
			continue
		}
		switch status {
		case model.StatusUpcoming:
			if !a.StartTime.After(now) {
				out = append(out, a)
			}
		case model.StatusLive:
			if !a.EndTime.After(now) {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListStakes returns the stakes of an auction, highest amount first
func (r *MemoryRepo) ListStakes(ctx context.Context, auctionID string) ([]model.Stake, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("list stakes for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return sortedStakes(r.stakes[auctionID]), nil
}

// GetUser returns a user's wallet
func (r *MemoryRepo) GetUser(ctx context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", id, auctionerrors.ErrUserNotFound)
	}
	return u, nil
}

// ListLedger returns a user's ledger entries in commit order
func (r *MemoryRepo) ListLedger(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.users[userID]; !ok {
		return nil, fmt.Errorf("list ledger for user %s: %w", userID, auctionerrors.ErrUserNotFound)
	}
	return append([]model.LedgerEntry(nil), r.ledger[userID]...), nil
}

// AddAuction stores an auction as-is. This method is intended for tests only.
func (r *MemoryRepo) AddAuction(a model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[a.ID] = a
}

func sortedStakes(m map[string]model.Stake) []model.Stake {
	out := make([]model.Stake, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount == out[j].Amount {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Amount > out[j].Amount
	})
	return out
}

// memTx mutates the repo maps directly; the caller holds repo.mu for its whole life
type memTx struct {
	repo *MemoryRepo
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetAuction(id string) (model.Auction, error) {
	a, ok := t.repo.auctions[id]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	return a, nil
}

func (t *memTx) InsertAuction(a model.Auction) error {
	if _, ok := t.repo.auctions[a.ID]; ok {
		return fmt.Errorf("insert auction %s: duplicate id", a.ID)
	}
	t.repo.auctions[a.ID] = a
	t.undo = append(t.undo, func() { delete(t.repo.auctions, a.ID) })
	return nil
}

func (t *memTx) UpdateAuction(a model.Auction) error {
	prev, ok := t.repo.auctions[a.ID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", a.ID, auctionerrors.ErrAuctionNotFound)
	}
	t.repo.auctions[a.ID] = a
	t.undo = append(t.undo, func() { t.repo.auctions[a.ID] = prev })
	return nil
}

func (t *memTx) DeleteAuction(id string) error {
	prev, ok := t.repo.auctions[id]
	if !ok {
		return fmt.Errorf("delete auction %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	prevStakes, hadStakes := t.repo.stakes[id]
	delete(t.repo.auctions, id)
	delete(t.repo.stakes, id)
	t.undo = append(t.undo, func() {
		t.repo.auctions[id] = prev
		if hadStakes {
			t.repo.stakes[id] = prevStakes
		}
	})
	return nil
}

func (t *memTx) ClaimStatus(id string, from, to model.AuctionStatus) (bool, error) {
	a, ok := t.repo.auctions[id]
	if !ok {
		return false, fmt.Errorf("claim auction %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	if a.Status != from {
		return false, nil
	}
	claimed := a
	claimed.Status = to
	claimed.UpdatedAt = time.Now().UTC()
	t.repo.auctions[id] = claimed
	t.undo = append(t.undo, func() { t.repo.auctions[id] = a })
	return true, nil
}

func (t *memTx) IncrementCounters(id string, participants, bids int64) error {
	a, ok := t.repo.auctions[id]
	if !ok {
		return fmt.Errorf("increment counters for auction %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	updated := a
	updated.TotalParticipants += participants
	updated.TotalBids += bids
	t.repo.auctions[id] = updated
	t.undo = append(t.undo, func() { t.repo.auctions[id] = a })
	return nil
}

func (t *memTx) GetStake(auctionID, userID string) (model.Stake, error) {
	s, ok := t.repo.stakes[auctionID][userID]
	if !ok {
		return model.Stake{}, fmt.Errorf("get stake %s/%s: %w", auctionID, userID, auctionerrors.ErrStakeNotFound)
	}
	return s, nil
}

func (t *memTx) ListStakes(auctionID string) ([]model.Stake, error) {
	return sortedStakes(t.repo.stakes[auctionID]), nil
}

func (t *memTx) InsertStake(s model.Stake) error {
	byUser, ok := t.repo.stakes[s.AuctionID]
	if !ok {
		byUser = make(map[string]model.Stake)
		t.repo.stakes[s.AuctionID] = byUser
	}
	if _, exists := byUser[s.UserID]; exists {
		return fmt.Errorf("insert stake %s/%s: %w", s.AuctionID, s.UserID, auctionerrors.ErrAlreadyJoined)
	}
	byUser[s.UserID] = s
	t.undo = append(t.undo, func() { delete(t.repo.stakes[s.AuctionID], s.UserID) })
	return nil
}

func (t *memTx) UpdateStake(s model.Stake) error {
	prev, ok := t.repo.stakes[s.AuctionID][s.UserID]
	if !ok {
		return fmt.Errorf("update stake %s/%s: %w", s.AuctionID, s.UserID, auctionerrors.ErrStakeNotFound)
	}
	t.repo.stakes[s.AuctionID][s.UserID] = s
	t.undo = append(t.undo, func() { t.repo.stakes[s.AuctionID][s.UserID] = prev })
	return nil
}

func (t *memTx) GetUser(id string) (model.User, error) {
	u, ok := t.repo.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", id, auctionerrors.ErrUserNotFound)
	}
	return u, nil
}

func (t *memTx) InsertUser(u model.User) error {
	if _, ok := t.repo.users[u.ID]; ok {
		return fmt.Errorf("insert user %s: %w", u.ID, auctionerrors.ErrUserExists)
	}
	t.repo.users[u.ID] = u
	t.undo = append(t.undo, func() { delete(t.repo.users, u.ID) })
	return nil
}

func (t *memTx) AdjustBalance(userID string, delta int64) (int64, error) {
	u, ok := t.repo.users[userID]
	if !ok {
		return 0, fmt.Errorf("adjust balance for user %s: %w", userID, auctionerrors.ErrUserNotFound)
	}
	if u.Balance+delta < 0 {
		return u.Balance, fmt.Errorf("adjust balance for user %s: %w", userID, auctionerrors.ErrInsufficientFunds)
	}
	updated := u
	updated.Balance += delta
	updated.UpdatedAt = time.Now().UTC()
	t.repo.users[userID] = updated
	t.undo = append(t.undo, func() { t.repo.users[userID] = u })
	return updated.Balance, nil
}

func (t *memTx) AppendLedger(e model.LedgerEntry) error {
	// like a database sequence, a rolled back entry leaves a gap
	t.repo.seq++
	e.Seq = t.repo.seq
	n := len(t.repo.ledger[e.UserID])
	t.repo.ledger[e.UserID] = append(t.repo.ledger[e.UserID], e)
	t.undo = append(t.undo, func() { t.repo.ledger[e.UserID] = t.repo.ledger[e.UserID][:n] })
	return nil
}
