package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestLedger() *Ledger {
	return New(WithClock(func() time.Time { return fixedNow }), WithIDGenerator(func() string { return "entry-1" }))
}

func TestLedger_Debit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		amount      int64
		setupMock   func(tx *repository.MockTx)
		wantBalance int64
		wantErr     error
	}{
		{
			name:   "success",
			amount: 10,
			setupMock: func(tx *repository.MockTx) {
				tx.EXPECT().AdjustBalance("u1", int64(-10)).Return(int64(90), nil)
				auctionID := "a1"
				tx.EXPECT().AppendLedger(models.LedgerEntry{
					ID:   "entry-1", UserID: "u1", AuctionID: &auctionID,
					Kind: models.KindEntryFee, Amount: -10, CreatedAt: fixedNow,
				}).Return(nil)
			},
			wantBalance: 90,
		},
		{
			name:   "insufficient_funds_appends_nothing",
			amount: 200,
			setupMock: func(tx *repository.MockTx) {
				tx.EXPECT().AdjustBalance("u1", int64(-200)).Return(int64(100), auctionerrors.ErrInsufficientFunds)
			},
			wantErr: auctionerrors.ErrInsufficientFunds,
		},
		{
			name:      "negative_amount",
			amount:    -5,
			setupMock: func(tx *repository.MockTx) {},
			wantErr:   auctionerrors.ErrInvalidAmount,
		},
		{
			name:   "ledger_append_failure",
			amount: 10,
			setupMock: func(tx *repository.MockTx) {
				tx.EXPECT().AdjustBalance("u1", int64(-10)).Return(int64(90), nil)
				tx.EXPECT().AppendLedger(gomock.Any()).Return(auctionerrors.ErrPersistenceUnavailable)
			},
			wantErr: auctionerrors.ErrPersistenceUnavailable,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			tx := repository.NewMockTx(ctrl)
			tc.setupMock(tx)

			balance, err := newTestLedger().Debit(tx, "u1", tc.amount, models.KindEntryFee, "a1")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantBalance, balance)
		})
	}
}

func TestLedger_Credit_WithoutAuction(t *testing.T) {
	ctrl := gomock.NewController(t)
	tx := repository.NewMockTx(ctrl)

	tx.EXPECT().AdjustBalance("u1", int64(500)).Return(int64(500), nil)
	tx.EXPECT().AppendLedger(models.LedgerEntry{
		ID: "entry-1", UserID: "u1", Kind: models.KindPurchase, Amount: 500, CreatedAt: fixedNow,
	}).Return(nil)

	balance, err := newTestLedger().Credit(tx, "u1", 500, models.KindPurchase, "")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
}

func TestLedger_Credit_UnknownUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	tx := repository.NewMockTx(ctrl)
	tx.EXPECT().AdjustBalance("ghost", int64(1)).Return(int64(0), auctionerrors.ErrUserNotFound)

	_, err := newTestLedger().Credit(tx, "ghost", 1, models.KindRefund, "a1")
	require.ErrorIs(t, err, auctionerrors.ErrUserNotFound)
}

func TestLedger_BalanceMatchesEntries(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	l := New()
	ctx := context.Background()

	require.NoError(t, repo.WithTx(ctx, func(tx repository.Tx) error {
		_, err := l.OpenWallet(tx, "u1", 100)
		return err
	}))
	require.NoError(t, repo.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := l.Debit(tx, "u1", 10, models.KindEntryFee, "a1"); err != nil {
			return err
		}
		if _, err := l.Debit(tx, "u1", 60, models.KindBid, "a1"); err != nil {
			return err
		}
		_, err := l.Credit(tx, "u1", 60, models.KindRefund, "a1")
		return err
	}))

	// a failed debit leaves neither a balance change nor an entry behind
	err := repo.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := l.Debit(tx, "u1", 50, models.KindBid, "a1"); err != nil {
			return err
		}
		_, err := l.Debit(tx, "u1", 50, models.KindBid, "a1")
		return err
	})
	require.ErrorIs(t, err, auctionerrors.ErrInsufficientFunds)

	user, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(90), user.Balance)

	entries, err := repo.ListLedger(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.NoError(t, Reconcile(ctx, repo, "u1"))
}

type staticReader struct {
	user    models.User
	entries []models.LedgerEntry
}

func (r staticReader) GetUser(ctx context.Context, id string) (models.User, error) {
	if id != r.user.ID {
		return models.User{}, auctionerrors.ErrUserNotFound
	}
	return r.user, nil
}

func (r staticReader) ListLedger(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	return r.entries, nil
}

func TestReconcile_Mismatch(t *testing.T) {
	r := staticReader{
		user:    models.User{ID: "u1", Balance: 50},
		entries: []models.LedgerEntry{{Amount: 100}, {Amount: -10}},
	}
	err := Reconcile(context.Background(), r, "u1")
	require.True(t, errors.Is(err, ErrLedgerMismatch))

	err = Reconcile(context.Background(), r, "u2")
	require.ErrorIs(t, err, auctionerrors.ErrUserNotFound)
}
