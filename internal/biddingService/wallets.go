package bidding

import (
	"context"
	"fmt"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// CreateUser opens a wallet; the opening balance is recorded as a purchase.
// An empty id is replaced by a generated one.
func (s *BiddingService) CreateUser(ctx context.Context, userID string, balance int64) (models.User, error) {
	if userID == "" {
		userID = utils.GenerateID()
	}

	var user models.User
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		user, err = s.ledger.OpenWallet(tx, userID, balance)
		return err
	})
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to create user %s: %w", userID, err)
	}

	utils.Info("Wallet opened", map[string]any{"user_id": userID, "balance": balance})
	return user, nil
}

// Deposit tops up a wallet
func (s *BiddingService) Deposit(ctx context.Context, userID string, amount int64) (models.User, error) {
	if userID == "" {
		return models.User{}, fmt.Errorf("service: %w - empty user ID", auctionerrors.ErrInvalidInput)
	}
	if amount <= 0 {
		return models.User{}, fmt.Errorf("service: %w - non-positive deposit", auctionerrors.ErrInvalidAmount)
	}

	var user models.User
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := s.ledger.Credit(tx, userID, amount, models.KindPurchase, ""); err != nil {
			return err
		}
		var err error
		user, err = tx.GetUser(userID)
		return err
	})
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to deposit for user %s: %w", userID, err)
	}

	utils.Info("Deposit credited", map[string]any{"user_id": userID, "amount": amount, "balance": user.Balance})
	return user, nil
}

// GetUser returns a wallet
func (s *BiddingService) GetUser(ctx context.Context, userID string) (models.User, error) {
	if userID == "" {
		return models.User{}, fmt.Errorf("service: %w - empty user ID", auctionerrors.ErrInvalidInput)
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to get user %s: %w", userID, err)
	}
	return user, nil
}

// ListLedger returns a user's ledger entries oldest first
func (s *BiddingService) ListLedger(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", auctionerrors.ErrInvalidInput)
	}
	entries, err := s.repo.ListLedger(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get ledger for user %s: %w", userID, err)
	}
	return entries, nil
}
