package bidding

import (
	"context"
	"fmt"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/statemachine"
	"auction-engine/utils"
)

// CreateAuction stores a new upcoming auction. A start time in the past is
// accepted; the next sweep makes the auction live.
func (s *BiddingService) CreateAuction(ctx context.Context, spec models.AuctionSpec) (models.Auction, error) {
	now := s.now()
	if err := validateMoney(spec.EntryFee, spec.MinWallet, spec.StartingBid); err != nil {
		return models.Auction{}, err
	}
	if err := statemachine.ValidateWindow(spec.StartTime, spec.EndTime, now); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", err)
	}

	a := models.Auction{
		ID:          utils.GenerateID(),
		ProductID:   spec.ProductID,
		Title:       spec.Title,
		Description: spec.Description,
		EntryFee:    spec.EntryFee,
		MinWallet:   spec.MinWallet,
		StartingBid: spec.StartingBid,
		StartTime:   spec.StartTime.UTC(),
		EndTime:     spec.EndTime.UTC(),
		Status:      models.StatusUpcoming,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		return tx.InsertAuction(a)
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to create auction: %w", err)
	}

	utils.Info("Auction created", map[string]any{"auction_id": a.ID, "start_time": a.StartTime, "end_time": a.EndTime})
	s.emit(models.NewEvent(models.TopicAuctionCreated, a.ID, "", a, now))
	return a, nil
}

// UpdateAuction applies a patch to an auction that has not gone live yet
func (s *BiddingService) UpdateAuction(ctx context.Context, auctionID string, patch models.AuctionPatch) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidInput)
	}

	var updated models.Auction
	err := s.repo.WithAuctionLock(ctx, auctionID, func(tx repository.Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.StatusUpcoming {
			return fmt.Errorf("%w: auction is %s, only upcoming auctions can be edited",
				auctionerrors.ErrInvalidTransition, a.Status)
		}

		applyPatch(&a, patch)
		if err := validateMoney(a.EntryFee, a.MinWallet, a.StartingBid); err != nil {
			return err
		}
		now := s.now()
		if err := statemachine.ValidateWindow(a.StartTime, a.EndTime, now); err != nil {
			return err
		}
		a.UpdatedAt = now
		updated = a
		return tx.UpdateAuction(a)
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to update auction %s: %w", auctionID, err)
	}

	s.emit(models.NewEvent(models.TopicAuctionUpdated, auctionID, "", updated, updated.UpdatedAt))
	return updated, nil
}

// DeleteAuction removes an auction that is upcoming or cancelled
func (s *BiddingService) DeleteAuction(ctx context.Context, auctionID string) error {
	if auctionID == "" {
		return fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidInput)
	}

	err := s.repo.WithAuctionLock(ctx, auctionID, func(tx repository.Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.StatusUpcoming && a.Status != models.StatusCancelled {
			return fmt.Errorf("%w: auction is %s, only upcoming or cancelled auctions can be deleted",
				auctionerrors.ErrInvalidTransition, a.Status)
		}
		return tx.DeleteAuction(auctionID)
	})
	if err != nil {
		return fmt.Errorf("service: failed to delete auction %s: %w", auctionID, err)
	}

	utils.Info("Auction deleted", map[string]any{"auction_id": auctionID})
	s.emit(models.NewEvent(models.TopicAuctionDeleted, auctionID, "", map[string]string{"auction_id": auctionID}, s.now()))
	return nil
}

// CancelAuction claims Upcoming->Cancelled and refunds any entry fees already paid
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidInput)
	}

	var cancelled models.Auction
	err := s.repo.WithAuctionLock(ctx, auctionID, func(tx repository.Tx) error {
		a, err := tx.GetAuction(auctionID)
		if err != nil {
			return err
		}
		if err := statemachine.Validate(a.Status, statemachine.Cancel.To); err != nil {
			return err
		}
		claimed, err := tx.ClaimStatus(auctionID, statemachine.Cancel.From, statemachine.Cancel.To)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("%w: auction %s changed state concurrently", auctionerrors.ErrInvalidTransition, auctionID)
		}

		stakes, err := tx.ListStakes(auctionID)
		if err != nil {
			return err
		}
		for _, st := range stakes {
			refund := a.EntryFee + st.Amount
			if refund > 0 {
				if _, err := s.ledger.Credit(tx, st.UserID, refund, models.KindRefund, auctionID); err != nil {
					return err
				}
			}
		}

		cancelled, err = tx.GetAuction(auctionID)
		return err
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
	}

	metrics.TrackTransition(string(statemachine.Cancel.From), string(statemachine.Cancel.To))
	utils.Info("Auction cancelled", map[string]any{"auction_id": auctionID})
	s.emit(models.NewEvent(models.TopicAuctionUpdated, auctionID, "", cancelled, s.now()))
	return cancelled, nil
}

// GetAuction returns an auction together with the amount a new bid must beat
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.AuctionView, error) {
	if auctionID == "" {
		return models.AuctionView{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidInput)
	}

	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.AuctionView{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	stakes, err := s.repo.ListStakes(ctx, auctionID)
	if err != nil {
		return models.AuctionView{}, fmt.Errorf("service: failed to get stakes for auction %s: %w", auctionID, err)
	}
	return models.AuctionView{Auction: a, CurrentHighest: currentHighest(a, stakes)}, nil
}

// ListAuctions returns auctions newest first; an empty status lists all of them
func (s *BiddingService) ListAuctions(ctx context.Context, status string) ([]models.Auction, error) {
	st, err := statemachine.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	auctions, err := s.repo.ListAuctions(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// ListStakes returns every stake of an auction, highest first
func (s *BiddingService) ListStakes(ctx context.Context, auctionID string) ([]models.Stake, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidInput)
	}
	stakes, err := s.repo.ListStakes(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get stakes for auction %s: %w", auctionID, err)
	}
	return stakes, nil
}

func applyPatch(a *models.Auction, p models.AuctionPatch) {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.EntryFee != nil {
		a.EntryFee = *p.EntryFee
	}
	if p.MinWallet != nil {
		a.MinWallet = *p.MinWallet
	}
	if p.StartingBid != nil {
		a.StartingBid = *p.StartingBid
	}
	if p.StartTime != nil {
		a.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		a.EndTime = p.EndTime.UTC()
	}
}

func validateMoney(values ...int64) error {
	for _, v := range values {
		if v < 0 {
			return fmt.Errorf("service: %w - money fields must not be negative", auctionerrors.ErrInvalidAmount)
		}
	}
	return nil
}
