package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/statemachine"
	"auction-engine/utils"

	"go.opentelemetry.io/otel/attribute"
)

// JoinAuction charges the entry fee and opens a zero-amount stake for the user
func (s *BiddingService) JoinAuction(ctx context.Context, auctionID, userID string) (stake models.Stake, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "JoinAuction",
		attribute.String("auction.id", auctionID),
		attribute.String("user.id", userID),
	)
	defer func() { finish(span, "join", started, err) }()

	if err := validateIDs(auctionID, userID); err != nil {
		return models.Stake{}, err
	}

	var auction models.Auction
	err = s.withRetry(ctx, "join", func() error {
		return s.repo.WithAuctionLock(ctx, auctionID, func(tx repository.Tx) error {
			var err error
			auction, stake, err = s.join(tx, auctionID, userID)
			return err
		})
	})
	if err != nil {
		return models.Stake{}, fmt.Errorf("service: join auction %s by user %s: %w", auctionID, userID, err)
	}

	utils.Info("User joined auction", map[string]any{
		"auction_id":   auctionID,
		"user_id":      userID,
		"entry_fee":    auction.EntryFee,
		"participants": auction.TotalParticipants,
	})
	s.emit(models.NewEvent(models.TopicAuctionUpdated, auctionID, "", auction, stake.CreatedAt))
	return stake, nil
}

func (s *BiddingService) join(tx repository.Tx, auctionID, userID string) (models.Auction, models.Stake, error) {
	now := s.now()

	a, err := tx.GetAuction(auctionID)
	if err != nil {
		return models.Auction{}, models.Stake{}, err
	}
	if err := statemachine.CheckJoinable(a, now); err != nil {
		return models.Auction{}, models.Stake{}, err
	}

	if _, err := tx.GetStake(auctionID, userID); err == nil {
		return models.Auction{}, models.Stake{}, auctionerrors.ErrAlreadyJoined
	} else if !errors.Is(err, auctionerrors.ErrStakeNotFound) {
		return models.Auction{}, models.Stake{}, err
	}

	user, err := tx.GetUser(userID)
	if err != nil {
		return models.Auction{}, models.Stake{}, err
	}
	if user.Balance < a.EntryFee || user.Balance < a.MinWallet {
		return models.Auction{}, models.Stake{}, fmt.Errorf("%w - balance %d, entry fee %d, minimum wallet %d",
			auctionerrors.ErrInsufficientFunds, user.Balance, a.EntryFee, a.MinWallet)
	}

	if _, err := s.ledger.Debit(tx, userID, a.EntryFee, models.KindEntryFee, auctionID); err != nil {
		return models.Auction{}, models.Stake{}, err
	}

	stake := models.Stake{AuctionID: auctionID, UserID: userID, CreatedAt: now}
	if err := tx.InsertStake(stake); err != nil {
		return models.Auction{}, models.Stake{}, err
	}
	if err := tx.IncrementCounters(auctionID, 1, 0); err != nil {
		return models.Auction{}, models.Stake{}, err
	}
	a.TotalParticipants++
	a.UpdatedAt = now
	return a, stake, nil
}

// PlaceBid replaces the user's stake with a strictly higher amount. The
// previous stake is refunded before the new amount is debited, the bidder
// becomes the only winning stake and displaced winners are notified.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID string, amount int64) (result models.BidResult, err error) {
	started := time.Now()
	ctx, span := s.startSpan(ctx, "PlaceBid",
		attribute.String("auction.id", auctionID),
		attribute.String("user.id", userID),
		attribute.Int64("bid.amount", amount),
	)
	defer func() { finish(span, "bid", started, err) }()

	if err := validateIDs(auctionID, userID); err != nil {
		return models.BidResult{}, err
	}
	if amount <= 0 {
		return models.BidResult{}, fmt.Errorf("service: %w - non-positive bid amount", auctionerrors.ErrInvalidAmount)
	}

	var out bidOutcome
	err = s.withRetry(ctx, "bid", func() error {
		return s.repo.WithAuctionLock(ctx, auctionID, func(tx repository.Tx) error {
			var err error
			out, err = s.bid(tx, auctionID, userID, amount)
			return err
		})
	})
	if err != nil {
		return models.BidResult{}, fmt.Errorf("service: bid %d on auction %s by user %s: %w", amount, auctionID, userID, err)
	}

	utils.Info("Bid accepted", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
		"amount":     amount,
		"total_bids": out.totalBids,
		"outbid":     len(out.displaced),
	})

	at := *out.stake.BidTime
	events := []models.Event{models.NewEvent(models.TopicNewBid, auctionID, "", models.NewBidPayload{
		AuctionID:      auctionID,
		UserID:         userID,
		Amount:         amount,
		CurrentHighest: amount,
		TotalBids:      out.totalBids,
	}, at)}
	for _, d := range out.displaced {
		events = append(events, models.NewEvent(models.TopicUserOutbid, auctionID, d.UserID, models.OutbidPayload{
			AuctionID:      auctionID,
			UserID:         d.UserID,
			NewBidAmount:   amount,
			PreviousAmount: d.Amount,
		}, at))
	}
	s.emit(events...)

	return models.BidResult{Stake: out.stake, CurrentHighest: amount}, nil
}

type bidOutcome struct {
	stake     models.Stake
	displaced []models.Stake
	totalBids int64
}

func (s *BiddingService) bid(tx repository.Tx, auctionID, userID string, amount int64) (bidOutcome, error) {
	now := s.now()

	a, err := tx.GetAuction(auctionID)
	if err != nil {
		return bidOutcome{}, err
	}
	// the cutoff is checked here, at call time, not by the sweep
	if err := statemachine.CheckBiddable(a, now); err != nil {
		return bidOutcome{}, err
	}

	stake, err := tx.GetStake(auctionID, userID)
	if errors.Is(err, auctionerrors.ErrStakeNotFound) {
		return bidOutcome{}, auctionerrors.ErrNotJoined
	}
	if err != nil {
		return bidOutcome{}, err
	}

	stakes, err := tx.ListStakes(auctionID)
	if err != nil {
		return bidOutcome{}, err
	}
	if highest := currentHighest(a, stakes); amount <= highest {
		return bidOutcome{}, &auctionerrors.BidTooLowError{CurrentHighest: highest}
	}

	user, err := tx.GetUser(userID)
	if err != nil {
		return bidOutcome{}, err
	}
	if user.Balance < amount {
		return bidOutcome{}, fmt.Errorf("%w - balance %d, bid %d", auctionerrors.ErrInsufficientFunds, user.Balance, amount)
	}

	if stake.Amount > 0 {
		if _, err := s.ledger.Credit(tx, userID, stake.Amount, models.KindRefund, auctionID); err != nil {
			return bidOutcome{}, err
		}
	}
	if _, err := s.ledger.Debit(tx, userID, amount, models.KindBid, auctionID); err != nil {
		return bidOutcome{}, err
	}

	var displaced []models.Stake
	for _, other := range stakes {
		if other.UserID == userID || !other.IsWinning {
			continue
		}
		other.IsWinning = false
		if err := tx.UpdateStake(other); err != nil {
			return bidOutcome{}, err
		}
		displaced = append(displaced, other)
	}

	stake.Amount = amount
	stake.IsWinning = true
	stake.BidTime = &now
	if err := tx.UpdateStake(stake); err != nil {
		return bidOutcome{}, err
	}
	if err := tx.IncrementCounters(auctionID, 0, 1); err != nil {
		return bidOutcome{}, err
	}

	return bidOutcome{stake: stake, displaced: displaced, totalBids: a.TotalBids + 1}, nil
}

// Settle determines the winner of an auction this caller has just claimed as
// ended and refunds every losing stake. The winner's stake stays debited.
// It must run inside the transaction that made the claim.
func (s *BiddingService) Settle(tx repository.Tx, a models.Auction) (models.AuctionEndedPayload, error) {
	if a.Status != models.StatusEnded {
		return models.AuctionEndedPayload{}, fmt.Errorf("service: settle auction %s: %w - status is %s",
			a.ID, auctionerrors.ErrInvalidTransition, a.Status)
	}

	stakes, err := tx.ListStakes(a.ID)
	if err != nil {
		return models.AuctionEndedPayload{}, fmt.Errorf("service: settle auction %s: %w", a.ID, err)
	}

	payload := models.AuctionEndedPayload{AuctionID: a.ID, RefundedUsers: []string{}}

	var winner *models.Stake
	for i := range stakes {
		if stakes[i].IsWinning {
			winner = &stakes[i]
			break
		}
	}

	finalBid := a.StartingBid
	if winner != nil {
		winnerID := winner.UserID
		finalBid = winner.Amount
		a.WinnerID = &winnerID
		payload.WinnerID = &winnerID
		// zero-amount entry; the stake was debited when the bid was placed
		if _, err := s.ledger.Credit(tx, winnerID, 0, models.KindWin, a.ID); err != nil {
			return models.AuctionEndedPayload{}, fmt.Errorf("service: settle auction %s: %w", a.ID, err)
		}
	}
	a.FinalBid = &finalBid
	payload.FinalBid = finalBid

	for _, st := range stakes {
		if winner != nil && st.UserID == winner.UserID {
			continue
		}
		if st.Amount <= 0 {
			continue
		}
		if _, err := s.ledger.Credit(tx, st.UserID, st.Amount, models.KindRefund, a.ID); err != nil {
			return models.AuctionEndedPayload{}, fmt.Errorf("service: refund user %s in auction %s: %w", st.UserID, a.ID, err)
		}
		st.Amount = 0
		st.IsWinning = false
		if err := tx.UpdateStake(st); err != nil {
			return models.AuctionEndedPayload{}, fmt.Errorf("service: settle auction %s: %w", a.ID, err)
		}
		payload.RefundedUsers = append(payload.RefundedUsers, st.UserID)
	}

	a.UpdatedAt = s.now()
	if err := tx.UpdateAuction(a); err != nil {
		return models.AuctionEndedPayload{}, fmt.Errorf("service: settle auction %s: %w", a.ID, err)
	}
	return payload, nil
}
