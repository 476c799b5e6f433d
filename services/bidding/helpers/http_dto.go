package helpers

import (
	"time"

	"auction-engine/internal/models"
)

// Request/Response DTOs
type CreateAuctionRequest struct {
	ProductID   string    `json:"product_id"`
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	EntryFee    int64     `json:"entry_fee" binding:"gte=0"`
	MinWallet   int64     `json:"min_wallet" binding:"gte=0"`
	StartingBid int64     `json:"starting_bid" binding:"gte=0"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
}

// ToSpec converts the request into the engine's auction description
func (r CreateAuctionRequest) ToSpec() models.AuctionSpec {
	return models.AuctionSpec{
		ProductID:   r.ProductID,
		Title:       r.Title,
		Description: r.Description,
		EntryFee:    r.EntryFee,
		MinWallet:   r.MinWallet,
		StartingBid: r.StartingBid,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
	}
}

type UpdateAuctionRequest = models.AuctionPatch

type JoinAuctionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type PlaceBidRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

type BidResponse struct {
	AuctionID      string `json:"auction_id"`
	UserID         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	IsWinning      bool   `json:"is_winning"`
	BidTime        string `json:"bid_time"`
	CurrentHighest int64  `json:"current_highest"`
}

// NewBidResponse flattens a bid result for the API
func NewBidResponse(r models.BidResult) BidResponse {
	resp := BidResponse{
		AuctionID:      r.Stake.AuctionID,
		UserID:         r.Stake.UserID,
		Amount:         r.Stake.Amount,
		IsWinning:      r.Stake.IsWinning,
		CurrentHighest: r.CurrentHighest,
	}
	if r.Stake.BidTime != nil {
		resp.BidTime = r.Stake.BidTime.UTC().Format(time.RFC3339)
	}
	return resp
}

type CreateUserRequest struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance" binding:"gte=0"`
}

type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}
