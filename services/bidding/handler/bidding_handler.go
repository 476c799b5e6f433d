package handler

import (
	"context"
	"net/http"

	"auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_handler.go -package=handler auction-engine/services/bidding/handler AuctionService,SchedulerController

// AuctionService is everything the HTTP surface needs from the bid processor
type AuctionService interface {
	CreateAuction(ctx context.Context, spec models.AuctionSpec) (models.Auction, error)
	UpdateAuction(ctx context.Context, auctionID string, patch models.AuctionPatch) (models.Auction, error)
	DeleteAuction(ctx context.Context, auctionID string) error
	CancelAuction(ctx context.Context, auctionID string) (models.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (models.AuctionView, error)
	ListAuctions(ctx context.Context, status string) ([]models.Auction, error)
	ListStakes(ctx context.Context, auctionID string) ([]models.Stake, error)

	JoinAuction(ctx context.Context, auctionID, userID string) (models.Stake, error)
	PlaceBid(ctx context.Context, auctionID, userID string, amount int64) (models.BidResult, error)

	CreateUser(ctx context.Context, userID string, balance int64) (models.User, error)
	Deposit(ctx context.Context, userID string, amount int64) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListLedger(ctx context.Context, userID string) ([]models.LedgerEntry, error)
}

type BiddingHandler struct {
	service AuctionService
}

func NewBiddingHandler(service AuctionService) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// JoinAuctionHandler handles POST /auctions/:auction_id/join
func (h *BiddingHandler) JoinAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.JoinAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "JoinAuctionHandler", err)
		return
	}

	stake, err := h.service.JoinAuction(c.Request.Context(), auctionID, req.UserID)
	if err != nil {
		helpers.RespondError(c, "JoinAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    req.UserID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, stake, "joined auction successfully")
	helpers.LogSuccess("JoinAuctionHandler", "joined auction successfully", map[string]any{
		"auction_id": auctionID,
		"user_id":    req.UserID,
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), auctionID, req.UserID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    req.UserID,
			"amount":     req.Amount,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(result), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"auction_id": auctionID,
		"user_id":    req.UserID,
		"amount":     req.Amount,
	})
}

// GetStakesHandler handles GET /auctions/:auction_id/stakes
func (h *BiddingHandler) GetStakesHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	stakes, err := h.service.ListStakes(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetStakesHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	if stakes == nil {
		stakes = []models.Stake{}
	}

	utils.JSONResponse(c, http.StatusOK, stakes, "stakes retrieved successfully")
	helpers.LogSuccess("GetStakesHandler", "stakes retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(stakes),
	})
}
