package handler

import (
	"net/http"

	"auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// CreateUserHandler handles POST /users
func (h *BiddingHandler) CreateUserHandler(c *gin.Context) {
	var req helpers.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateUserHandler", err)
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), req.UserID, req.Balance)
	if err != nil {
		helpers.RespondError(c, "CreateUserHandler", err, map[string]any{"user_id": req.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, user, "user created successfully")
	helpers.LogSuccess("CreateUserHandler", "user created successfully", map[string]any{
		"user_id": user.ID,
		"balance": user.Balance,
	})
}

// GetUserHandler handles GET /users/:user_id
func (h *BiddingHandler) GetUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, user, "user retrieved successfully")
}

// DepositHandler handles POST /users/:user_id/deposits
func (h *BiddingHandler) DepositHandler(c *gin.Context) {
	userID := c.Param("user_id")

	var req helpers.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "DepositHandler", err)
		return
	}

	user, err := h.service.Deposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "DepositHandler", err, map[string]any{"user_id": userID, "amount": req.Amount})
		return
	}

	utils.JSONResponse(c, http.StatusOK, user, "deposit credited successfully")
	helpers.LogSuccess("DepositHandler", "deposit credited successfully", map[string]any{
		"user_id": userID,
		"amount":  req.Amount,
		"balance": user.Balance,
	})
}

// GetLedgerHandler handles GET /users/:user_id/ledger
func (h *BiddingHandler) GetLedgerHandler(c *gin.Context) {
	userID := c.Param("user_id")
	entries, err := h.service.ListLedger(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "GetLedgerHandler", err, map[string]any{"user_id": userID})
		return
	}

	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	utils.JSONResponse(c, http.StatusOK, entries, "ledger retrieved successfully")
}
