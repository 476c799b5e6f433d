package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// doRequest sends body (a string is sent raw) and decodes the response envelope
func doRequest(t *testing.T, router http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestPlaceBidHandler(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockAuctionService)
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, data map[string]any)
		wantHighest    float64
	}{
		{
			name:        "success_valid_bid",
			requestBody: helpers.PlaceBidRequest{UserID: "user1", Amount: 100},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", int64(100)).
					Return(models.BidResult{
						Stake:          models.Stake{AuctionID: "auction1", UserID: "user1", Amount: 100, IsWinning: true, BidTime: &now},
						CurrentHighest: 100,
					}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid placed successfully",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "auction1", data["auction_id"])
				require.Equal(t, "user1", data["user_id"])
				require.Equal(t, 100.0, data["amount"])
				require.Equal(t, true, data["is_winning"])
				require.Equal(t, 100.0, data["current_highest"])
				require.NotEmpty(t, data["bid_time"])
			},
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			mockSetup:      func(m *MockAuctionService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_user_id",
			requestBody:    helpers.PlaceBidRequest{Amount: 50},
			mockSetup:      func(m *MockAuctionService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "zero_amount",
			requestBody:    helpers.PlaceBidRequest{UserID: "user1", Amount: 0},
			mockSetup:      func(m *MockAuctionService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "negative_amount",
			requestBody:    helpers.PlaceBidRequest{UserID: "user1", Amount: -10},
			mockSetup:      func(m *MockAuctionService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "bid_too_low",
			requestBody: helpers.PlaceBidRequest{UserID: "user1", Amount: 50},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", int64(50)).
					Return(models.BidResult{}, fmt.Errorf("service: %w", &auctionerrors.BidTooLowError{CurrentHighest: 60}))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
			wantHighest:    60,
		},
		{
			name:        "not_joined",
			requestBody: helpers.PlaceBidRequest{UserID: "user2", Amount: 70},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user2", int64(70)).
					Return(models.BidResult{}, auctionerrors.ErrNotJoined)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "must join auction before bidding",
		},
		{
			name:        "insufficient_funds",
			requestBody: helpers.PlaceBidRequest{UserID: "user1", Amount: 5000},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", int64(5000)).
					Return(models.BidResult{}, auctionerrors.ErrInsufficientFunds)
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedMsg:    "insufficient wallet balance",
		},
		{
			name:        "auction_ended",
			requestBody: helpers.PlaceBidRequest{UserID: "user1", Amount: 200},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", int64(200)).
					Return(models.BidResult{}, auctionerrors.ErrAuctionEnded)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "auction has ended",
		},
		{
			name:        "persistent_conflict",
			requestBody: helpers.PlaceBidRequest{UserID: "user1", Amount: 300},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", int64(300)).
					Return(models.BidResult{}, auctionerrors.ErrConcurrencyConflict)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "service temporarily unavailable",
		},
		{
			name:        "service_generic_error",
			requestBody: helpers.PlaceBidRequest{UserID: "user1", Amount: 400},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					PlaceBid(gomock.Any(), "auction1", "user1", int64(400)).
					Return(models.BidResult{}, errors.New("database failure"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockService := NewMockAuctionService(ctrl)
			tc.mockSetup(mockService)

			router := gin.New()
			router.POST("/auctions/:auction_id/bids", NewBiddingHandler(mockService).PlaceBidHandler)

			status, resp := doRequest(t, router, http.MethodPost, "/auctions/auction1/bids", tc.requestBody)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)

			if tc.validateData != nil && status == http.StatusCreated {
				tc.validateData(t, resp["data"].(map[string]any))
			}
			if tc.wantHighest > 0 {
				details := resp["details"].(map[string]any)
				require.Equal(t, tc.wantHighest, details["current_highest"])
			}
		})
	}
}

func TestJoinAuctionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockAuctionService)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:        "success",
			requestBody: helpers.JoinAuctionRequest{UserID: "user1"},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					JoinAuction(gomock.Any(), "auction1", "user1").
					Return(models.Stake{AuctionID: "auction1", UserID: "user1"}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "joined auction successfully",
		},
		{
			name:           "missing_user_id",
			requestBody:    map[string]any{},
			mockSetup:      func(m *MockAuctionService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "already_joined",
			requestBody: helpers.JoinAuctionRequest{UserID: "user1"},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().JoinAuction(gomock.Any(), "auction1", "user1").Return(models.Stake{}, auctionerrors.ErrAlreadyJoined)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "already joined auction",
		},
		{
			name:        "not_live",
			requestBody: helpers.JoinAuctionRequest{UserID: "user1"},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().JoinAuction(gomock.Any(), "auction1", "user1").Return(models.Stake{}, auctionerrors.ErrAuctionNotLive)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "auction is not live",
		},
		{
			name:        "unknown_user",
			requestBody: helpers.JoinAuctionRequest{UserID: "ghost"},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().JoinAuction(gomock.Any(), "auction1", "ghost").Return(models.Stake{}, auctionerrors.ErrUserNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "user not found",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockService := NewMockAuctionService(ctrl)
			tc.mockSetup(mockService)

			router := gin.New()
			router.POST("/auctions/:auction_id/join", NewBiddingHandler(mockService).JoinAuctionHandler)

			status, resp := doRequest(t, router, http.MethodPost, "/auctions/auction1/join", tc.requestBody)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

func TestGetStakesHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mockSetup      func(m *MockAuctionService)
		expectedStatus int
		expectedLen    int
	}{
		{
			name: "success_multiple_stakes",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().ListStakes(gomock.Any(), "auction1").Return([]models.Stake{
					{AuctionID: "auction1", UserID: "user2", Amount: 120, IsWinning: true},
					{AuctionID: "auction1", UserID: "user1", Amount: 100},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    2,
		},
		{
			name: "nil_slice_renders_empty",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().ListStakes(gomock.Any(), "auction1").Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedLen:    0,
		},
		{
			name: "service_error",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().ListStakes(gomock.Any(), "auction1").Return(nil, auctionerrors.ErrPersistenceUnavailable)
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			mockService := NewMockAuctionService(ctrl)
			tc.mockSetup(mockService)

			router := gin.New()
			router.GET("/auctions/:auction_id/stakes", NewBiddingHandler(mockService).GetStakesHandler)

			status, resp := doRequest(t, router, http.MethodGet, "/auctions/auction1/stakes", nil)
			require.Equal(t, tc.expectedStatus, status)
			if status == http.StatusOK {
				require.Len(t, resp["data"].([]any), tc.expectedLen)
			}
		})
	}
}
