package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/models"
	"auction-engine/internal/scheduler"
	"auction-engine/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(m *MockAuctionService) *gin.Engine {
	h := NewBiddingHandler(m)
	router := gin.New()
	router.POST("/auctions", h.CreateAuctionHandler)
	router.GET("/auctions", h.ListAuctionsHandler)
	router.GET("/auctions/:auction_id", h.GetAuctionHandler)
	router.PATCH("/auctions/:auction_id", h.UpdateAuctionHandler)
	router.DELETE("/auctions/:auction_id", h.DeleteAuctionHandler)
	router.POST("/auctions/:auction_id/cancel", h.CancelAuctionHandler)
	router.POST("/users", h.CreateUserHandler)
	router.GET("/users/:user_id", h.GetUserHandler)
	router.POST("/users/:user_id/deposits", h.DepositHandler)
	router.GET("/users/:user_id/ledger", h.GetLedgerHandler)
	return router
}

func TestCreateAuctionHandler(t *testing.T) {
	t.Parallel()

	start := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockAuctionService)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "success",
			requestBody: helpers.CreateAuctionRequest{
				Title: "Vintage watch", EntryFee: 10, StartingBid: 50, StartTime: start, EndTime: end,
			},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					CreateAuction(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, spec models.AuctionSpec) (models.Auction, error) {
						require.Equal(t, int64(10), spec.EntryFee)
						require.Equal(t, int64(50), spec.StartingBid)
						require.True(t, spec.StartTime.Equal(start))
						return models.Auction{ID: "auction1", Title: spec.Title, Status: models.StatusUpcoming}, nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "auction created successfully",
		},
		{
			name:           "missing_times",
			requestBody:    map[string]any{"title": "no window"},
			mockSetup:      func(m *MockAuctionService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "negative_entry_fee",
			requestBody:    helpers.CreateAuctionRequest{Title: "x", EntryFee: -1, StartTime: start, EndTime: end},
			mockSetup:      func(m *MockAuctionService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "inverted_window",
			requestBody: helpers.CreateAuctionRequest{Title: "x", StartTime: end, EndTime: start},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).Return(models.Auction{}, auctionerrors.ErrInvalidTimeWindow)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid auction time window",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			m := NewMockAuctionService(ctrl)
			tc.mockSetup(m)

			status, resp := doRequest(t, newAdminRouter(m), http.MethodPost, "/auctions", tc.requestBody)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

func TestAuctionAdminHandlers(t *testing.T) {
	t.Parallel()

	title := "Renamed"

	tests := []struct {
		name           string
		method         string
		path           string
		body           any
		mockSetup      func(m *MockAuctionService)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:   "list_by_status",
			method: http.MethodGet,
			path:   "/auctions?status=live",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().ListAuctions(gomock.Any(), "live").Return([]models.Auction{{ID: "a1", Status: models.StatusLive}}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auctions retrieved successfully",
		},
		{
			name:   "list_unknown_status",
			method: http.MethodGet,
			path:   "/auctions?status=paused",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().ListAuctions(gomock.Any(), "paused").Return(nil, auctionerrors.ErrInvalidInput)
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request",
		},
		{
			name:   "get_with_current_highest",
			method: http.MethodGet,
			path:   "/auctions/a1",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().GetAuction(gomock.Any(), "a1").Return(models.AuctionView{Auction: models.Auction{ID: "a1"}, CurrentHighest: 75}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction retrieved successfully",
		},
		{
			name:   "get_not_found",
			method: http.MethodGet,
			path:   "/auctions/missing",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().GetAuction(gomock.Any(), "missing").Return(models.AuctionView{}, auctionerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name:   "patch_upcoming",
			method: http.MethodPatch,
			path:   "/auctions/a1",
			body:   map[string]any{"title": title},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().
					UpdateAuction(gomock.Any(), "a1", models.AuctionPatch{Title: &title}).
					Return(models.Auction{ID: "a1", Title: title}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction updated successfully",
		},
		{
			name:   "patch_live_rejected",
			method: http.MethodPatch,
			path:   "/auctions/a2",
			body:   map[string]any{"title": title},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().UpdateAuction(gomock.Any(), "a2", gomock.Any()).Return(models.Auction{}, auctionerrors.ErrInvalidTransition)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction state does not allow this operation",
		},
		{
			name:   "delete",
			method: http.MethodDelete,
			path:   "/auctions/a1",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().DeleteAuction(gomock.Any(), "a1").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction deleted successfully",
		},
		{
			name:   "cancel",
			method: http.MethodPost,
			path:   "/auctions/a1/cancel",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().CancelAuction(gomock.Any(), "a1").Return(models.Auction{ID: "a1", Status: models.StatusCancelled}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction cancelled successfully",
		},
		{
			name:   "create_user",
			method: http.MethodPost,
			path:   "/users",
			body:   helpers.CreateUserRequest{UserID: "u1", Balance: 100},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().CreateUser(gomock.Any(), "u1", int64(100)).Return(models.User{ID: "u1", Balance: 100}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "user created successfully",
		},
		{
			name:   "get_user",
			method: http.MethodGet,
			path:   "/users/u1",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().GetUser(gomock.Any(), "u1").Return(models.User{ID: "u1", Balance: 40}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "user retrieved successfully",
		},
		{
			name:   "deposit",
			method: http.MethodPost,
			path:   "/users/u1/deposits",
			body:   helpers.DepositRequest{Amount: 25},
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().Deposit(gomock.Any(), "u1", int64(25)).Return(models.User{ID: "u1", Balance: 125}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "deposit credited successfully",
		},
		{
			name:           "deposit_zero",
			method:         http.MethodPost,
			path:           "/users/u1/deposits",
			body:           helpers.DepositRequest{Amount: 0},
			mockSetup:      func(m *MockAuctionService) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:   "ledger",
			method: http.MethodGet,
			path:   "/users/u1/ledger",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().ListLedger(gomock.Any(), "u1").Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "ledger retrieved successfully",
		},
		{
			name:   "ledger_backend_down",
			method: http.MethodGet,
			path:   "/users/u2/ledger",
			mockSetup: func(m *MockAuctionService) {
				m.EXPECT().ListLedger(gomock.Any(), "u2").Return(nil, errors.New("disk on fire"))
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
			m := NewMockAuctionService(ctrl)
			tc.mockSetup(m)

			status, resp := doRequest(t, newAdminRouter(m), tc.method, tc.path, tc.body)
			require.Equal(t, tc.expectedStatus, status)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

func TestSchedulerHandler(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	m := NewMockSchedulerController(ctrl)

	m.EXPECT().TriggerSweep(gomock.Any()).Return(scheduler.SweepReport{
		Started:  []string{"a1"},
		Ended:    []string{"a2", "a3"},
		Failures: []scheduler.SweepFailure{},
	})
	m.EXPECT().Status().Return(scheduler.Status{Running: true, Interval: "30s", IntervalMs: 30000})

	h := NewSchedulerHandler(m)
	router := gin.New()
	router.POST("/scheduler/trigger", h.TriggerSweepHandler)
	router.GET("/scheduler/status", h.StatusHandler)

	status, resp := doRequest(t, router, http.MethodPost, "/scheduler/trigger", nil)
	require.Equal(t, http.StatusOK, status)
	data := resp["data"].(map[string]any)
	require.Len(t, data["started"], 1)
	require.Len(t, data["ended"], 2)

	status, resp = doRequest(t, router, http.MethodGet, "/scheduler/status", nil)
	require.Equal(t, http.StatusOK, status)
	data = resp["data"].(map[string]any)
	require.Equal(t, true, data["running"])
	require.Equal(t, 30000.0, data["interval_ms"])
}

type fakeWSServer struct {
	userID    string
	auctionID string
	err       error
}

func (f *fakeWSServer) ServeWS(w http.ResponseWriter, r *http.Request, userID, auctionID string) error {
	f.userID, f.auctionID = userID, auctionID
	if f.err != nil {
		http.Error(w, "bad handshake", http.StatusBadRequest)
		return f.err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func TestServeWSHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "upgraded", expectedStatus: http.StatusNoContent},
		{name: "upgrade_failed", err: errors.New("not a websocket handshake"), expectedStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := &fakeWSServer{err: tc.err}
			router := gin.New()
			router.GET("/ws", NewWebsocketHandler(srv).ServeWSHandler)

			req := httptest.NewRequest(http.MethodGet, "/ws?user_id=u1&auction_id=a1", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
			require.Equal(t, "u1", srv.userID)
			require.Equal(t, "a1", srv.auctionID)
		})
	}
}
