package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/models"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/server"

	"github.com/gin-gonic/gin"
)

var epoch = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

// testClock lets a test move engine time forward between requests
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestApp is a fully wired engine on top of the in-memory repository
type TestApp struct {
	Router    *gin.Engine
	Repo      *repository.MemoryRepo
	Service   *bidding.BiddingService
	Scheduler *scheduler.Scheduler
	Hub       *notify.Hub
	Bus       *notify.Bus
	Clock     *testClock
}

// SetupTestApp initializes the router with in-memory repository for integration testing.
func SetupTestApp(t *testing.T) *TestApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app := &TestApp{
		Repo:  repository.NewMemoryRepo(),
		Clock: &testClock{now: epoch},
	}
	app.Hub = notify.NewHub(nil)
	app.Bus = notify.NewBus(notify.DefaultBufferSize, notify.WithTransports(app.Hub), notify.WithPresence(app.Hub))
	app.Service = bidding.NewBiddingService(app.Repo, app.Bus, bidding.WithClock(app.Clock.Now))
	app.Scheduler = scheduler.New(app.Repo, app.Service, app.Bus, scheduler.WithClock(app.Service.Now))
	app.Router = server.SetupRouter(server.Dependencies{
		Service:   app.Service,
		Scheduler: app.Scheduler,
		Websocket: app.Hub,
	})

	t.Cleanup(func() {
		app.Bus.Close()
		app.Hub.Close()
	})
	return app
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// Data returns the envelope's data object
func Data(resp map[string]any) map[string]any {
	d, _ := resp["data"].(map[string]any)
	return d
}

// CreateLiveAuction creates an auction through the API and sweeps it live
func (app *TestApp) CreateLiveAuction(t *testing.T, entryFee, startingBid int64) string {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, app.Router, "POST", "/auctions", map[string]any{
		"title":        "integration lot",
		"entry_fee":    entryFee,
		"starting_bid": startingBid,
		"start_time":   app.Clock.Now(),
		"end_time":     app.Clock.Now().Add(time.Hour),
	})
	if w.Code != 201 {
		t.Fatalf("create auction: status %d body %s", w.Code, w.Body.String())
	}
	id := Data(resp)["id"].(string)

	_, w = ExecuteRequestAndParse(t, app.Router, "POST", "/scheduler/trigger", nil)
	if w.Code != 200 {
		t.Fatalf("trigger sweep: status %d", w.Code)
	}
	a, err := app.Repo.GetAuction(t.Context(), id)
	if err != nil || a.Status != models.StatusLive {
		t.Fatalf("auction %s not live after sweep: %v %v", id, a.Status, err)
	}
	return id
}
