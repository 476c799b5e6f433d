package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"auction-engine/internal/metrics"
	"auction-engine/internal/models"
	"auction-engine/utils"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 64

	defaultPresenceRefresh = DefaultPresenceTTL / 3
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin checks belong to the gateway in front of the engine
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PresenceTracker is told when a user's first session opens and last session closes
type PresenceTracker interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
}

// Client is one websocket session. UserID is empty for anonymous watchers.
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// ClientMessage is what a client sends to manage its auction subscriptions
type ClientMessage struct {
	Action    string `json:"action"` // subscribe | unsubscribe
	AuctionID string `json:"auction_id"`
}

// Hub keeps websocket sessions indexed by auction room and by user. It is a
// Transport for the bus and the in-process Presence directory.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{} // key: auctionID
	users   map[string]map[*Client]struct{} // key: userID

	tracker PresenceTracker
	refresh time.Duration

	// presenceMu orders tracker calls so the last one matches h.users
	presenceMu sync.Mutex
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// HubOption customizes a Hub
type HubOption func(*Hub)

// WithPresenceRefresh sets how often the tracker is told again about every
// connected user. It must be shorter than the tracker's claim TTL.
func WithPresenceRefresh(d time.Duration) HubOption {
	return func(h *Hub) { h.refresh = d }
}

// NewHub creates an empty Hub. tracker may be nil; when set, connected users
// are re-marked online on every refresh tick until Close.
func NewHub(tracker PresenceTracker, opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		users:   make(map[string]map[*Client]struct{}),
		tracker: tracker,
		refresh: defaultPresenceRefresh,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tracker != nil && h.refresh > 0 {
		h.wg.Add(1)
		go h.refreshLoop()
	}
	return h
}

// Name implements Transport
func (h *Hub) Name() string { return "websocket" }

// Deliver implements Transport. User-addressed events go to that user's
// sessions, bids go to the auction room and lifecycle events go to everyone.
func (h *Hub) Deliver(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// sends happen under the read lock so unregister cannot close a channel mid-send
	h.mu.RLock()
	var targets map[*Client]struct{}
	switch {
	case event.UserID != "":
		targets = h.users[event.UserID]
	case event.Topic == models.TopicNewBid:
		targets = h.rooms[event.AuctionID]
	default:
		targets = h.clients
	}
	var slow []*Client
	for c := range targets {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// a slow client must not hold up the others
	for _, c := range slow {
		utils.Warn("Websocket client too slow, disconnecting", map[string]any{"client_id": c.ID, "user_id": c.UserID})
		h.unregister(c)
	}
	return nil
}

// IsOnline implements Presence for sessions held by this process
func (h *Hub) IsOnline(ctx context.Context, userID string) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0, nil
}

// ServeWS upgrades the request and registers the session. The first auction
// room may be given up front; more can be joined with subscribe messages.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID, auctionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		ID:     utils.GenerateID(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    h,
	}
	welcome, _ := json.Marshal(map[string]string{"type": "connected", "client_id": c.ID})
	c.send <- welcome
	h.register(c, auctionID)

	go c.writePump()
	go c.readPump()
	return nil
}

// SubscriberCount returns the number of sessions watching an auction
func (h *Hub) SubscriberCount(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

// Close stops the presence refresh and disconnects every session
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
	h.wg.Wait()

	h.mu.RLock()
	all := collect(h.clients)
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) refreshLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.refreshPresence(context.Background())
		}
	}
}

// refreshPresence re-marks every user that holds a session on this hub
func (h *Hub) refreshPresence(ctx context.Context) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.mu.RLock()
	userIDs := make([]string, 0, len(h.users))
	for id := range h.users {
		userIDs = append(userIDs, id)
	}
	h.mu.RUnlock()

	for _, id := range userIDs {
		if err := h.tracker.MarkOnline(ctx, id); err != nil {
			utils.Warn("Failed to refresh user presence", map[string]any{"user_id": id, "error": err.Error()})
		}
	}
}

// syncPresence tells the tracker whether userID still has sessions here.
// It reads h.users under presenceMu, so a disconnect racing a reconnect
// always ends with the state of whichever ran last.
func (h *Hub) syncPresence(userID string) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.mu.RLock()
	online := len(h.users[userID]) > 0
	h.mu.RUnlock()

	ctx := context.Background()
	if online {
		if err := h.tracker.MarkOnline(ctx, userID); err != nil {
			utils.Warn("Failed to mark user online", map[string]any{"user_id": userID, "error": err.Error()})
		}
		return
	}
	if err := h.tracker.MarkOffline(ctx, userID); err != nil {
		utils.Warn("Failed to mark user offline", map[string]any{"user_id": userID, "error": err.Error()})
	}
}

func (h *Hub) register(c *Client, auctionID string) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if auctionID != "" {
		if h.rooms[auctionID] == nil {
			h.rooms[auctionID] = make(map[*Client]struct{})
		}
		h.rooms[auctionID][c] = struct{}{}
	}
	first := false
	if c.UserID != "" {
		if h.users[c.UserID] == nil {
			h.users[c.UserID] = make(map[*Client]struct{})
			first = true
		}
		h.users[c.UserID][c] = struct{}{}
	}
	h.mu.Unlock()

	metrics.AddWSClients(1)
	if first && h.tracker != nil {
		h.syncPresence(c.UserID)
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for id, room := range h.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, id)
		}
	}
	last := false
	if c.UserID != "" {
		delete(h.users[c.UserID], c)
		if len(h.users[c.UserID]) == 0 {
			delete(h.users, c.UserID)
			last = true
		}
	}
	close(c.send)
	h.mu.Unlock()

	metrics.AddWSClients(-1)
	if last && h.tracker != nil {
		h.syncPresence(c.UserID)
	}
}

func (h *Hub) subscribe(c *Client, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	if h.rooms[auctionID] == nil {
		h.rooms[auctionID] = make(map[*Client]struct{})
	}
	h.rooms[auctionID][c] = struct{}{}
}

func (h *Hub) unsubscribe(c *Client, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[auctionID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, auctionID)
		}
	}
}

func collect(set map[*Client]struct{}) []*Client {
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// writePump pumps messages from the send channel to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles subscription messages until the connection drops
func (c *Client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.Warn("Websocket read error", map[string]any{"client_id": c.ID, "error": err.Error()})
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.AuctionID == "" {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.hub.subscribe(c, msg.AuctionID)
		case "unsubscribe":
			c.hub.unsubscribe(c, msg.AuctionID)
		}
	}
}
