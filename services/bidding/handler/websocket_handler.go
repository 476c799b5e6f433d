package handler

import (
	"net/http"

	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// WebsocketServer upgrades a request into a subscriber session
type WebsocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID, auctionID string) error
}

type WebsocketHandler struct {
	server WebsocketServer
}

func NewWebsocketHandler(server WebsocketServer) *WebsocketHandler {
	return &WebsocketHandler{server: server}
}

// ServeWSHandler handles GET /ws?user_id=&auction_id=
func (h *WebsocketHandler) ServeWSHandler(c *gin.Context) {
	userID := c.Query("user_id")
	auctionID := c.Query("auction_id")

	// the upgrader has already written the HTTP error on failure
	if err := h.server.ServeWS(c.Writer, c.Request, userID, auctionID); err != nil {
		utils.Warn("ServeWSHandler: websocket upgrade failed", map[string]any{
			"user_id":    userID,
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}
	utils.Debug("ServeWSHandler: websocket session opened", map[string]any{"user_id": userID, "auction_id": auctionID})
}
