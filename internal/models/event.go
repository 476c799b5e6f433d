package models

import (
	"time"

	"github.com/google/uuid"
)

// Topic names a real-time event
type Topic string

const (
	TopicAuctionCreated Topic = "auction.created"
	TopicAuctionUpdated Topic = "auction.updated"
	TopicAuctionDeleted Topic = "auction.deleted"
	TopicAuctionStarted Topic = "auction.started"
	TopicAuctionEnded   Topic = "auction.ended"
	TopicNewBid         Topic = "auction.newBid"
	TopicUserOutbid     Topic = "user.outbid"
)

// Event is a committed domain change published to real-time subscribers.
// UserID is set only for events addressed to a single user.
type Event struct {
	ID        string    `json:"id"`
	Topic     Topic     `json:"topic"`
	AuctionID string    `json:"auction_id"`
	UserID    string    `json:"user_id,omitempty"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBidPayload accompanies auction.newBid
type NewBidPayload struct {
	AuctionID      string `json:"auction_id"`
	UserID         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	CurrentHighest int64  `json:"current_highest"`
	TotalBids      int64  `json:"total_bids"`
}

// OutbidPayload accompanies user.outbid
type OutbidPayload struct {
	AuctionID      string `json:"auction_id"`
	UserID         string `json:"user_id"`
	NewBidAmount   int64  `json:"new_bid_amount"`
	PreviousAmount int64  `json:"previous_amount"`
}

// AuctionEndedPayload accompanies auction.ended. WinnerID is nil when nobody bid.
type AuctionEndedPayload struct {
	AuctionID     string   `json:"auction_id"`
	WinnerID      *string  `json:"winner_id"`
	FinalBid      int64    `json:"final_bid"`
	RefundedUsers []string `json:"refunded_users"`
}

// NewEvent builds an event stamped with a fresh id
func NewEvent(topic Topic, auctionID, userID string, payload any, at time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		AuctionID: auctionID,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: at,
	}
}
