package models

import "time"

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusUpcoming  AuctionStatus = "upcoming"
	StatusLive      AuctionStatus = "live"
	StatusEnded     AuctionStatus = "ended"
	StatusCancelled AuctionStatus = "cancelled"
)

// LedgerKind classifies a balance-affecting event
type LedgerKind string

const (
	KindEntryFee LedgerKind = "entry_fee"
	KindBid      LedgerKind = "bid"
	KindRefund   LedgerKind = "refund"
	KindWin      LedgerKind = "win"
	KindPurchase LedgerKind = "purchase"
)

// User holds a participant's prepaid wallet
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Balance   int64     `json:"balance" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Auction represents a time-boxed ascending-bid auction
type Auction struct {
	ID                string        `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ProductID         string        `json:"product_id" gorm:"type:varchar(64);index"`
	Title             string        `json:"title" gorm:"type:varchar(255)"`
	Description       string        `json:"description" gorm:"type:text"`
	EntryFee          int64         `json:"entry_fee" gorm:"not null"`
	MinWallet         int64         `json:"min_wallet" gorm:"not null"`
	StartingBid       int64         `json:"starting_bid" gorm:"not null"`
	StartTime         time.Time     `json:"start_time" gorm:"index;not null"`
	EndTime           time.Time     `json:"end_time" gorm:"index;not null"`
	Status            AuctionStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	WinnerID          *string       `json:"winner_id" gorm:"type:varchar(64)"`
	FinalBid          *int64        `json:"final_bid"`
	TotalParticipants int64         `json:"total_participants" gorm:"not null;default:0"`
	TotalBids         int64         `json:"total_bids" gorm:"not null;default:0"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Stake is a user's current standing bid for one auction. Amount 0 means joined without bidding.
type Stake struct {
	AuctionID string     `json:"auction_id" gorm:"primaryKey;type:varchar(64)"`
	UserID    string     `json:"user_id" gorm:"primaryKey;type:varchar(64)"`
	Amount    int64      `json:"amount" gorm:"not null;default:0"`
	IsWinning bool       `json:"is_winning" gorm:"not null;default:false"`
	BidTime   *time.Time `json:"bid_time"`
	CreatedAt time.Time  `json:"created_at"`
}

// LedgerEntry is an immutable record of a single balance movement
type LedgerEntry struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(64)"`
	UserID    string     `json:"user_id" gorm:"type:varchar(64);index;not null"`
	AuctionID *string    `json:"auction_id" gorm:"type:varchar(64);index"`
	Kind      LedgerKind `json:"kind" gorm:"type:varchar(16);index;not null"`
	Amount    int64      `json:"amount" gorm:"not null"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`

	// Seq is assigned by the store on insert and orders entries in commit order
	Seq int64 `json:"seq" gorm:"autoIncrement;uniqueIndex"`
}

// AuctionSpec describes a new auction handed in by the catalog collaborator
type AuctionSpec struct {
	ProductID   string    `json:"product_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EntryFee    int64     `json:"entry_fee"`
	MinWallet   int64     `json:"min_wallet"`
	StartingBid int64     `json:"starting_bid"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// AuctionPatch holds the fields that may change while an auction is upcoming
type AuctionPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	EntryFee    *int64     `json:"entry_fee,omitempty"`
	MinWallet   *int64     `json:"min_wallet,omitempty"`
	StartingBid *int64     `json:"starting_bid,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// AuctionView is an auction together with its current highest bid
type AuctionView struct {
	Auction
	CurrentHighest int64 `json:"current_highest"`
}

// BidResult is returned by a successful bid
type BidResult struct {
	Stake          Stake `json:"stake"`
	CurrentHighest int64 `json:"current_highest"`
}
