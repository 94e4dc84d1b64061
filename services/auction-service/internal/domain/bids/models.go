package bids

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinUpdateStep is the smallest raise a bidder can make over their own bid.
var MinUpdateStep = decimal.RequireFromString("0.01")

// DefaultAntiSnipeWindow is how close to the end a bid must land to extend the auction.
const DefaultAntiSnipeWindow = 5 * time.Minute

type PlaceBidCommand struct {
	AuctionID    string
	UserID       uuid.UUID
	CustomerID   uuid.UUID
	CustomerName string
	Amount       decimal.Decimal
}

type UpdateBidCommand struct {
	AuctionID string
	UserID    uuid.UUID
	Amount    decimal.Decimal
}

type PlaceBidResult struct {
	BidID        string          `json:"bidId"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	BidCount     int             `json:"bidCount"`
	EndDate      time.Time       `json:"endDate"`
}

type UpdateBidResult struct {
	BidID        string          `json:"bidId"`
	OldBidAmount decimal.Decimal `json:"oldBidAmount"`
	NewBidAmount decimal.Decimal `json:"newBidAmount"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	EndDate      time.Time       `json:"endDate"`
}

type EventType string

const (
	EventBidPlaced  EventType = "bid.placed"
	EventBidUpdated EventType = "bid.updated"
)

// BidEvent describes a committed bid for notification fan-out.
type BidEvent struct {
	Type           EventType        `json:"type"`
	AuctionID      string           `json:"auctionId"`
	ProductID      uuid.UUID        `json:"productId"`
	BidID          string           `json:"bidId"`
	UserID         uuid.UUID        `json:"userId"`
	CustomerName   string           `json:"customerName"`
	Amount         decimal.Decimal  `json:"amount"`
	PreviousAmount *decimal.Decimal `json:"previousAmount,omitempty"`
	PreviousLeader *uuid.UUID       `json:"previousLeader,omitempty"`
	CurrentPrice   decimal.Decimal  `json:"currentPrice"`
	BidCount       int              `json:"bidCount"`
	EndDate        time.Time        `json:"endDate"`
	Extended       bool             `json:"extended"`
	Timestamp      time.Time        `json:"timestamp"`
}
