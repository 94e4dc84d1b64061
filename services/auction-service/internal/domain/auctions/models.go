package auctions

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an auction. Transitions only move forward:
// scheduled -> active -> ended.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
)

// DefaultIncrementPercentage is applied when an auction is approved without one.
var DefaultIncrementPercentage = decimal.NewFromInt(10)

// ParseStatus rejects anything outside the closed set of lifecycle states.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusScheduled, StatusActive, StatusEnded:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

func (s Status) String() string {
	return string(s)
}

// rank orders statuses so callers can enforce monotonic transitions.
func (s Status) rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusActive:
		return 1
	case StatusEnded:
		return 2
	default:
		return -1
	}
}

// Before reports whether s precedes other in the lifecycle.
func (s Status) Before(other Status) bool {
	return s.rank() < other.rank()
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Bid is one customer's standing bid on an auction. A customer holds at most one.
type Bid struct {
	UserID       uuid.UUID       `json:"userId"`
	CustomerID   uuid.UUID       `json:"customerId"`
	CustomerName string          `json:"customerName"`
	BidAmount    decimal.Decimal `json:"bidAmount"`
	Timestamp    time.Time       `json:"timestamp"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
}

// Auction is the live, contended record kept in the auction store.
type Auction struct {
	ID                  string          `json:"id"`
	ProductID           uuid.UUID       `json:"productId"`
	ArtistID            uuid.UUID       `json:"artistId"`
	RequestID           uuid.UUID       `json:"requestId"`
	StartingPrice       decimal.Decimal `json:"startingPrice"`
	CurrentPrice        decimal.Decimal `json:"currentPrice"`
	IncrementPercentage decimal.Decimal `json:"incrementPercentage"`
	Status              Status          `json:"status"`
	StartDate           time.Time       `json:"startDate"`
	EndDate             time.Time       `json:"endDate"`
	CreatedAt           time.Time       `json:"createdAt"`
	LastBidTime         *time.Time      `json:"lastBidTime"`
	LastBidder          *uuid.UUID      `json:"lastBidder"`
	BidCount            int             `json:"bidCount"`
	Bids                map[string]Bid  `json:"bids"`
}

// Clone returns a deep copy; transaction functions mutate the copy they are handed.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.LastBidTime != nil {
		t := *a.LastBidTime
		c.LastBidTime = &t
	}
	if a.LastBidder != nil {
		u := *a.LastBidder
		c.LastBidder = &u
	}
	c.Bids = make(map[string]Bid, len(a.Bids))
	for id, b := range a.Bids {
		if b.UpdatedAt != nil {
			t := *b.UpdatedAt
			b.UpdatedAt = &t
		}
		c.Bids[id] = b
	}
	return &c
}

// MinimumIncrement is the fixed step every new bid must clear:
// startingPrice * incrementPercentage / 100.
func (a *Auction) MinimumIncrement() decimal.Decimal {
	return a.StartingPrice.Mul(a.IncrementPercentage).Div(decimal.NewFromInt(100))
}

// BidOf returns the caller's bid entry, if any.
func (a *Auction) BidOf(userID uuid.UUID) (string, Bid, bool) {
	for id, b := range a.Bids {
		if b.UserID == userID {
			return id, b, true
		}
	}
	return "", Bid{}, false
}

// IsLeader reports whether userID holds the current highest bid.
func (a *Auction) IsLeader(userID uuid.UUID) bool {
	return a.LastBidder != nil && *a.LastBidder == userID
}

// HighestBid returns the bid with the largest amount. Ties go to the earliest bid.
func (a *Auction) HighestBid() (string, Bid, bool) {
	var (
		bestID string
		best   Bid
		found  bool
	)
	for id, b := range a.Bids {
		if !found || b.BidAmount.GreaterThan(best.BidAmount) ||
			(b.BidAmount.Equal(best.BidAmount) && b.Timestamp.Before(best.Timestamp)) {
			bestID, best, found = id, b, true
		}
	}
	return bestID, best, found
}

// HighestOtherBid is the largest amount among bids not owned by userID.
func (a *Auction) HighestOtherBid(userID uuid.UUID) (decimal.Decimal, bool) {
	var (
		best  decimal.Decimal
		found bool
	)
	for _, b := range a.Bids {
		if b.UserID == userID {
			continue
		}
		if !found || b.BidAmount.GreaterThan(best) {
			best, found = b.BidAmount, true
		}
	}
	return best, found
}

// BidView is a bid flattened with its id for read responses.
type BidView struct {
	ID string `json:"id"`
	Bid
}

// SortedBids flattens the bid map, highest amount first.
func (a *Auction) SortedBids() []BidView {
	out := make([]BidView, 0, len(a.Bids))
	for id, b := range a.Bids {
		out = append(out, BidView{ID: id, Bid: b})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].BidAmount.Equal(out[j].BidAmount) {
			return out[i].BidAmount.GreaterThan(out[j].BidAmount)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// MarshalBids encodes the bid map for field-level persistence.
func MarshalBids(bids map[string]Bid) (string, error) {
	if bids == nil {
		bids = map[string]Bid{}
	}
	b, err := json.Marshal(bids)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bids: %w", err)
	}
	return string(b), nil
}

// UnmarshalBids decodes a persisted bid map. An empty string means no bids.
func UnmarshalBids(raw string) (map[string]Bid, error) {
	bids := map[string]Bid{}
	if raw == "" {
		return bids, nil
	}
	if err := json.Unmarshal([]byte(raw), &bids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bids: %w", err)
	}
	return bids, nil
}

// Patch is a partial field write. Nil fields are left untouched.
type Patch struct {
	Status  *Status
	EndDate *time.Time
}

// IsEmpty reports whether the patch would write nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.EndDate == nil
}
