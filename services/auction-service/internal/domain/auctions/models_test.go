package auctions

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_RejectsUnknownValues(t *testing.T) {
	var a Auction
	err := json.Unmarshal([]byte(`{"status":"paused"}`), &a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	require.NoError(t, json.Unmarshal([]byte(`{"status":"active"}`), &a))
	assert.Equal(t, StatusActive, a.Status)
}

func TestStatus_Before(t *testing.T) {
	assert.True(t, StatusScheduled.Before(StatusActive))
	assert.True(t, StatusActive.Before(StatusEnded))
	assert.False(t, StatusEnded.Before(StatusActive))
	assert.False(t, StatusActive.Before(StatusActive))
}

func TestAuction_MinimumIncrement(t *testing.T) {
	a := &Auction{
		StartingPrice:       decimal.NewFromInt(50),
		IncrementPercentage: decimal.NewFromInt(10),
	}
	assert.True(t, decimal.RequireFromString("5").Equal(a.MinimumIncrement()))

	a.StartingPrice = decimal.RequireFromString("19.99")
	a.IncrementPercentage = decimal.NewFromInt(15)
	assert.Equal(t, "3.00", a.MinimumIncrement().StringFixed(2))
}

func TestAuction_BidQueries(t *testing.T) {
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := &Auction{
		LastBidder: &bob,
		Bids: map[string]Bid{
			"1_alice": {UserID: alice, BidAmount: decimal.NewFromInt(60), Timestamp: t0},
			"2_bob":   {UserID: bob, BidAmount: decimal.NewFromInt(75), Timestamp: t0.Add(time.Minute)},
			"3_carol": {UserID: carol, BidAmount: decimal.NewFromInt(70), Timestamp: t0.Add(2 * time.Minute)},
		},
	}

	id, best, ok := a.HighestBid()
	require.True(t, ok)
	assert.Equal(t, "2_bob", id)
	assert.Equal(t, bob, best.UserID)

	id, _, ok = a.BidOf(carol)
	assert.True(t, ok)
	assert.Equal(t, "3_carol", id)
	_, _, ok = a.BidOf(uuid.New())
	assert.False(t, ok)

	assert.True(t, a.IsLeader(bob))
	assert.False(t, a.IsLeader(alice))

	other, ok := a.HighestOtherBid(bob)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(70).Equal(other))

	sorted := a.SortedBids()
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"2_bob", "3_carol", "1_alice"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}

func TestAuction_HighestBidTieGoesToEarliest(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &Auction{Bids: map[string]Bid{
		"late":  {UserID: uuid.New(), BidAmount: decimal.NewFromInt(80), Timestamp: t0.Add(time.Second)},
		"early": {UserID: uuid.New(), BidAmount: decimal.NewFromInt(80), Timestamp: t0},
	}}

	id, _, ok := a.HighestBid()
	require.True(t, ok)
	assert.Equal(t, "early", id)
}

func TestAuction_CloneIsDeep(t *testing.T) {
	bidder := uuid.New()
	now := time.Now()
	a := &Auction{
		LastBidder:  &bidder,
		LastBidTime: &now,
		Bids:        map[string]Bid{"x": {UserID: bidder, BidAmount: decimal.NewFromInt(10)}},
	}

	c := a.Clone()
	c.Bids["y"] = Bid{}
	*c.LastBidder = uuid.New()

	assert.Len(t, a.Bids, 1)
	assert.Equal(t, bidder, *a.LastBidder)
}

func TestBidsEncoding_EmptyInput(t *testing.T) {
	bids, err := UnmarshalBids("")
	require.NoError(t, err)
	assert.Empty(t, bids)

	raw, err := MarshalBids(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)
}
