package bids

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
)

// The predicates below are the single source of truth for bid acceptance. The
// engine calls them once on a snapshot to fail fast and again inside the store
// transaction, where the result is authoritative.

// checkOpen rejects bids on auctions that are not currently accepting them.
// a must already be resolved against now.
func checkOpen(a *auctions.Auction, now time.Time) error {
	if a.Status == auctions.StatusEnded || now.After(a.EndDate) {
		return reject(ErrAuctionEnded)
	}
	if a.Status != auctions.StatusActive {
		return reject(ErrAuctionNotActive)
	}
	return nil
}

// MinimumBid is the lowest acceptable new bid: currentPrice + startingPrice * incrementPercentage / 100.
func MinimumBid(a *auctions.Auction) decimal.Decimal {
	return a.CurrentPrice.Add(a.MinimumIncrement())
}

func checkPlace(a *auctions.Auction, cmd PlaceBidCommand, now time.Time) error {
	if !cmd.Amount.IsPositive() {
		return reject(ErrInvalidBidAmount)
	}
	if err := checkOpen(a, now); err != nil {
		return err
	}
	if _, existing, ok := a.BidOf(cmd.UserID); ok {
		amount := existing.BidAmount
		return &RejectionError{Reason: ErrAlreadyBid, ExistingBid: &amount}
	}
	if a.IsLeader(cmd.UserID) {
		return reject(ErrAlreadyHighestBidder)
	}

	minimum := MinimumBid(a)
	if cmd.Amount.LessThanOrEqual(a.CurrentPrice) {
		return rejectWithMinimum(ErrBidTooLow, minimum)
	}
	if cmd.Amount.LessThan(minimum) {
		return rejectWithMinimum(ErrBidBelowMinimum, minimum)
	}
	return nil
}

// minimumUpdate is the lowest amount the holder of existing may raise to:
// at least one cent over their own bid, and when others are bidding, at least
// one increment over the best of them.
func minimumUpdate(a *auctions.Auction, cmd UpdateBidCommand, existing auctions.Bid) decimal.Decimal {
	minimum := existing.BidAmount.Add(MinUpdateStep)
	if other, ok := a.HighestOtherBid(cmd.UserID); ok {
		minimum = decimal.Max(minimum, other.Add(a.MinimumIncrement()))
	}
	return minimum
}

// checkUpdate returns the caller's bid id and entry when the update is acceptable.
func checkUpdate(a *auctions.Auction, cmd UpdateBidCommand, now time.Time) (string, auctions.Bid, error) {
	if !cmd.Amount.IsPositive() {
		return "", auctions.Bid{}, reject(ErrInvalidBidAmount)
	}
	if err := checkOpen(a, now); err != nil {
		return "", auctions.Bid{}, err
	}
	bidID, existing, ok := a.BidOf(cmd.UserID)
	if !ok {
		return "", auctions.Bid{}, reject(ErrNoExistingBid)
	}
	if a.IsLeader(cmd.UserID) {
		return "", auctions.Bid{}, reject(ErrAlreadyHighestBidder)
	}

	minimum := minimumUpdate(a, cmd, existing)
	if cmd.Amount.LessThan(minimum) {
		return "", auctions.Bid{}, rejectWithMinimum(ErrBidBelowMinimum, minimum)
	}
	// Keeps currentPrice strictly increasing when the increment is zero.
	if cmd.Amount.LessThanOrEqual(a.CurrentPrice) {
		return "", auctions.Bid{}, rejectWithMinimum(ErrBidTooLow, decimal.Max(minimum, a.CurrentPrice.Add(MinUpdateStep)))
	}
	return bidID, existing, nil
}

// extendForSnipe pushes the end date to now+window when a bid lands inside the window.
// It reports whether the end date moved.
func extendForSnipe(a *auctions.Auction, now time.Time, window time.Duration) bool {
	if window <= 0 || a.EndDate.Sub(now) >= window {
		return false
	}
	a.EndDate = now.Add(window)
	return true
}
