package bids

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
)

// Engine places and updates bids. All writes go through a store transaction;
// the snapshot pre-check only exists to fail fast.
type Engine struct {
	store           auctions.Store
	notifier        Notifier
	logger          logger.Logger
	now             func() time.Time
	antiSnipeWindow time.Duration
}

// NewEngine creates a new bid engine
func NewEngine(store auctions.Store, notifier Notifier, log logger.Logger) *Engine {
	return &Engine{
		store:           store,
		notifier:        notifier,
		logger:          log,
		now:             time.Now,
		antiSnipeWindow: DefaultAntiSnipeWindow,
	}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithAntiSnipeWindow overrides the extension window.
func (e *Engine) WithAntiSnipeWindow(window time.Duration) *Engine {
	e.antiSnipeWindow = window
	return e
}

// PlaceBid records a customer's first bid on an auction.
func (e *Engine) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*PlaceBidResult, error) {
	now := e.now()

	// 1. Fast-fail on the current snapshot
	snapshot, err := e.snapshot(ctx, cmd.AuctionID, now)
	if err != nil {
		return nil, err
	}
	if err := checkPlace(snapshot, cmd, now); err != nil {
		e.markEndedIfDue(ctx, snapshot, err)
		return nil, err
	}

	// 2. Authoritative check and commit
	var (
		bidID          string
		previousLeader *uuid.UUID
		extended       bool
	)
	committed, err := e.store.Transact(ctx, cmd.AuctionID, func(current *auctions.Auction) (*auctions.Auction, error) {
		next, _ := auctions.Resolve(current, now)
		if err := checkPlace(next, cmd, now); err != nil {
			return nil, err
		}
		previousLeader = next.LastBidder

		bidID = fmt.Sprintf("%d_%s", now.UnixMilli(), cmd.UserID)
		if next.Bids == nil {
			next.Bids = make(map[string]auctions.Bid)
		}
		next.Bids[bidID] = auctions.Bid{
			UserID:       cmd.UserID,
			CustomerID:   cmd.CustomerID,
			CustomerName: cmd.CustomerName,
			BidAmount:    cmd.Amount,
			Timestamp:    now,
		}
		e.lead(next, cmd.UserID, cmd.Amount, now)
		next.BidCount++
		extended = extendForSnipe(next, now, e.antiSnipeWindow)
		return next, nil
	})
	if err != nil {
		return nil, e.commitError(cmd.AuctionID, err)
	}

	// 3. Fire-and-forget notification
	e.notifier.Notify(ctx, BidEvent{
		Type:           EventBidPlaced,
		AuctionID:      cmd.AuctionID,
		ProductID:      committed.ProductID,
		BidID:          bidID,
		UserID:         cmd.UserID,
		CustomerName:   cmd.CustomerName,
		Amount:         cmd.Amount,
		PreviousLeader: previousLeader,
		CurrentPrice:   committed.CurrentPrice,
		BidCount:       committed.BidCount,
		EndDate:        committed.EndDate,
		Extended:       extended,
		Timestamp:      now,
	})

	return &PlaceBidResult{
		BidID:        bidID,
		CurrentPrice: committed.CurrentPrice,
		BidCount:     committed.BidCount,
		EndDate:      committed.EndDate,
	}, nil
}

// UpdateBid raises a customer's existing bid in place. The bid id is preserved
// and bidCount is unchanged.
func (e *Engine) UpdateBid(ctx context.Context, cmd UpdateBidCommand) (*UpdateBidResult, error) {
	now := e.now()

	snapshot, err := e.snapshot(ctx, cmd.AuctionID, now)
	if err != nil {
		return nil, err
	}
	if _, _, err := checkUpdate(snapshot, cmd, now); err != nil {
		e.markEndedIfDue(ctx, snapshot, err)
		return nil, err
	}

	var (
		bidID          string
		oldAmount      decimal.Decimal
		customerName   string
		previousLeader *uuid.UUID
		extended       bool
	)
	committed, err := e.store.Transact(ctx, cmd.AuctionID, func(current *auctions.Auction) (*auctions.Auction, error) {
		next, _ := auctions.Resolve(current, now)
		id, existing, err := checkUpdate(next, cmd, now)
		if err != nil {
			return nil, err
		}
		bidID, oldAmount, customerName = id, existing.BidAmount, existing.CustomerName
		previousLeader = next.LastBidder

		updatedAt := now
		existing.BidAmount = cmd.Amount
		existing.UpdatedAt = &updatedAt
		next.Bids[id] = existing
		e.lead(next, cmd.UserID, cmd.Amount, now)
		extended = extendForSnipe(next, now, e.antiSnipeWindow)
		return next, nil
	})
	if err != nil {
		return nil, e.commitError(cmd.AuctionID, err)
	}

	previous := oldAmount
	e.notifier.Notify(ctx, BidEvent{
		Type:           EventBidUpdated,
		AuctionID:      cmd.AuctionID,
		ProductID:      committed.ProductID,
		BidID:          bidID,
		UserID:         cmd.UserID,
		CustomerName:   customerName,
		Amount:         cmd.Amount,
		PreviousAmount: &previous,
		PreviousLeader: previousLeader,
		CurrentPrice:   committed.CurrentPrice,
		BidCount:       committed.BidCount,
		EndDate:        committed.EndDate,
		Extended:       extended,
		Timestamp:      now,
	})

	return &UpdateBidResult{
		BidID:        bidID,
		OldBidAmount: oldAmount,
		NewBidAmount: cmd.Amount,
		CurrentPrice: committed.CurrentPrice,
		EndDate:      committed.EndDate,
	}, nil
}

// snapshot reads the record and resolves its status, persisting a correction best-effort.
func (e *Engine) snapshot(ctx context.Context, id string, now time.Time) (*auctions.Auction, error) {
	a, err := e.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	resolved, changed := auctions.Resolve(a, now)
	if changed {
		e.persistStatus(ctx, id, resolved.Status)
	}
	return resolved, nil
}

// markEndedIfDue records the ended status when a bid was rejected for arriving late.
func (e *Engine) markEndedIfDue(ctx context.Context, a *auctions.Auction, err error) {
	if !errors.Is(err, ErrAuctionEnded) || a.Status == auctions.StatusEnded {
		return
	}
	e.persistStatus(ctx, a.ID, auctions.StatusEnded)
}

func (e *Engine) persistStatus(ctx context.Context, id string, status auctions.Status) {
	if err := e.store.Write(ctx, id, auctions.Patch{Status: &status}); err != nil {
		e.logger.Warn("Failed to persist status correction", "auction_id", id, "status", status, "error", err)
	}
}

func (e *Engine) lead(a *auctions.Auction, userID uuid.UUID, amount decimal.Decimal, now time.Time) {
	bidTime := now
	leader := userID
	a.CurrentPrice = amount
	a.LastBidTime = &bidTime
	a.LastBidder = &leader
}

// commitError maps a failed transaction to the caller-facing error. Rejections
// found against fresher state and exhausted retries both surface as retryable.
func (e *Engine) commitError(auctionID string, err error) error {
	var rejection *RejectionError
	switch {
	case errors.As(err, &rejection):
		e.logger.Info("Bid rejected against fresher state", "auction_id", auctionID, "reason", rejection.Reason)
		return fmt.Errorf("%w: %w", ErrBidNotCommitted, rejection)
	case errors.Is(err, auctions.ErrNotCommitted):
		e.logger.Warn("Bid transaction exhausted retries", "auction_id", auctionID)
		return ErrBidNotCommitted
	case errors.Is(err, auctions.ErrAuctionNotFound):
		return err
	default:
		return fmt.Errorf("failed to commit bid: %w", err)
	}
}
