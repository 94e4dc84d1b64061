package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
)

type requestAction int

const (
	actionReject requestAction = iota
	actionDelete
)

// CascadeCoordinator settles an artist's auction requests inside the relational
// transaction that deletes the artist. It never touches the auction store for
// writes: store records of cancelled auctions are removed after commit.
type CascadeCoordinator struct {
	store    auctions.Store
	requests RequestRepository
	logger   logger.Logger
	now      func() time.Time
}

// NewCascadeCoordinator creates a new cascade coordinator
func NewCascadeCoordinator(store auctions.Store, requests RequestRepository, log logger.Logger) *CascadeCoordinator {
	return &CascadeCoordinator{
		store:    store,
		requests: requests,
		logger:   log,
		now:      time.Now,
	}
}

// Cascade runs in two passes. The first only reads, and refuses with
// ErrActiveAuctions if any linked auction is active, so a refusal leaves the
// transaction untouched. The second rejects scheduled and pending requests and
// hard-deletes the rest.
func (c *CascadeCoordinator) Cascade(ctx context.Context, tx pgx.Tx, artistID uuid.UUID) (*CascadeResult, error) {
	now := c.now()
	log := c.logger.With("artist_id", artistID)

	requests, err := c.requests.ListByArtistForUpdate(ctx, tx, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list auction requests: %w", err)
	}

	// Pass 1: classify every request against the store
	result := &CascadeResult{}
	plan := make([]requestAction, len(requests))
	for i, req := range requests {
		switch req.Status {
		case RequestPending:
			plan[i] = actionReject
			continue
		case RequestScheduled:
		default:
			plan[i] = actionDelete
			continue
		}

		if !req.HasAuction() {
			log.Warn("Scheduled auction request has no auction id", "request_id", req.ID)
			plan[i] = actionReject
			continue
		}

		a, err := c.store.Read(ctx, *req.AuctionID)
		switch {
		case errors.Is(err, auctions.ErrAuctionNotFound):
			plan[i] = actionReject
			continue
		case err != nil:
			// The relational side proceeds; reconciliation picks the record up later.
			log.Error("Auction store unreachable during cascade", "auction_id", *req.AuctionID, "error", err)
			result.Unreachable = append(result.Unreachable, *req.AuctionID)
			plan[i] = actionReject
			continue
		}

		resolved, _ := auctions.Resolve(a, now)
		switch resolved.Status {
		case auctions.StatusActive:
			log.Info("Artist removal refused", "auction_id", *req.AuctionID)
			return nil, fmt.Errorf("%w: auction %s", ErrActiveAuctions, *req.AuctionID)
		case auctions.StatusEnded:
			plan[i] = actionDelete
		default:
			plan[i] = actionReject
		}
	}

	// Pass 2: mutate
	for i, req := range requests {
		switch plan[i] {
		case actionReject:
			if err := c.requests.MarkRejected(ctx, tx, req.ID, CascadeAdminNote); err != nil {
				return nil, fmt.Errorf("failed to reject auction request %s: %w", req.ID, err)
			}
			if req.HasAuction() {
				result.Cancelled = append(result.Cancelled, req)
			}
		case actionDelete:
			if err := c.requests.Delete(ctx, tx, req.ID); err != nil {
				return nil, fmt.Errorf("failed to delete auction request %s: %w", req.ID, err)
			}
			result.Deleted = append(result.Deleted, req.ID)
		}
	}

	log.Info("Cascade applied", "cancelled", len(result.Cancelled), "deleted", len(result.Deleted), "unreachable", len(result.Unreachable))
	return result, nil
}
