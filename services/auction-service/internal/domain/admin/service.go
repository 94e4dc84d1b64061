package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/floroz/atelier/pkg/database"
	"github.com/floroz/atelier/pkg/events"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
	"github.com/floroz/atelier/services/auction-service/internal/metrics"
)

// DefaultReconcileBatch bounds one reconciliation run.
const DefaultReconcileBatch = 100

// Service implements the admin operations that span the relational database and the auction store
type Service struct {
	txManager database.TransactionManager
	artists   ArtistRepository
	requests  RequestRepository
	outbox    OutboxRepository
	store     auctions.Store
	cascade   *CascadeCoordinator
	logger    logger.Logger
	now       func() time.Time
}

// NewService creates a new admin service
func NewService(
	txManager database.TransactionManager,
	artists ArtistRepository,
	requests RequestRepository,
	outbox OutboxRepository,
	store auctions.Store,
	log logger.Logger,
) *Service {
	return &Service{
		txManager: txManager,
		artists:   artists,
		requests:  requests,
		outbox:    outbox,
		store:     store,
		cascade:   NewCascadeCoordinator(store, requests, log),
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the time source of the service and its cascade.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.cascade.now = now
	return s
}

// RemoveArtist deletes an artist with their products and settles their auction
// requests. The relational commit is authoritative; store records of cancelled
// auctions are removed afterwards and failures there are left to Reconcile.
func (s *Service) RemoveArtist(ctx context.Context, artistID uuid.UUID) (*RemoveArtistResult, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	// Step 1: Lock the artist
	artist, err := s.artists.GetForUpdate(ctx, tx, artistID)
	if err != nil {
		return nil, err
	}

	// Step 2: Settle auction requests, refusing on active auctions
	cascade, err := s.cascade.Cascade(ctx, tx, artistID)
	if err != nil {
		if errors.Is(err, ErrActiveAuctions) {
			metrics.CascadeTotal.WithLabelValues("refused").Inc()
		}
		return nil, err
	}

	// Step 3: One outbox event per cancelled auction
	now := s.now()
	for _, req := range cascade.Cancelled {
		payload, err := events.EncodePayload(cancelledPayload(artist, req, now))
		if err != nil {
			return nil, err
		}
		if err := s.outbox.SaveEvent(ctx, tx, events.NewOutboxEvent(EventAuctionCancelled, payload, now)); err != nil {
			return nil, fmt.Errorf("failed to save outbox event: %w", err)
		}
	}

	// Step 4: Delete the artist; products go with it
	if err := s.artists.Delete(ctx, tx, artistID); err != nil {
		return nil, fmt.Errorf("failed to delete artist: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.CascadeTotal.WithLabelValues("committed").Inc()

	// Step 5: Best-effort store cleanup
	report := s.reconcileRequests(ctx, cascade.Cancelled)

	s.logger.Info("Artist removed",
		"artist_id", artistID,
		"cancelled", len(cascade.Cancelled),
		"deleted_requests", len(cascade.Deleted),
		"store_removed", report.Removed,
	)

	return &RemoveArtistResult{
		ArtistID:          artistID,
		CancelledAuctions: len(cascade.Cancelled),
		DeletedRequests:   len(cascade.Deleted),
		Reconcile:         report,
	}, nil
}

// ApproveAuctionRequest creates the store record for a pending request and
// links it. The store record is removed again if the relational side fails.
func (s *Service) ApproveAuctionRequest(ctx context.Context, requestID uuid.UUID) (*auctions.Auction, error) {
	now := s.now()

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, ErrRequestNotPending
	}
	if req.ArtistID == nil || req.ProductID == nil {
		return nil, ErrRequestOrphaned
	}
	if !req.EndDate.After(req.StartDate) || !req.EndDate.After(now) {
		return nil, ErrInvalidSchedule
	}

	increment := req.IncrementPercentage
	if increment.IsZero() {
		increment = auctions.DefaultIncrementPercentage
	}
	auction := &auctions.Auction{
		ProductID:           *req.ProductID,
		ArtistID:            *req.ArtistID,
		RequestID:           req.ID,
		StartingPrice:       req.StartingPrice,
		CurrentPrice:        req.StartingPrice,
		IncrementPercentage: increment,
		Status:              auctions.InitialStatus(req.StartDate, now),
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		CreatedAt:           now,
		Bids:                map[string]auctions.Bid{},
	}

	auctionID, err := s.store.Create(ctx, auction)
	if err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	if err := s.requests.MarkScheduled(ctx, tx, req.ID, auctionID); err != nil {
		s.discard(ctx, auctionID)
		return nil, fmt.Errorf("failed to schedule auction request: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		s.discard(ctx, auctionID)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Auction request approved", "request_id", req.ID, "auction_id", auctionID, "status", auction.Status)
	return auction, nil
}

func (s *Service) discard(ctx context.Context, auctionID string) {
	if err := s.store.Delete(ctx, auctionID); err != nil {
		s.logger.Error("Failed to discard auction after approval failure", "auction_id", auctionID, "error", err)
	}
}

// Reconcile removes store records left behind by cascades. It is idempotent
// and safe to run concurrently with bidding.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	pending, err := s.requests.ListUnreconciled(ctx, DefaultReconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreconciled requests: %w", err)
	}
	report := s.reconcileRequests(ctx, pending)
	if report.Scanned > 0 {
		s.logger.Info("Reconciliation finished",
			"scanned", report.Scanned,
			"removed", report.Removed,
			"already_gone", report.AlreadyGone,
			"needs_attention", report.NeedsAttention,
			"failed", report.Failed,
		)
	}
	return &report, nil
}

func (s *Service) reconcileRequests(ctx context.Context, requests []*AuctionRequest) ReconcileReport {
	var report ReconcileReport
	for _, req := range requests {
		if !req.HasAuction() {
			continue
		}
		outcome := s.reconcileOne(ctx, req)
		report.add(outcome)
	}
	return report
}

func (s *Service) reconcileOne(ctx context.Context, req *AuctionRequest) ReconcileReport {
	out := ReconcileReport{Scanned: 1}
	auctionID := *req.AuctionID
	log := s.logger.With("request_id", req.ID, "auction_id", auctionID)

	a, err := s.store.Read(ctx, auctionID)
	switch {
	case errors.Is(err, auctions.ErrAuctionNotFound):
		if !s.markReconciled(ctx, req.ID, log) {
			out.Failed++
			return out
		}
		metrics.ReconciledTotal.WithLabelValues("already_gone").Inc()
		out.AlreadyGone++
		return out
	case err != nil:
		log.Error("Failed to read auction for reconciliation", "error", err)
		metrics.ReconciledTotal.WithLabelValues("failed").Inc()
		s.deferRequest(ctx, req.ID, log)
		out.Failed++
		return out
	}

	resolved, _ := auctions.Resolve(a, s.now())
	if resolved.Status != auctions.StatusScheduled || resolved.BidCount > 0 {
		log.Warn("Cancelled auction cannot be removed automatically", "status", resolved.Status, "bid_count", resolved.BidCount)
		metrics.ReconciledTotal.WithLabelValues("needs_attention").Inc()
		// Status only moves forward, so the flag is final and later scans skip the row.
		if err := s.requests.MarkNeedsAttention(ctx, req.ID, s.now()); err != nil {
			log.Error("Failed to flag auction request", "error", err)
		}
		out.NeedsAttention++
		return out
	}

	if err := s.store.Delete(ctx, auctionID); err != nil {
		log.Error("Failed to delete cancelled auction", "error", err)
		metrics.ReconciledTotal.WithLabelValues("failed").Inc()
		s.deferRequest(ctx, req.ID, log)
		out.Failed++
		return out
	}
	if !s.markReconciled(ctx, req.ID, log) {
		// Delete is idempotent, the next run finishes the job.
		out.Failed++
		return out
	}
	metrics.ReconciledTotal.WithLabelValues("removed").Inc()
	out.Removed++
	return out
}

// deferRequest lets the next batch reach requests queued behind a failing one.
func (s *Service) deferRequest(ctx context.Context, requestID uuid.UUID, log logger.Logger) {
	if err := s.requests.DeferReconcile(ctx, requestID); err != nil {
		log.Error("Failed to defer auction request", "error", err)
	}
}

func (s *Service) markReconciled(ctx context.Context, requestID uuid.UUID, log logger.Logger) bool {
	if err := s.requests.MarkReconciled(ctx, requestID, s.now()); err != nil {
		log.Error("Failed to mark auction request reconciled", "error", err)
		return false
	}
	return true
}

func cancelledPayload(artist *Artist, req *AuctionRequest, now time.Time) map[string]any {
	fields := map[string]any{
		"requestId":   req.ID.String(),
		"auctionId":   *req.AuctionID,
		"artistId":    artist.ID.String(),
		"artistName":  artist.Name,
		"artistEmail": artist.Email,
		"reason":      CascadeAdminNote,
		"cancelledAt": now.UTC().Format(time.RFC3339),
	}
	if req.ProductID != nil {
		fields["productId"] = req.ProductID.String()
	}
	return fields
}
