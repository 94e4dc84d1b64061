package admin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/atelier/pkg/events"
)

// RequestRepository persists auction requests
type RequestRepository interface {
	// ListByArtistForUpdate locks and returns every request owned by the artist.
	ListByArtistForUpdate(ctx context.Context, tx pgx.Tx, artistID uuid.UUID) ([]*AuctionRequest, error)

	// GetForUpdate returns ErrRequestNotFound when the row does not exist.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*AuctionRequest, error)

	MarkScheduled(ctx context.Context, tx pgx.Tx, id uuid.UUID, auctionID string) error
	MarkRejected(ctx context.Context, tx pgx.Tx, id uuid.UUID, note string) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	// ListUnreconciled returns rejected requests whose store record has not been
	// removed yet, least recently attempted first. Flagged requests are skipped.
	ListUnreconciled(ctx context.Context, limit int) ([]*AuctionRequest, error)
	MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkNeedsAttention flags a request whose record can no longer be removed automatically.
	MarkNeedsAttention(ctx context.Context, id uuid.UUID, at time.Time) error
	// DeferReconcile moves a request to the back of the reconciliation queue.
	DeferReconcile(ctx context.Context, id uuid.UUID) error
}

// ArtistRepository persists artists. Deleting an artist deletes its products.
type ArtistRepository interface {
	// GetForUpdate returns ErrArtistNotFound when the row does not exist.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Artist, error)
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// OutboxRepository saves events in the caller's transaction
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
