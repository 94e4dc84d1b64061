package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/atelier/services/auction-service/internal/domain/admin"
)

// PostgresRequestRepository implements admin.RequestRepository using pgx
type PostgresRequestRepository struct {
	pool *pgxpool.Pool // non-transactional reconciliation queries
}

// NewPostgresRequestRepository creates a new PostgreSQL auction request repository
func NewPostgresRequestRepository(pool *pgxpool.Pool) *PostgresRequestRepository {
	return &PostgresRequestRepository{pool: pool}
}

const requestColumns = `
	id, artist_id, product_id, starting_price, increment_percentage,
	start_date, end_date, status, auction_id, admin_note, auction_removed_at,
	needs_attention_at, created_at, updated_at
`

func (r *PostgresRequestRepository) ListByArtistForUpdate(ctx context.Context, tx pgx.Tx, artistID uuid.UUID) ([]*admin.AuctionRequest, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+requestColumns+`
		FROM auction_requests
		WHERE artist_id = $1
		ORDER BY created_at ASC
		FOR UPDATE
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query auction requests: %w", err)
	}
	return collectRequests(rows)
}

func (r *PostgresRequestRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*admin.AuctionRequest, error) {
	row := tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM auction_requests WHERE id = $1 FOR UPDATE`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, admin.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get auction request: %w", err)
	}
	return req, nil
}

func (r *PostgresRequestRepository) MarkScheduled(ctx context.Context, tx pgx.Tx, id uuid.UUID, auctionID string) error {
	return execOne(ctx, tx, `
		UPDATE auction_requests
		SET status = $1::auction_request_status, auction_id = $2, updated_at = NOW()
		WHERE id = $3
	`, admin.RequestScheduled, auctionID, id)
}

func (r *PostgresRequestRepository) MarkRejected(ctx context.Context, tx pgx.Tx, id uuid.UUID, note string) error {
	return execOne(ctx, tx, `
		UPDATE auction_requests
		SET status = $1::auction_request_status, admin_note = $2, updated_at = NOW()
		WHERE id = $3
	`, admin.RequestRejected, note, id)
}

func (r *PostgresRequestRepository) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return execOne(ctx, tx, `DELETE FROM auction_requests WHERE id = $1`, id)
}

func (r *PostgresRequestRepository) ListUnreconciled(ctx context.Context, limit int) ([]*admin.AuctionRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM auction_requests
		WHERE status = $1::auction_request_status
		  AND admin_note = $2
		  AND auction_id IS NOT NULL
		  AND auction_removed_at IS NULL
		  AND needs_attention_at IS NULL
		ORDER BY updated_at ASC, id ASC
		LIMIT $3
	`, admin.RequestRejected, admin.CascadeAdminNote, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unreconciled requests: %w", err)
	}
	return collectRequests(rows)
}

func (r *PostgresRequestRepository) MarkReconciled(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE auction_requests
		SET auction_removed_at = $1, updated_at = NOW()
		WHERE id = $2 AND auction_removed_at IS NULL
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark request reconciled: %w", err)
	}
	return nil
}

func (r *PostgresRequestRepository) MarkNeedsAttention(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE auction_requests
		SET needs_attention_at = $1, updated_at = NOW()
		WHERE id = $2 AND needs_attention_at IS NULL
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to flag auction request: %w", err)
	}
	return nil
}

func (r *PostgresRequestRepository) DeferReconcile(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE auction_requests SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to defer auction request: %w", err)
	}
	return nil
}

func collectRequests(rows pgx.Rows) ([]*admin.AuctionRequest, error) {
	defer rows.Close()

	var out []*admin.AuctionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*admin.AuctionRequest, error) {
	var req admin.AuctionRequest
	err := row.Scan(
		&req.ID,
		&req.ArtistID,
		&req.ProductID,
		&req.StartingPrice,
		&req.IncrementPercentage,
		&req.StartDate,
		&req.EndDate,
		&req.Status,
		&req.AuctionID,
		&req.AdminNote,
		&req.AuctionRemovedAt,
		&req.NeedsAttentionAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func execOne(ctx context.Context, tx pgx.Tx, query string, args ...any) error {
	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update auction request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return admin.ErrRequestNotFound
	}
	return nil
}
