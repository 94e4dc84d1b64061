package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/atelier/services/auction-service/internal/domain/admin"
)

// PostgresArtistRepository implements admin.ArtistRepository using pgx
type PostgresArtistRepository struct{}

// NewPostgresArtistRepository creates a new PostgreSQL artist repository
func NewPostgresArtistRepository() *PostgresArtistRepository {
	return &PostgresArtistRepository{}
}

func (r *PostgresArtistRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*admin.Artist, error) {
	var artist admin.Artist
	err := tx.QueryRow(ctx, `SELECT id, name, email FROM artists WHERE id = $1 FOR UPDATE`, id).
		Scan(&artist.ID, &artist.Name, &artist.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, admin.ErrArtistNotFound
		}
		return nil, fmt.Errorf("failed to get artist: %w", err)
	}
	return &artist, nil
}

// Delete removes the artist; products and follows cascade in the schema.
func (r *PostgresArtistRepository) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	result, err := tx.Exec(ctx, `DELETE FROM artists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete artist: %w", err)
	}
	if result.RowsAffected() == 0 {
		return admin.ErrArtistNotFound
	}
	return nil
}
