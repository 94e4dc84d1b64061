package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
)

// PostgresCatalogRepository implements auctions.Catalog using pgx
type PostgresCatalogRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalogRepository creates a new PostgreSQL catalog repository
func NewPostgresCatalogRepository(pool *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool}
}

const productColumns = `
	p.id, p.title, p.description, p.image_url,
	a.id, a.name, a.profile_image,
	c.id, c.name
`

const productJoins = `
	FROM products p
	JOIN artists a ON a.id = p.artist_id
	LEFT JOIN categories c ON c.id = p.category_id
`

func (r *PostgresCatalogRepository) ProductIDsByCategory(ctx context.Context, categoryID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM products WHERE category_id = $1`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products by category: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan product ids: %w", err)
	}
	return ids, nil
}

func (r *PostgresCatalogRepository) ArtistSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]auctions.ArtistSummary, error) {
	out := make(map[uuid.UUID]auctions.ArtistSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, profile_image
		FROM artists
		WHERE id = ANY($1::uuid[])
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s auctions.ArtistSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.ProfileImage); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func (r *PostgresCatalogRepository) ProductSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]auctions.ProductSummary, error) {
	out := make(map[uuid.UUID]auctions.ProductSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, title, image_url
		FROM products
		WHERE id = ANY($1::uuid[])
	`, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s auctions.ProductSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func (r *PostgresCatalogRepository) GetProduct(ctx context.Context, id uuid.UUID) (*auctions.Product, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+productColumns+productJoins+" WHERE p.id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctions.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *PostgresCatalogRepository) ProductsByArtist(ctx context.Context, artistID uuid.UUID) ([]*auctions.Product, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+productColumns+productJoins+" WHERE p.artist_id = $1 ORDER BY p.created_at DESC", artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products by artist: %w", err)
	}
	defer rows.Close()

	var products []*auctions.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *PostgresCatalogRepository) IsFollowing(ctx context.Context, userID, artistID uuid.UUID) (bool, error) {
	var following bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE user_id = $1 AND artist_id = $2)`,
		userID, artistID,
	).Scan(&following)
	if err != nil {
		return false, fmt.Errorf("failed to check follow: %w", err)
	}
	return following, nil
}

func scanProduct(row pgx.Row) (*auctions.Product, error) {
	var (
		p            auctions.Product
		artist       auctions.ArtistSummary
		categoryID   *uuid.UUID
		categoryName *string
	)
	if err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.ImageURL,
		&artist.ID, &artist.Name, &artist.ProfileImage,
		&categoryID, &categoryName,
	); err != nil {
		return nil, err
	}
	p.Artist = &artist
	if categoryID != nil {
		p.Category = &auctions.Category{ID: *categoryID}
		if categoryName != nil {
			p.Category.Name = *categoryName
		}
	}
	return &p, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
