package auctions

import (
	"context"

	"github.com/google/uuid"
)

// TransactFunc receives a private copy of the freshest committed record and returns
// the record to commit. Returning an error aborts without writing. It may be invoked
// several times when commits conflict, so it must be free of side effects.
type TransactFunc func(current *Auction) (*Auction, error)

// Store is the keyed auction store. One mutable record per auction.
type Store interface {
	// Read returns ErrAuctionNotFound when the key does not exist.
	Read(ctx context.Context, id string) (*Auction, error)

	ReadAll(ctx context.Context) ([]*Auction, error)

	// Write applies a last-writer-wins partial update. Writing to a missing
	// key is a no-op.
	Write(ctx context.Context, id string, patch Patch) error

	// Transact runs fn against the freshest record and commits atomically,
	// retrying on conflict up to a bound. It returns the committed record, fn's
	// error on abort, or ErrNotCommitted when retries are exhausted.
	Transact(ctx context.Context, id string, fn TransactFunc) (*Auction, error)

	// Create stores a new record and assigns its id.
	Create(ctx context.Context, a *Auction) (string, error)

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
}

// ArtistSummary is the slice of an artist profile joined into auction listings.
type ArtistSummary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ProfileImage string    `json:"profileImage,omitempty"`
}

// ProductSummary is the slice of a product joined into auction listings.
type ProductSummary struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	ImageURL string    `json:"imageUrl,omitempty"`
}

// Category of a product.
type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Product is the full catalog entry with its artist and category.
type Product struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	Artist      *ArtistSummary `json:"artist"`
	Category    *Category      `json:"category"`
}

// Catalog is the relational catalog as seen by the read path.
type Catalog interface {
	ProductIDsByCategory(ctx context.Context, categoryID uuid.UUID) ([]uuid.UUID, error)
	ArtistSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ArtistSummary, error)
	ProductSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductSummary, error)
	// GetProduct returns ErrProductNotFound when the product does not exist.
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	ProductsByArtist(ctx context.Context, artistID uuid.UUID) ([]*Product, error)
	IsFollowing(ctx context.Context, userID, artistID uuid.UUID) (bool, error)
}
