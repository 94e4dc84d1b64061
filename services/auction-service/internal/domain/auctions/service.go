package auctions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/atelier/pkg/logger"
)

// ListFilter narrows GetAuctions. Nil fields do not filter.
type ListFilter struct {
	Status     *Status
	CategoryID *uuid.UUID
	ArtistID   *uuid.UUID
}

// Listing is an auction joined with artist and product summaries.
// Either summary may be nil when the catalog lookup failed.
type Listing struct {
	*Auction
	Artist  *ArtistSummary  `json:"artist"`
	Product *ProductSummary `json:"product"`
}

// Details is a single auction with its bids flattened, highest first.
type Details struct {
	*Auction
	Bids              []BidView `json:"bids"`
	TimeRemaining     int64     `json:"timeRemaining"`
	IsEnded           bool      `json:"isEnded"`
	IsFollowingArtist bool      `json:"isFollowingArtist"`
}

// AuctionProduct is the product behind an auction and its current leading bid.
type AuctionProduct struct {
	Product    *Product `json:"product"`
	HighestBid *BidView `json:"highestBid"`
}

// ArtistAuctions pairs an artist's auctions with the catalog products they sell.
type ArtistAuctions struct {
	Auctions []*Auction `json:"auctions"`
	Products []*Product `json:"products"`
}

// QueryService assembles the read side. Every read resolves lifecycle status
// against the clock and opportunistically persists corrections.
type QueryService struct {
	store   Store
	catalog Catalog
	logger  logger.Logger
	now     func() time.Time
}

// NewQueryService creates a new query service
func NewQueryService(store Store, catalog Catalog, log logger.Logger) *QueryService {
	return &QueryService{
		store:   store,
		catalog: catalog,
		logger:  log,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (s *QueryService) WithClock(now func() time.Time) *QueryService {
	s.now = now
	return s
}

// GetAuctions lists every auction matching the filter, newest first.
func (s *QueryService) GetAuctions(ctx context.Context, filter ListFilter) ([]Listing, error) {
	all, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read auctions: %w", err)
	}

	now := s.now()
	resolved := make([]*Auction, 0, len(all))
	for _, a := range all {
		resolved = append(resolved, s.resolve(ctx, a, now))
	}

	var productFilter map[uuid.UUID]struct{}
	if filter.CategoryID != nil {
		ids, err := s.catalog.ProductIDsByCategory(ctx, *filter.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve category products: %w", err)
		}
		productFilter = make(map[uuid.UUID]struct{}, len(ids))
		for _, id := range ids {
			productFilter[id] = struct{}{}
		}
	}

	matched := make([]*Auction, 0, len(resolved))
	for _, a := range resolved {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.ArtistID != nil && a.ArtistID != *filter.ArtistID {
			continue
		}
		if productFilter != nil {
			if _, ok := productFilter[a.ProductID]; !ok {
				continue
			}
		}
		matched = append(matched, a)
	}

	artists, products := s.joinSummaries(ctx, matched)

	listings := make([]Listing, 0, len(matched))
	for _, a := range matched {
		l := Listing{Auction: a}
		if artist, ok := artists[a.ArtistID]; ok {
			l.Artist = &artist
		}
		if product, ok := products[a.ProductID]; ok {
			l.Product = &product
		}
		listings = append(listings, l)
	}

	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].CreatedAt.After(listings[j].CreatedAt)
	})
	return listings, nil
}

// GetAuctionDetails returns one auction. viewerID is set only for authenticated
// customers; it drives the follow lookup.
func (s *QueryService) GetAuctionDetails(ctx context.Context, id string, viewerID *uuid.UUID) (*Details, error) {
	a, err := s.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	a = s.resolve(ctx, a, now)

	remaining := a.EndDate.Sub(now).Milliseconds()
	if remaining < 0 {
		remaining = 0
	}

	details := &Details{
		Auction:       a,
		Bids:          a.SortedBids(),
		TimeRemaining: remaining,
		IsEnded:       a.Status == StatusEnded || now.After(a.EndDate),
	}

	if viewerID != nil {
		following, err := s.catalog.IsFollowing(ctx, *viewerID, a.ArtistID)
		if err != nil {
			s.logger.Warn("Failed to look up follow status", "auction_id", id, "error", err)
		} else {
			details.IsFollowingArtist = following
		}
	}

	return details, nil
}

// GetAuctionProduct returns the product an auction sells and its highest bid, if any.
func (s *QueryService) GetAuctionProduct(ctx context.Context, id string) (*AuctionProduct, error) {
	a, err := s.store.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	a = s.resolve(ctx, a, s.now())

	product, err := s.catalog.GetProduct(ctx, a.ProductID)
	if err != nil {
		return nil, err
	}

	out := &AuctionProduct{Product: product}
	if bidID, bid, ok := a.HighestBid(); ok {
		out.HighestBid = &BidView{ID: bidID, Bid: bid}
	}
	return out, nil
}

// GetAuctionProductsByArtist intersects the artist's auctions with the artist's
// catalog products.
func (s *QueryService) GetAuctionProductsByArtist(ctx context.Context, artistID uuid.UUID) (*ArtistAuctions, error) {
	all, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read auctions: %w", err)
	}

	now := s.now()
	var mine []*Auction
	productIDs := make(map[uuid.UUID]struct{})
	for _, a := range all {
		if a.ArtistID != artistID {
			continue
		}
		a = s.resolve(ctx, a, now)
		mine = append(mine, a)
		productIDs[a.ProductID] = struct{}{}
	}
	if len(mine) == 0 {
		return nil, ErrNoAuctions
	}

	products, err := s.catalog.ProductsByArtist(ctx, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load artist products: %w", err)
	}

	var matched []*Product
	for _, p := range products {
		if _, ok := productIDs[p.ID]; ok {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil, ErrProductNotFound
	}

	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})
	return &ArtistAuctions{Auctions: mine, Products: matched}, nil
}

// resolve applies the lifecycle and persists a correction best-effort.
func (s *QueryService) resolve(ctx context.Context, a *Auction, now time.Time) *Auction {
	resolved, changed := Resolve(a, now)
	if !changed {
		return a
	}
	status := resolved.Status
	if err := s.store.Write(ctx, a.ID, Patch{Status: &status}); err != nil {
		s.logger.Warn("Failed to persist status correction",
			"auction_id", a.ID, "status", status, "error", err)
	}
	return resolved
}

// joinSummaries fetches artist and product summaries concurrently. A failed lookup
// is logged and leaves its side empty.
func (s *QueryService) joinSummaries(ctx context.Context, list []*Auction) (map[uuid.UUID]ArtistSummary, map[uuid.UUID]ProductSummary) {
	if len(list) == 0 {
		return nil, nil
	}

	artistIDs := distinct(list, func(a *Auction) uuid.UUID { return a.ArtistID })
	productIDs := distinct(list, func(a *Auction) uuid.UUID { return a.ProductID })

	var (
		artists  map[uuid.UUID]ArtistSummary
		products map[uuid.UUID]ProductSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.catalog.ArtistSummaries(gctx, artistIDs)
		if err != nil {
			s.logger.Warn("Failed to join artist summaries", "count", len(artistIDs), "error", err)
			return nil
		}
		artists = res
		return nil
	})
	g.Go(func() error {
		res, err := s.catalog.ProductSummaries(gctx, productIDs)
		if err != nil {
			s.logger.Warn("Failed to join product summaries", "count", len(productIDs), "error", err)
			return nil
		}
		products = res
		return nil
	})
	_ = g.Wait()

	return artists, products
}

func distinct(list []*Auction, key func(*Auction) uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(list))
	out := make([]uuid.UUID, 0, len(list))
	for _, a := range list {
		k := key(a)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// IsNotFound reports whether err is one of the read path's not-found results.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAuctionNotFound) || errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrNoAuctions)
}
