package store

import (
	"context"
	"sort"
	"sync"

	"github.com/failsafe-go/failsafe-go"
	"github.com/google/uuid"

	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
	"github.com/floroz/atelier/services/auction-service/internal/metrics"
)

type versioned struct {
	auction *auctions.Auction
	version uint64
}

// MemoryStore is an in-process auction store with version-checked optimistic
// commits. The transaction function runs without the lock held, so concurrent
// writers genuinely race and the loser retries.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]versioned
	exec    failsafe.Executor[*auctions.Auction]
}

// NewMemoryStore creates an empty store
func NewMemoryStore(cfg RetryConfig) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]versioned),
		exec:    newConflictExecutor(cfg),
	}
}

func (s *MemoryStore) Read(_ context.Context, id string) (*auctions.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, auctions.ErrAuctionNotFound
	}
	return rec.auction.Clone(), nil
}

func (s *MemoryStore) ReadAll(_ context.Context) ([]*auctions.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*auctions.Auction, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.auction.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Write(_ context.Context, id string, patch auctions.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	next := rec.auction.Clone()
	if !applyPatch(next, patch) {
		return nil
	}
	s.records[id] = versioned{auction: next, version: rec.version + 1}
	return nil
}

func (s *MemoryStore) Transact(ctx context.Context, id string, fn auctions.TransactFunc) (*auctions.Auction, error) {
	return runTransact(ctx, s.exec, func() (*auctions.Auction, error) {
		s.mu.RLock()
		rec, ok := s.records[id]
		s.mu.RUnlock()
		if !ok {
			return nil, auctions.ErrAuctionNotFound
		}

		next, err := fn(rec.auction.Clone())
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		latest, ok := s.records[id]
		if !ok {
			return nil, auctions.ErrAuctionNotFound
		}
		if latest.version != rec.version {
			metrics.StoreConflictsTotal.WithLabelValues("memory").Inc()
			return nil, errConflict
		}

		stored := next.Clone()
		stored.ID = id
		s.records[id] = versioned{auction: stored, version: latest.version + 1}
		return stored.Clone(), nil
	})
}

func (s *MemoryStore) Create(_ context.Context, a *auctions.Auction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := a.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.records[stored.ID] = versioned{auction: stored}
	a.ID = stored.ID
	return stored.ID, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// applyPatch applies only forward moves: status never goes back and the end
// date never shrinks. It reports whether anything changed.
func applyPatch(a *auctions.Auction, patch auctions.Patch) bool {
	changed := false
	if patch.Status != nil && a.Status.Before(*patch.Status) {
		a.Status = *patch.Status
		changed = true
	}
	if patch.EndDate != nil && patch.EndDate.After(a.EndDate) {
		a.EndDate = *patch.EndDate
		changed = true
	}
	return changed
}
