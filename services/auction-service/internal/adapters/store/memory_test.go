package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
)

func fastRetries(n int) RetryConfig {
	return RetryConfig{MaxRetries: n}
}

func seedAuction(t *testing.T, s auctions.Store) *auctions.Auction {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &auctions.Auction{
		ProductID:           uuid.New(),
		ArtistID:            uuid.New(),
		RequestID:           uuid.New(),
		StartingPrice:       decimal.NewFromInt(50),
		CurrentPrice:        decimal.NewFromInt(50),
		IncrementPercentage: decimal.NewFromInt(10),
		Status:              auctions.StatusActive,
		StartDate:           now,
		EndDate:             now.Add(24 * time.Hour),
		CreatedAt:           now,
		Bids:                map[string]auctions.Bid{},
	}
	_, err := s.Create(context.Background(), a)
	require.NoError(t, err)
	return a
}

func TestMemoryStore_ReadMissing(t *testing.T) {
	s := NewMemoryStore(fastRetries(3))

	_, err := s.Read(context.Background(), "nope")
	assert.ErrorIs(t, err, auctions.ErrAuctionNotFound)

	_, err = s.Transact(context.Background(), "nope", func(a *auctions.Auction) (*auctions.Auction, error) {
		return a, nil
	})
	assert.ErrorIs(t, err, auctions.ErrAuctionNotFound)
}

func TestMemoryStore_ReadReturnsCopies(t *testing.T) {
	s := NewMemoryStore(fastRetries(3))
	a := seedAuction(t, s)

	got, err := s.Read(context.Background(), a.ID)
	require.NoError(t, err)
	got.Bids["x"] = auctions.Bid{}
	got.BidCount = 99

	again, err := s.Read(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Bids)
	assert.Equal(t, 0, again.BidCount)
}

func TestMemoryStore_WriteOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fastRetries(3))
	a := seedAuction(t, s)

	scheduled := auctions.StatusScheduled
	ended := auctions.StatusEnded
	earlier := a.EndDate.Add(-time.Hour)
	later := a.EndDate.Add(time.Hour)

	require.NoError(t, s.Write(ctx, a.ID, auctions.Patch{Status: &scheduled, EndDate: &earlier}))
	got, _ := s.Read(ctx, a.ID)
	assert.Equal(t, auctions.StatusActive, got.Status)
	assert.True(t, got.EndDate.Equal(a.EndDate))

	require.NoError(t, s.Write(ctx, a.ID, auctions.Patch{Status: &ended, EndDate: &later}))
	got, _ = s.Read(ctx, a.ID)
	assert.Equal(t, auctions.StatusEnded, got.Status)
	assert.True(t, got.EndDate.Equal(later))

	// Writing to a deleted record does not resurrect it
	require.NoError(t, s.Delete(ctx, a.ID))
	require.NoError(t, s.Write(ctx, a.ID, auctions.Patch{Status: &ended}))
	_, err := s.Read(ctx, a.ID)
	assert.ErrorIs(t, err, auctions.ErrAuctionNotFound)
}

func TestMemoryStore_TransactAbortWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fastRetries(3))
	a := seedAuction(t, s)
	abort := errors.New("not today")

	calls := 0
	_, err := s.Transact(ctx, a.ID, func(cur *auctions.Auction) (*auctions.Auction, error) {
		calls++
		cur.BidCount = 42
		return nil, abort
	})
	assert.ErrorIs(t, err, abort)
	assert.Equal(t, 1, calls, "aborts are not retried")

	got, _ := s.Read(ctx, a.ID)
	assert.Equal(t, 0, got.BidCount)
}

func TestMemoryStore_TransactRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fastRetries(5))
	a := seedAuction(t, s)

	calls := 0
	committed, err := s.Transact(ctx, a.ID, func(cur *auctions.Auction) (*auctions.Auction, error) {
		calls++
		if calls == 1 {
			// A competing writer commits while this attempt is in flight.
			_, err := s.Transact(ctx, a.ID, func(other *auctions.Auction) (*auctions.Auction, error) {
				other.BidCount = 10
				return other, nil
			})
			require.NoError(t, err)
		}
		cur.BidCount++
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 11, committed.BidCount, "second attempt saw the competing commit")
}

func TestMemoryStore_TransactExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fastRetries(2))
	a := seedAuction(t, s)

	calls := 0
	_, err := s.Transact(ctx, a.ID, func(cur *auctions.Auction) (*auctions.Auction, error) {
		calls++
		_, err := s.Transact(ctx, a.ID, func(other *auctions.Auction) (*auctions.Auction, error) {
			other.BidCount++
			return other, nil
		})
		require.NoError(t, err)
		return cur, nil
	})
	assert.ErrorIs(t, err, auctions.ErrNotCommitted)
	assert.Equal(t, 3, calls, "one attempt plus two retries")
}

func TestMemoryStore_ConcurrentTransactionsSerialize(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(RetryConfig{MaxRetries: 10000})
	a := seedAuction(t, s)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transact(ctx, a.ID, func(cur *auctions.Auction) (*auctions.Auction, error) {
				cur.BidCount++
				return cur, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Read(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, got.BidCount)
}

func TestMemoryStore_ReadAllAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fastRetries(3))
	first := seedAuction(t, s)
	seedAuction(t, s)

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, first.ID))
	require.NoError(t, s.Delete(ctx, first.ID), "delete is idempotent")

	all, err = s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
