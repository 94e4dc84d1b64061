package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/atelier/pkg/auth"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/pkg/testhelpers"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/database"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/live"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/store"
	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
	"github.com/floroz/atelier/services/auction-service/internal/domain/bids"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubCatalog struct {
	products  map[uuid.UUID]*auctions.Product
	following bool
}

func (c *stubCatalog) ProductIDsByCategory(_ context.Context, categoryID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, p := range c.products {
		if p.Category != nil && p.Category.ID == categoryID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *stubCatalog) ArtistSummaries(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]auctions.ArtistSummary, error) {
	out := make(map[uuid.UUID]auctions.ArtistSummary)
	for _, p := range c.products {
		out[p.Artist.ID] = *p.Artist
	}
	return out, nil
}

func (c *stubCatalog) ProductSummaries(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]auctions.ProductSummary, error) {
	out := make(map[uuid.UUID]auctions.ProductSummary)
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = auctions.ProductSummary{ID: p.ID, Title: p.Title}
		}
	}
	return out, nil
}

func (c *stubCatalog) GetProduct(_ context.Context, id uuid.UUID) (*auctions.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, auctions.ErrProductNotFound
	}
	return p, nil
}

func (c *stubCatalog) ProductsByArtist(_ context.Context, artistID uuid.UUID) ([]*auctions.Product, error) {
	var out []*auctions.Product
	for _, p := range c.products {
		if p.Artist.ID == artistID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *stubCatalog) IsFollowing(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return c.following, nil
}

type stubCustomers map[uuid.UUID]*database.Customer

func (s stubCustomers) GetCustomerByUserID(_ context.Context, userID uuid.UUID) (*database.Customer, error) {
	c, ok := s[userID]
	if !ok {
		return nil, database.ErrCustomerNotFound
	}
	return c, nil
}

type fixture struct {
	echo      *echo.Echo
	handler   *Handler
	store     *store.MemoryStore
	catalog   *stubCatalog
	customers stubCustomers
	signer    *testhelpers.TestSigner
	artistID  uuid.UUID
	productID uuid.UUID
}

func newFixture(t *testing.T, limiter *BidLimiter) *fixture {
	t.Helper()

	artistID := uuid.New()
	productID := uuid.New()
	catalog := &stubCatalog{products: map[uuid.UUID]*auctions.Product{
		productID: {
			ID:     productID,
			Title:  "Harbour at Dusk",
			Artist: &auctions.ArtistSummary{ID: artistID, Name: "Ines Varga"},
		},
	}}

	st := store.NewMemoryStore(store.RetryConfig{MaxRetries: 10})
	log := logger.NewNop()
	clock := func() time.Time { return testNow }
	engine := bids.NewEngine(st, bids.Notifiers{}, log).WithClock(clock)
	queries := auctions.NewQueryService(st, catalog, log).WithClock(clock)
	customers := stubCustomers{}

	if limiter == nil {
		limiter = NewBidLimiter(0, 0)
	}

	f := &fixture{
		echo:      echo.New(),
		store:     st,
		catalog:   catalog,
		customers: customers,
		signer:    testhelpers.NewTestSigner(t),
		artistID:  artistID,
		productID: productID,
	}
	f.handler = NewHandler(engine, queries, customers, live.NewHub(nil, log), log)
	f.handler.Register(f.echo, f.signer.Signer, limiter)
	return f
}

// seedAuction stores an active 50 / 10% auction ending in an hour.
func (f *fixture) seedAuction(t *testing.T) string {
	t.Helper()
	a := &auctions.Auction{
		ProductID:           f.productID,
		ArtistID:            f.artistID,
		RequestID:           uuid.New(),
		StartingPrice:       decimal.NewFromInt(50),
		CurrentPrice:        decimal.NewFromInt(50),
		IncrementPercentage: decimal.NewFromInt(10),
		Status:              auctions.StatusActive,
		StartDate:           testNow.Add(-time.Hour),
		EndDate:             testNow.Add(time.Hour),
		CreatedAt:           testNow.Add(-2 * time.Hour),
		Bids:                map[string]auctions.Bid{},
	}
	id, err := f.store.Create(context.Background(), a)
	require.NoError(t, err)
	return id
}

func (f *fixture) customer() uuid.UUID {
	userID := uuid.New()
	f.customers[userID] = &database.Customer{ID: uuid.New(), UserID: userID, DisplayName: "collector"}
	return userID
}

func (f *fixture) do(t *testing.T, method, path, authHeader, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func bidBody(auctionID, field, amount string) string {
	return fmt.Sprintf(`{"auctionId":%q,%q:%s}`, auctionID, field, amount)
}

func assertDecimal(t *testing.T, want string, got any) {
	t.Helper()
	s, ok := got.(string)
	require.True(t, ok, "expected decimal string, got %T", got)
	assert.True(t, decimal.RequireFromString(want).Equal(decimal.RequireFromString(s)), "want %s, got %s", want, s)
}

func TestGetAuctions(t *testing.T) {
	f := newFixture(t, nil)
	f.seedAuction(t)
	f.seedAuction(t)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantCount int
	}{
		{name: "all", query: "", wantCode: http.StatusOK, wantCount: 2},
		{name: "by status", query: "?status=active", wantCode: http.StatusOK, wantCount: 2},
		{name: "status without matches", query: "?status=ended", wantCode: http.StatusOK, wantCount: 0},
		{name: "by artist", query: "?artist=" + f.artistID.String(), wantCode: http.StatusOK, wantCount: 2},
		{name: "unknown status", query: "?status=paused", wantCode: http.StatusBadRequest},
		{name: "malformed category", query: "?category=abc", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodGet, "/auctions"+tt.query, "", "")
			require.Equal(t, tt.wantCode, code)
			if tt.wantCode != http.StatusOK {
				assert.NotEmpty(t, body["error"])
				return
			}
			list, ok := body["auctions"].([]any)
			require.True(t, ok)
			assert.Len(t, list, tt.wantCount)
		})
	}
}

func TestGetAuctionDetails(t *testing.T) {
	f := newFixture(t, nil)
	id := f.seedAuction(t)

	t.Run("anonymous", func(t *testing.T) {
		code, body := f.do(t, http.MethodGet, "/auctions/"+id, "", "")
		require.Equal(t, http.StatusOK, code)

		auction := body["auction"].(map[string]any)
		assert.Equal(t, id, auction["id"])
		assert.Equal(t, false, auction["isEnded"])
		assert.Equal(t, float64(time.Hour.Milliseconds()), auction["timeRemaining"])
		assert.Equal(t, false, auction["isFollowingArtist"])
	})

	t.Run("customer sees follow status", func(t *testing.T) {
		f.catalog.following = true
		defer func() { f.catalog.following = false }()

		code, body := f.do(t, http.MethodGet, "/auctions/"+id, f.signer.Bearer(uuid.New(), auth.RoleCustomer), "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["auction"].(map[string]any)["isFollowingArtist"])
	})

	t.Run("artist does not get follow lookup", func(t *testing.T) {
		f.catalog.following = true
		defer func() { f.catalog.following = false }()

		code, body := f.do(t, http.MethodGet, "/auctions/"+id, f.signer.Bearer(uuid.New(), auth.RoleArtist), "")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, false, body["auction"].(map[string]any)["isFollowingArtist"])
	})

	t.Run("not found", func(t *testing.T) {
		code, body := f.do(t, http.MethodGet, "/auctions/missing", "", "")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, auctions.ErrAuctionNotFound.Error(), body["error"])
	})
}

func TestGetAuctionProduct(t *testing.T) {
	f := newFixture(t, nil)
	id := f.seedAuction(t)

	code, body := f.do(t, http.MethodGet, "/auctions/product/"+id, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Harbour at Dusk", body["product"].(map[string]any)["title"])
	assert.Nil(t, body["highestBid"])

	code, _ = f.do(t, http.MethodGet, "/auctions/product/missing", "", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetAuctionProductsByArtist(t *testing.T) {
	f := newFixture(t, nil)
	f.seedAuction(t)

	tests := []struct {
		name     string
		artistID string
		wantCode int
	}{
		{name: "found", artistID: f.artistID.String(), wantCode: http.StatusOK},
		{name: "no auctions", artistID: uuid.NewString(), wantCode: http.StatusNotFound},
		{name: "malformed id", artistID: "not-a-uuid", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodGet, "/auctions/artist-product/"+tt.artistID, "", "")
			require.Equal(t, tt.wantCode, code)
			if code == http.StatusOK {
				assert.Len(t, body["auctions"], 1)
				assert.Len(t, body["products"], 1)
			}
		})
	}
}

func TestPlaceBid(t *testing.T) {
	f := newFixture(t, nil)
	id := f.seedAuction(t)
	bidder := f.customer()

	tests := []struct {
		name        string
		auth        string
		body        string
		wantCode    int
		wantError   string
		wantMinimum string
	}{
		{name: "anonymous", body: bidBody(id, "bidAmount", "70"), wantCode: http.StatusUnauthorized},
		{name: "artist token", auth: f.signer.Bearer(uuid.New(), auth.RoleArtist), body: bidBody(id, "bidAmount", "70"), wantCode: http.StatusForbidden},
		{name: "customer token without profile", auth: f.signer.Bearer(uuid.New(), auth.RoleCustomer), body: bidBody(id, "bidAmount", "70"), wantCode: http.StatusForbidden},
		{name: "missing auction id", auth: f.signer.Bearer(bidder, auth.RoleCustomer), body: `{"bidAmount":70}`, wantCode: http.StatusBadRequest},
		{name: "malformed body", auth: f.signer.Bearer(bidder, auth.RoleCustomer), body: `{"auctionId":`, wantCode: http.StatusBadRequest},
		{name: "unknown auction", auth: f.signer.Bearer(bidder, auth.RoleCustomer), body: bidBody("missing", "bidAmount", "70"), wantCode: http.StatusNotFound},
		{name: "zero amount", auth: f.signer.Bearer(bidder, auth.RoleCustomer), body: bidBody(id, "bidAmount", "0"), wantCode: http.StatusBadRequest},
		{
			name:        "below minimum",
			auth:        f.signer.Bearer(bidder, auth.RoleCustomer),
			body:        bidBody(id, "bidAmount", "64.99"),
			wantCode:    http.StatusBadRequest,
			wantError:   bids.ErrBidBelowMinimum.Error(),
			wantMinimum: "65.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/bids", tt.auth, tt.body)
			require.Equal(t, tt.wantCode, code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			}
			if tt.wantMinimum != "" {
				assert.Equal(t, tt.wantMinimum, body["minimumBid"])
			}
		})
	}

	t.Run("accepted", func(t *testing.T) {
		code, body := f.do(t, http.MethodPost, "/bids", f.signer.Bearer(bidder, auth.RoleCustomer), bidBody(id, "bidAmount", "65.00"))
		require.Equal(t, http.StatusOK, code)
		assertDecimal(t, "65", body["currentPrice"])
		assert.Equal(t, float64(1), body["bidCount"])
	})

	t.Run("second bid points to update", func(t *testing.T) {
		code, body := f.do(t, http.MethodPost, "/bids", f.signer.Bearer(bidder, auth.RoleCustomer), bidBody(id, "bidAmount", "90"))
		require.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, bids.ErrAlreadyBid.Error(), body["error"])
		assert.Equal(t, "65.00", body["existingBid"])
	})
}

func TestUpdateBid(t *testing.T) {
	f := newFixture(t, nil)
	id := f.seedAuction(t)
	first := f.customer()
	second := f.customer()

	code, _ := f.do(t, http.MethodPost, "/bids", f.signer.Bearer(first, auth.RoleCustomer), bidBody(id, "bidAmount", "65"))
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodPost, "/bids", f.signer.Bearer(second, auth.RoleCustomer), bidBody(id, "bidAmount", "75"))
	require.Equal(t, http.StatusOK, code)

	t.Run("leader cannot raise", func(t *testing.T) {
		code, body := f.do(t, http.MethodPut, "/bids", f.signer.Bearer(second, auth.RoleCustomer), bidBody(id, "newBidAmount", "100"))
		require.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, bids.ErrAlreadyHighestBidder.Error(), body["error"])
	})

	t.Run("no existing bid", func(t *testing.T) {
		code, body := f.do(t, http.MethodPut, "/bids", f.signer.Bearer(f.customer(), auth.RoleCustomer), bidBody(id, "newBidAmount", "100"))
		require.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, bids.ErrNoExistingBid.Error(), body["error"])
	})

	t.Run("below increment over the leader", func(t *testing.T) {
		code, body := f.do(t, http.MethodPut, "/bids", f.signer.Bearer(first, auth.RoleCustomer), bidBody(id, "newBidAmount", "79"))
		require.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "80.00", body["minimumBid"])
	})

	t.Run("accepted", func(t *testing.T) {
		code, body := f.do(t, http.MethodPut, "/bids", f.signer.Bearer(first, auth.RoleCustomer), bidBody(id, "newBidAmount", "80"))
		require.Equal(t, http.StatusOK, code)
		assertDecimal(t, "65", body["oldBidAmount"])
		assertDecimal(t, "80", body["newBidAmount"])
		assertDecimal(t, "80", body["currentPrice"])
		assert.NotEmpty(t, body["bidId"])
	})

	stored, err := f.store.Read(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.BidCount)
	assert.Equal(t, first, *stored.LastBidder)
}

func TestBids_ClaimsWithoutUserIDAreUnauthenticated(t *testing.T) {
	f := newFixture(t, nil)
	id := f.seedAuction(t)
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "admin"}, Role: auth.RoleCustomer}

	for _, tt := range []struct {
		name   string
		method string
		body   string
		call   func(echo.Context) error
	}{
		{name: "place", method: http.MethodPost, body: bidBody(id, "bidAmount", "70"), call: f.handler.PlaceBid},
		{name: "update", method: http.MethodPut, body: bidBody(id, "newBidAmount", "70"), call: f.handler.UpdateBid},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/bids", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req = req.WithContext(auth.WithClaims(req.Context(), claims))
			rec := httptest.NewRecorder()

			require.NotPanics(t, func() {
				require.NoError(t, tt.call(f.echo.NewContext(req, rec)))
			})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestPlaceBid_RateLimited(t *testing.T) {
	f := newFixture(t, NewBidLimiter(0.001, 1))
	id := f.seedAuction(t)
	bidder := f.customer()
	header := f.signer.Bearer(bidder, auth.RoleCustomer)

	code, _ := f.do(t, http.MethodPost, "/bids", header, bidBody(id, "bidAmount", "65"))
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodPost, "/bids", header, bidBody(id, "bidAmount", "70"))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, true, body["retryable"])

	// Another bidder has their own bucket.
	code, _ = f.do(t, http.MethodPost, "/bids", f.signer.Bearer(f.customer(), auth.RoleCustomer), bidBody(id, "bidAmount", "75"))
	assert.Equal(t, http.StatusOK, code)
}

func TestWriteError(t *testing.T) {
	f := newFixture(t, nil)
	minimum := decimal.RequireFromString("75.5")

	tests := []struct {
		name          string
		err           error
		wantCode      int
		wantError     string
		wantMinimum   string
		wantRetryable bool
	}{
		{
			name:          "lost race carries fresh minimum",
			err:           fmt.Errorf("%w: %w", bids.ErrBidNotCommitted, &bids.RejectionError{Reason: bids.ErrBidTooLow, MinimumBid: &minimum}),
			wantCode:      http.StatusBadRequest,
			wantError:     bids.ErrBidNotCommitted.Error(),
			wantMinimum:   "75.50",
			wantRetryable: true,
		},
		{
			name:        "sub-cent minimum is shown rounded up",
			err:         &bids.RejectionError{Reason: bids.ErrBidBelowMinimum, MinimumBid: decimalPtr("36.663")},
			wantCode:    http.StatusBadRequest,
			wantError:   bids.ErrBidBelowMinimum.Error(),
			wantMinimum: "36.67",
		},
		{
			name:          "retries exhausted",
			err:           bids.ErrBidNotCommitted,
			wantCode:      http.StatusBadRequest,
			wantError:     bids.ErrBidNotCommitted.Error(),
			wantRetryable: true,
		},
		{
			name:      "wrapped not found",
			err:       fmt.Errorf("failed to load: %w", auctions.ErrProductNotFound),
			wantCode:  http.StatusNotFound,
			wantError: auctions.ErrProductNotFound.Error(),
		},
		{
			name:      "unknown failure stays generic",
			err:       errors.New("redis: connection refused"),
			wantCode:  http.StatusInternalServerError,
			wantError: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := f.echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, f.handler.writeError(c, tt.err))
			assert.Equal(t, tt.wantCode, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.Equal(t, tt.wantMinimum, body.MinimumBid)
			assert.Equal(t, tt.wantRetryable, body.Retryable)
		})
	}
}

func TestBidLimiter_EvictsIdleBuckets(t *testing.T) {
	now := testNow
	l := NewBidLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	now = now.Add(idleLimiterTTL + time.Minute)
	assert.True(t, l.Allow("b"))
	assert.NotContains(t, l.buckets, "a")
	assert.True(t, l.Allow("a"))
}

func TestLive_UnknownAuction(t *testing.T) {
	f := newFixture(t, nil)

	code, body := f.do(t, http.MethodGet, "/auctions/missing/live", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, auctions.ErrAuctionNotFound.Error(), body["error"])
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
