package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/floroz/atelier/pkg/auth"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/database"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/live"
	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
	"github.com/floroz/atelier/services/auction-service/internal/domain/bids"
	"github.com/floroz/atelier/services/auction-service/internal/metrics"
)

// CustomerDirectory resolves an authenticated user to their bidding profile.
type CustomerDirectory interface {
	GetCustomerByUserID(ctx context.Context, userID uuid.UUID) (*database.Customer, error)
}

// Handler serves the public auction and bidding API.
type Handler struct {
	engine    *bids.Engine
	queries   *auctions.QueryService
	customers CustomerDirectory
	hub       *live.Hub
	logger    logger.Logger
}

func NewHandler(engine *bids.Engine, queries *auctions.QueryService, customers CustomerDirectory, hub *live.Hub, log logger.Logger) *Handler {
	return &Handler{
		engine:    engine,
		queries:   queries,
		customers: customers,
		hub:       hub,
		logger:    log,
	}
}

// Register mounts the routes. Bid writes require a customer token and pass
// through the per-user limiter.
func (h *Handler) Register(e *echo.Echo, signer *auth.Signer, limiter *BidLimiter) {
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	a := e.Group("/auctions")
	a.GET("", h.GetAuctions)
	a.GET("/:id", h.GetAuctionDetails, auth.OptionalAuth(signer))
	a.GET("/:id/live", h.Live)
	a.GET("/product/:id", h.GetAuctionProduct)
	a.GET("/artist-product/:artistId", h.GetAuctionProductsByArtist)

	b := e.Group("/bids", auth.RequireAuth(signer), auth.RequireRole(auth.RoleCustomer), limiter.Middleware())
	b.POST("", h.PlaceBid)
	b.PUT("", h.UpdateBid)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetAuctions(c echo.Context) error {
	filter, err := parseListFilter(c)
	if err != nil {
		return h.writeError(c, err)
	}

	listings, err := h.queries.GetAuctions(c.Request().Context(), filter)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"auctions": listings})
}

func parseListFilter(c echo.Context) (auctions.ListFilter, error) {
	var filter auctions.ListFilter

	if raw := c.QueryParam("status"); raw != "" {
		status, err := auctions.ParseStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if raw := c.QueryParam("category"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errInvalidCategoryID
		}
		filter.CategoryID = &id
	}
	if raw := c.QueryParam("artist"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errInvalidArtistID
		}
		filter.ArtistID = &id
	}
	return filter, nil
}

func (h *Handler) GetAuctionDetails(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return h.writeError(c, errInvalidAuctionID)
	}

	// Follow status is only looked up for customers.
	var viewerID *uuid.UUID
	if claims, ok := auth.GetUserClaims(c.Request().Context()); ok && claims.HasRole(auth.RoleCustomer) {
		if parsed, err := claims.UserID(); err == nil {
			viewerID = &parsed
		}
	}

	details, err := h.queries.GetAuctionDetails(c.Request().Context(), id, viewerID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"auction": details})
}

func (h *Handler) GetAuctionProduct(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return h.writeError(c, errInvalidAuctionID)
	}

	product, err := h.queries.GetAuctionProduct(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *Handler) GetAuctionProductsByArtist(c echo.Context) error {
	artistID, err := uuid.Parse(c.Param("artistId"))
	if err != nil {
		return h.writeError(c, errInvalidArtistID)
	}

	result, err := h.queries.GetAuctionProductsByArtist(c.Request().Context(), artistID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Live upgrades to a websocket that streams committed bids for one auction.
func (h *Handler) Live(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.queries.GetAuctionDetails(c.Request().Context(), id, nil); err != nil {
		return h.writeError(c, err)
	}

	// The upgrader has already answered the client when this fails.
	if err := h.hub.ServeWS(c.Response(), c.Request(), id); err != nil {
		h.logger.Warn("Failed to open live feed", "auction_id", id, "error", err)
	}
	return nil
}

type placeBidRequest struct {
	AuctionID string          `json:"auctionId"`
	BidAmount decimal.Decimal `json:"bidAmount"`
}

type updateBidRequest struct {
	AuctionID    string          `json:"auctionId"`
	NewBidAmount decimal.Decimal `json:"newBidAmount"`
}

func (h *Handler) PlaceBid(c echo.Context) error {
	ctx := c.Request().Context()

	// 1. Bind
	var req placeBidRequest
	if err := c.Bind(&req); err != nil {
		return h.writeError(c, errInvalidBody)
	}
	if req.AuctionID == "" {
		return h.writeError(c, errInvalidAuctionID)
	}

	// 2. Resolve the bidder
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return h.writeError(c, errUnauthenticated)
	}
	customer, err := h.customers.GetCustomerByUserID(ctx, userID)
	if err != nil {
		return h.writeError(c, err)
	}

	// 3. Execute
	result, err := h.engine.PlaceBid(ctx, bids.PlaceBidCommand{
		AuctionID:    req.AuctionID,
		UserID:       userID,
		CustomerID:   customer.ID,
		CustomerName: customer.DisplayName,
		Amount:       req.BidAmount,
	})
	metrics.BidsTotal.WithLabelValues("place", outcome(err)).Inc()
	if err != nil {
		return h.writeError(c, err)
	}

	h.logger.Info("Bid placed", "auction_id", req.AuctionID, "user_id", userID, "amount", req.BidAmount)
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) UpdateBid(c echo.Context) error {
	ctx := c.Request().Context()

	var req updateBidRequest
	if err := c.Bind(&req); err != nil {
		return h.writeError(c, errInvalidBody)
	}
	if req.AuctionID == "" {
		return h.writeError(c, errInvalidAuctionID)
	}

	// Only customers hold bids.
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return h.writeError(c, errUnauthenticated)
	}
	if _, err := h.customers.GetCustomerByUserID(ctx, userID); err != nil {
		return h.writeError(c, err)
	}

	result, err := h.engine.UpdateBid(ctx, bids.UpdateBidCommand{
		AuctionID: req.AuctionID,
		UserID:    userID,
		Amount:    req.NewBidAmount,
	})
	metrics.BidsTotal.WithLabelValues("update", outcome(err)).Inc()
	if err != nil {
		return h.writeError(c, err)
	}

	h.logger.Info("Bid updated", "auction_id", req.AuctionID, "user_id", userID, "amount", req.NewBidAmount)
	return c.JSON(http.StatusOK, result)
}

func outcome(err error) string {
	var rejection *bids.RejectionError
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, bids.ErrBidNotCommitted):
		return "not_committed"
	case errors.As(err, &rejection):
		return "rejected"
	default:
		return "error"
	}
}
