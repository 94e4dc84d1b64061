package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/floroz/atelier/services/auction-service/internal/adapters/database"
	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
	"github.com/floroz/atelier/services/auction-service/internal/domain/bids"
)

var (
	errInvalidAuctionID  = errors.New("invalid auction id")
	errInvalidArtistID   = errors.New("invalid artist id")
	errInvalidCategoryID = errors.New("invalid category id")
	errInvalidBody       = errors.New("invalid request body")
	errNotCustomer       = errors.New("only customers can bid")
	errUnauthenticated   = errors.New("authentication required")
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Error       string `json:"error"`
	MinimumBid  string `json:"minimumBid,omitempty"`
	ExistingBid string `json:"existingBid,omitempty"`
	Retryable   bool   `json:"retryable,omitempty"`
}

// writeError maps domain errors to HTTP answers. Anything unclassified is logged
// and answered with a generic 500.
func (h *Handler) writeError(c echo.Context, err error) error {
	var rejection *bids.RejectionError

	switch {
	case errors.Is(err, bids.ErrBidNotCommitted):
		// A rejection found against fresher state still carries the new minimum.
		body := errorResponse{Error: bids.ErrBidNotCommitted.Error(), Retryable: true}
		if errors.As(err, &rejection) {
			withAmounts(&body, rejection)
		}
		return c.JSON(http.StatusBadRequest, body)

	case errors.As(err, &rejection):
		body := errorResponse{Error: rejection.Reason.Error()}
		withAmounts(&body, rejection)
		if errors.Is(err, bids.ErrNoExistingBid) {
			return c.JSON(http.StatusNotFound, body)
		}
		return c.JSON(http.StatusBadRequest, body)

	case errors.Is(err, bids.ErrNoExistingBid), auctions.IsNotFound(err):
		return c.JSON(http.StatusNotFound, errorResponse{Error: rootMessage(err)})

	case errors.Is(err, errUnauthenticated):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: errUnauthenticated.Error()})

	case errors.Is(err, database.ErrCustomerNotFound), errors.Is(err, errNotCustomer):
		return c.JSON(http.StatusForbidden, errorResponse{Error: errNotCustomer.Error()})

	case errors.Is(err, errInvalidAuctionID), errors.Is(err, errInvalidArtistID),
		errors.Is(err, errInvalidCategoryID), errors.Is(err, errInvalidBody), errors.Is(err, auctions.ErrInvalidStatus),
		errors.Is(err, bids.ErrInvalidBidAmount):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	h.logger.Error("Request failed",
		"method", c.Request().Method,
		"path", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		"error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func withAmounts(body *errorResponse, rejection *bids.RejectionError) {
	if rejection.MinimumBid != nil {
		body.MinimumBid = rejection.DisplayMinimum()
	}
	if rejection.ExistingBid != nil {
		body.ExistingBid = rejection.ExistingBid.StringFixed(2)
	}
}

// rootMessage strips wrapping context so clients see the sentinel text only.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		auctions.ErrAuctionNotFound,
		auctions.ErrProductNotFound,
		auctions.ErrNoAuctions,
		bids.ErrNoExistingBid,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
