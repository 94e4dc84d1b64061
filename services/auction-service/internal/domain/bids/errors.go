package bids

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Validation and state errors
var (
	ErrInvalidBidAmount     = fmt.Errorf("bid amount must be positive")
	ErrAuctionNotActive     = fmt.Errorf("auction is not active")
	ErrAuctionEnded         = fmt.Errorf("auction has ended")
	ErrAlreadyBid           = fmt.Errorf("you have already placed a bid on this auction, update it instead")
	ErrAlreadyHighestBidder = fmt.Errorf("you are already the highest bidder")
	ErrBidTooLow            = fmt.Errorf("bid amount must be higher than the current price")
	ErrBidBelowMinimum      = fmt.Errorf("bid amount is below the minimum bid")
	ErrNoExistingBid        = fmt.Errorf("no existing bid found for this auction")

	// ErrBidNotCommitted means the store transaction aborted or ran out of retries.
	// The caller should retry against fresh state.
	ErrBidNotCommitted = fmt.Errorf("bid could not be placed, please try again")
)

// RejectionError is a business-rule rejection. It carries the amounts a client
// needs to correct the bid without another round trip.
type RejectionError struct {
	Reason      error
	MinimumBid  *decimal.Decimal
	ExistingBid *decimal.Decimal
}

func (e *RejectionError) Error() string {
	switch {
	case e.MinimumBid != nil:
		return fmt.Sprintf("%s (minimum bid %s)", e.Reason, e.DisplayMinimum())
	case e.ExistingBid != nil:
		return fmt.Sprintf("%s (existing bid %s)", e.Reason, e.ExistingBid.StringFixed(2))
	default:
		return e.Reason.Error()
	}
}

// DisplayMinimum renders the minimum in cents, rounded up so that bidding the
// shown value always clears the exact minimum.
func (e *RejectionError) DisplayMinimum() string {
	if e.MinimumBid == nil {
		return ""
	}
	return e.MinimumBid.RoundCeil(2).StringFixed(2)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

func reject(reason error) *RejectionError {
	return &RejectionError{Reason: reason}
}

func rejectWithMinimum(reason error, minimum decimal.Decimal) *RejectionError {
	return &RejectionError{Reason: reason, MinimumBid: &minimum}
}
