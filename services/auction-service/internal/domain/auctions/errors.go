package auctions

import "fmt"

var (
	ErrAuctionNotFound = fmt.Errorf("auction not found")
	ErrProductNotFound = fmt.Errorf("product not found")
	ErrNoAuctions      = fmt.Errorf("no auctions found")
	ErrInvalidStatus   = fmt.Errorf("invalid auction status")

	// ErrNotCommitted is returned by Store.Transact when retries are exhausted
	// without a successful commit.
	ErrNotCommitted = fmt.Errorf("auction transaction not committed")
)
