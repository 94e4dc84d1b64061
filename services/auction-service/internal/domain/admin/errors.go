package admin

import "fmt"

var (
	ErrArtistNotFound    = fmt.Errorf("artist not found")
	ErrRequestNotFound   = fmt.Errorf("auction request not found")
	ErrRequestNotPending = fmt.Errorf("auction request is not pending")
	ErrRequestOrphaned   = fmt.Errorf("auction request has no product or artist")
	ErrInvalidSchedule   = fmt.Errorf("auction request end date must be after its start date and in the future")

	// ErrActiveAuctions aborts an artist removal. Nothing has been mutated when it is returned.
	ErrActiveAuctions = fmt.Errorf("cannot remove artist with active auctions")
)
