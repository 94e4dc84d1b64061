package auctions

import "time"

// Resolve derives the status an auction should have at now. It never mutates a;
// when a correction is due it returns a copy carrying the new status and true.
//
// A single call advances at most one step: scheduled becomes active once the start
// date is reached, otherwise an active auction becomes ended once the end date has
// passed. Nothing ever moves backwards.
func Resolve(a *Auction, now time.Time) (*Auction, bool) {
	switch {
	case a.Status == StatusScheduled && !now.Before(a.StartDate):
		return withStatus(a, StatusActive), true
	case a.Status == StatusActive && now.After(a.EndDate):
		return withStatus(a, StatusEnded), true
	default:
		return a, false
	}
}

// InitialStatus seeds the status of a freshly approved auction.
func InitialStatus(startDate, now time.Time) Status {
	if !now.Before(startDate) {
		return StatusActive
	}
	return StatusScheduled
}

func withStatus(a *Auction, s Status) *Auction {
	c := *a
	c.Status = s
	return &c
}
