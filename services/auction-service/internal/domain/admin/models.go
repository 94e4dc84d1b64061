package admin

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestStatus is the relational status of an auction request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestScheduled RequestStatus = "scheduled"
	RequestRejected  RequestStatus = "rejected"
	RequestCompleted RequestStatus = "completed"
)

// CascadeAdminNote is written on requests rejected because their artist was removed.
const CascadeAdminNote = "Auction cancelled: the artist account was removed."

// EventAuctionCancelled is the outbox event written per cancelled auction.
const EventAuctionCancelled = "auction.cancelled"

// AuctionRequest is an artist's request to auction a product. Approval turns it
// into a store record and links the two through AuctionID.
type AuctionRequest struct {
	ID                  uuid.UUID
	ArtistID            *uuid.UUID
	ProductID           *uuid.UUID
	StartingPrice       decimal.Decimal
	IncrementPercentage decimal.Decimal
	StartDate           time.Time
	EndDate             time.Time
	Status              RequestStatus
	AuctionID           *string
	AdminNote           *string
	AuctionRemovedAt    *time.Time
	NeedsAttentionAt    *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasAuction reports whether the request is linked to a store record.
func (r *AuctionRequest) HasAuction() bool {
	return r.AuctionID != nil && *r.AuctionID != ""
}

// Artist is the part of an artist profile the cascade needs.
type Artist struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// CascadeResult describes what the cascade did to an artist's requests.
type CascadeResult struct {
	// Cancelled requests were marked rejected; their store records still need removal.
	Cancelled []*AuctionRequest
	// Deleted holds the ids of hard-deleted request rows.
	Deleted []uuid.UUID
	// Unreachable holds auction ids whose store record could not be read.
	Unreachable []string
}

// ReconcileReport counts the outcomes of one reconciliation run.
type ReconcileReport struct {
	Scanned        int
	Removed        int
	AlreadyGone    int
	NeedsAttention int
	Failed         int
}

func (r *ReconcileReport) add(o ReconcileReport) {
	r.Scanned += o.Scanned
	r.Removed += o.Removed
	r.AlreadyGone += o.AlreadyGone
	r.NeedsAttention += o.NeedsAttention
	r.Failed += o.Failed
}

// RemoveArtistResult is returned by a committed artist removal.
type RemoveArtistResult struct {
	ArtistID          uuid.UUID
	CancelledAuctions int
	DeletedRequests   int
	Reconcile         ReconcileReport
}
