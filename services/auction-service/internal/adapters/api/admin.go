package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/atelier/pkg/auth"
	pkgdb "github.com/floroz/atelier/pkg/database"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/domain/admin"
	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
)

const (
	AdminServiceName = "atelier.admin.v1.AdminService"

	RemoveArtistProcedure          = "/" + AdminServiceName + "/RemoveArtist"
	ApproveAuctionRequestProcedure = "/" + AdminServiceName + "/ApproveAuctionRequest"
	ReconcileAuctionsProcedure     = "/" + AdminServiceName + "/ReconcileAuctions"
)

// AdminOperations is the admin domain service as seen by the RPC layer.
type AdminOperations interface {
	RemoveArtist(ctx context.Context, artistID uuid.UUID) (*admin.RemoveArtistResult, error)
	ApproveAuctionRequest(ctx context.Context, requestID uuid.UUID) (*auctions.Auction, error)
	Reconcile(ctx context.Context) (*admin.ReconcileReport, error)
}

// AdminHandler exposes back-office operations over Connect. Messages are
// google.protobuf.Struct so clients need no generated stubs.
type AdminHandler struct {
	ops    AdminOperations
	logger logger.Logger
}

func NewAdminHandler(ops AdminOperations, log logger.Logger) *AdminHandler {
	return &AdminHandler{ops: ops, logger: log}
}

// NewAdminServiceHandler returns the mount path and handler for the admin
// service. Every procedure requires an admin token.
func NewAdminServiceHandler(h *AdminHandler, signer *auth.Signer) (string, http.Handler) {
	opts := connect.WithInterceptors(auth.NewAuthInterceptor(signer, auth.RoleAdmin))

	mux := http.NewServeMux()
	mux.Handle(RemoveArtistProcedure, connect.NewUnaryHandler(RemoveArtistProcedure, h.RemoveArtist, opts))
	mux.Handle(ApproveAuctionRequestProcedure, connect.NewUnaryHandler(ApproveAuctionRequestProcedure, h.ApproveAuctionRequest, opts))
	mux.Handle(ReconcileAuctionsProcedure, connect.NewUnaryHandler(ReconcileAuctionsProcedure, h.ReconcileAuctions, opts))
	return "/" + AdminServiceName + "/", mux
}

func (h *AdminHandler) RemoveArtist(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	artistID, err := uuidField(req.Msg, "artistId")
	if err != nil {
		return nil, err
	}

	result, err := h.ops.RemoveArtist(ctx, artistID)
	if err != nil {
		return nil, h.connectError(err)
	}

	res, err := structpb.NewStruct(map[string]any{
		"artistId":          result.ArtistID.String(),
		"cancelledAuctions": result.CancelledAuctions,
		"deletedRequests":   result.DeletedRequests,
		"reconcile":         reportFields(result.Reconcile),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

func (h *AdminHandler) ApproveAuctionRequest(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	requestID, err := uuidField(req.Msg, "requestId")
	if err != nil {
		return nil, err
	}

	auction, err := h.ops.ApproveAuctionRequest(ctx, requestID)
	if err != nil {
		return nil, h.connectError(err)
	}

	res, err := structpb.NewStruct(map[string]any{
		"auctionId": auction.ID,
		"status":    auction.Status.String(),
		"startDate": auction.StartDate.UTC().Format(time.RFC3339),
		"endDate":   auction.EndDate.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

func (h *AdminHandler) ReconcileAuctions(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	report, err := h.ops.Reconcile(ctx)
	if err != nil {
		return nil, h.connectError(err)
	}

	res, err := structpb.NewStruct(reportFields(*report))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

func (h *AdminHandler) connectError(err error) error {
	switch {
	case errors.Is(err, admin.ErrActiveAuctions),
		errors.Is(err, admin.ErrRequestNotPending),
		errors.Is(err, admin.ErrRequestOrphaned):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, admin.ErrArtistNotFound), errors.Is(err, admin.ErrRequestNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, admin.ErrInvalidSchedule):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case pkgdb.IsLockTimeout(err):
		h.logger.Warn("Admin operation timed out waiting for a row lock", "error", err)
		return connect.NewError(connect.CodeAborted, errors.New("resource is busy, retry"))
	}

	h.logger.Error("Admin operation failed", "error", err)
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}

func uuidField(msg *structpb.Struct, name string) (uuid.UUID, error) {
	raw := msg.GetFields()[name].GetStringValue()
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid "+name))
	}
	return id, nil
}

func reportFields(r admin.ReconcileReport) map[string]any {
	return map[string]any{
		"scanned":        r.Scanned,
		"removed":        r.Removed,
		"alreadyGone":    r.AlreadyGone,
		"needsAttention": r.NeedsAttention,
		"failed":         r.Failed,
	}
}
