package auth

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

type contextKey string

const (
	tokenHeader              = "Authorization"
	tokenPrefix              = "Bearer "
	UserClaimsKey contextKey = "user_claims"
	UserIDKey     contextKey = "user_id"
)

var (
	ErrMissingToken   = errors.New("missing authorization header")
	ErrMalformedToken = errors.New("invalid authorization header format")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrForbidden      = errors.New("insufficient role")
)

// Authenticate extracts and validates the bearer token from an Authorization header value.
func (s *Signer) Authenticate(header string) (*Claims, error) {
	if header == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(header, tokenPrefix) {
		return nil, ErrMalformedToken
	}
	claims, err := s.ValidateToken(strings.TrimPrefix(header, tokenPrefix))
	if err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewAuthInterceptor creates a ConnectRPC interceptor that requires a valid token
// carrying one of the given roles. No roles means any authenticated caller.
func NewAuthInterceptor(signer *Signer, roles ...Role) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			claims, err := signer.Authenticate(req.Header().Get(tokenHeader))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			if len(roles) > 0 && !claims.HasRole(roles...) {
				return nil, connect.NewError(connect.CodePermissionDenied, ErrForbidden)
			}

			return next(WithClaims(ctx, claims), req)
		}
	}
}

// WithClaims injects the caller identity into the context. The user id is only
// set when the subject is a valid UUID.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, UserClaimsKey, claims)
	if id, err := claims.UserID(); err == nil {
		ctx = context.WithValue(ctx, UserIDKey, id)
	}
	return ctx
}

// GetUserClaims retrieves the full claims from the context.
func GetUserClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*Claims)
	return claims, ok
}

// GetUserID retrieves the caller id placed by the auth middleware.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return id, ok
}
