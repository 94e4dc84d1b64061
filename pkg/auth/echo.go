package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireAuth rejects requests without a valid bearer token and stores the claims
// in the request context.
func RequireAuth(signer *Signer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := signer.Authenticate(c.Request().Header.Get(tokenHeader))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			setClaims(c, claims)
			return next(c)
		}
	}
}

// OptionalAuth attaches claims when a valid token is present and lets anonymous
// requests through untouched.
func OptionalAuth(signer *Signer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := signer.Authenticate(c.Request().Header.Get(tokenHeader))
			if err == nil {
				setClaims(c, claims)
			} else if !errors.Is(err, ErrMissingToken) {
				c.Logger().Debugf("ignoring invalid token on public route: %v", err)
			}
			return next(c)
		}
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := GetUserClaims(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingToken.Error())
			}
			if !claims.HasRole(roles...) {
				return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
			}
			return next(c)
		}
	}
}

func setClaims(c echo.Context, claims *Claims) {
	c.SetRequest(c.Request().WithContext(WithClaims(c.Request().Context(), claims)))
}
