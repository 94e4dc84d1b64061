package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/floroz/atelier/pkg/auth"
)

// idleLimiterTTL is how long a bidder's bucket survives without traffic.
const idleLimiterTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BidLimiter throttles bid writes per authenticated user.
type BidLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

// NewBidLimiter allows perSecond sustained requests per user with the given burst.
// A non-positive rate disables limiting.
func NewBidLimiter(perSecond float64, burst int) *BidLimiter {
	if burst < 1 {
		burst = 1
	}
	return &BidLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether userID may make another bid request now.
func (l *BidLimiter) Allow(userID string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > idleLimiterTTL {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) > idleLimiterTTL {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Middleware must run after auth.RequireAuth.
func (l *BidLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := auth.GetUserID(c.Request().Context())
			if !ok {
				return next(c)
			}
			if !l.Allow(userID.String()) {
				return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "too many bid requests, slow down", Retryable: true})
			}
			return next(c)
		}
	}
}
