package store

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/floroz/atelier/services/auction-service/internal/domain/auctions"
)

// errConflict marks a commit that lost to a concurrent writer. It is the only
// error the retry policy handles; aborts from the transaction function and
// backend failures are returned immediately.
var errConflict = errors.New("concurrent modification")

// RetryConfig bounds the optimistic transaction loop.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the retry bound used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 25,
		BaseDelay:  2 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
	}
}

func newConflictExecutor(cfg RetryConfig) failsafe.Executor[*auctions.Auction] {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultRetryConfig()
	}

	builder := retrypolicy.NewBuilder[*auctions.Auction]().
		HandleErrors(errConflict).
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure()
	if cfg.BaseDelay > 0 && cfg.MaxDelay >= cfg.BaseDelay {
		builder = builder.WithBackoff(cfg.BaseDelay, cfg.MaxDelay).WithJitterFactor(0.2)
	}

	return failsafe.With[*auctions.Auction](builder.Build())
}

// runTransact drives one optimistic commit attempt per call to attempt until it
// succeeds, aborts, or the retry bound is reached.
func runTransact(ctx context.Context, exec failsafe.Executor[*auctions.Auction], attempt func() (*auctions.Auction, error)) (*auctions.Auction, error) {
	committed, err := exec.WithContext(ctx).Get(attempt)
	if errors.Is(err, errConflict) {
		return nil, auctions.ErrNotCommitted
	}
	if err != nil {
		return nil, err
	}
	return committed, nil
}
