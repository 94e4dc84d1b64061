package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/floroz/atelier/pkg/concurrency"
	pkgevents "github.com/floroz/atelier/pkg/events"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/domain/bids"
	"github.com/floroz/atelier/services/auction-service/internal/metrics"
)

const defaultDispatchTimeout = 5 * time.Second

// Broadcaster pushes a JSON bid event to live viewers of one auction.
type Broadcaster interface {
	Broadcast(ctx context.Context, auctionID string, payload []byte) error
}

// Dispatcher implements bids.Notifier. Events are handed to a bounded worker
// pool and published to the broker and to live viewers; when the pool is full
// the event is dropped and counted.
type Dispatcher struct {
	pool        *concurrency.WorkerPool
	publisher   pkgevents.EventPublisher
	broadcaster Broadcaster
	logger      logger.Logger
	timeout     time.Duration
}

// NewDispatcher creates a dispatcher. publisher or broadcaster may be nil.
func NewDispatcher(pool *concurrency.WorkerPool, publisher pkgevents.EventPublisher, broadcaster Broadcaster, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		pool:        pool,
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      log.With("component", "bid_dispatcher"),
		timeout:     defaultDispatchTimeout,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, event bids.BidEvent) {
	// The request context ends with the response; keep its values only.
	ctx = context.WithoutCancel(ctx)

	if err := d.pool.Submit(func() { d.dispatch(ctx, event) }); err != nil {
		metrics.NotificationsTotal.WithLabelValues("pool", "dropped").Inc()
		d.logger.Warn("Dropping bid notification", "auction_id", event.AuctionID, "bid_id", event.BidID, "error", err)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event bids.BidEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.publisher != nil {
		d.publish(ctx, event)
	}
	if d.broadcaster != nil {
		d.broadcast(ctx, event)
	}
}

func (d *Dispatcher) publish(ctx context.Context, event bids.BidEvent) {
	body, err := EncodeBidEvent(event)
	if err != nil {
		d.logger.Error("Failed to encode bid event", "bid_id", event.BidID, "error", err)
		metrics.NotificationsTotal.WithLabelValues("broker", "error").Inc()
		return
	}
	if err := d.publisher.Publish(ctx, Exchange, string(event.Type), body); err != nil {
		d.logger.Error("Failed to publish bid event", "bid_id", event.BidID, "error", err)
		metrics.NotificationsTotal.WithLabelValues("broker", "error").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues("broker", "sent").Inc()
}

func (d *Dispatcher) broadcast(ctx context.Context, event bids.BidEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("Failed to marshal live event", "bid_id", event.BidID, "error", err)
		return
	}
	if err := d.broadcaster.Broadcast(ctx, event.AuctionID, payload); err != nil {
		d.logger.Warn("Failed to broadcast bid event", "auction_id", event.AuctionID, "error", err)
		metrics.NotificationsTotal.WithLabelValues("live", "error").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues("live", "sent").Inc()
}
