package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	pkgevents "github.com/floroz/atelier/pkg/events"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/database"
	"github.com/floroz/atelier/services/auction-service/internal/domain/admin"
	"github.com/floroz/atelier/services/auction-service/internal/domain/bids"
	"github.com/floroz/atelier/services/auction-service/internal/metrics"
)

// NotificationsQueue is bound to every event that results in an email.
const NotificationsQueue = "auction_notifications"

var notificationRoutingKeys = []string{
	string(bids.EventBidPlaced),
	string(bids.EventBidUpdated),
	admin.EventAuctionCancelled,
}

// errMalformed marks deliveries that can never be processed.
var errMalformed = errors.New("malformed event")

// ContactDirectory resolves users to email addresses
type ContactDirectory interface {
	GetContact(ctx context.Context, userID uuid.UUID) (*database.Contact, error)
}

// NotificationConsumer turns auction events into emails. Email is best-effort:
// delivery failures are logged and the message is acknowledged.
type NotificationConsumer struct {
	conn     *amqp.Connection
	contacts ContactDirectory
	mailer   Mailer
	logger   logger.Logger
}

// NewNotificationConsumer creates a new notification consumer
func NewNotificationConsumer(conn *amqp.Connection, contacts ContactDirectory, mailer Mailer, log logger.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		conn:     conn,
		contacts: contacts,
		mailer:   mailer,
		logger:   log.With("component", "notification_consumer"),
	}
}

// Run starts the consumer loop
func (c *NotificationConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if setupErr := setupNotificationsQueue(ch); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	msgs, err := ch.Consume(
		NotificationsQueue, // queue
		"",                 // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for messages...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}

			err := c.Handle(ctx, d.RoutingKey, d.Body)
			switch {
			case errors.Is(err, errMalformed):
				c.logger.Error("Dropping malformed event", "routing_key", d.RoutingKey, "error", err)
				if nackErr := d.Nack(false, false); nackErr != nil {
					c.logger.Error("Failed to Nack message", "error", nackErr)
				}
			case err != nil:
				c.logger.Error("Failed to process event", "routing_key", d.RoutingKey, "error", err)
				// Requeue and retry
				if nackErr := d.Nack(false, true); nackErr != nil {
					c.logger.Error("Failed to Nack message (requeue)", "error", nackErr)
				}
			default:
				if ackErr := d.Ack(false); ackErr != nil {
					c.logger.Error("Failed to Ack message", "error", ackErr)
				}
			}
		}
	}
}

// Handle processes one delivery. It returns an error wrapping errMalformed for
// payloads that will never parse, and other errors for retryable failures.
func (c *NotificationConsumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case string(bids.EventBidPlaced), string(bids.EventBidUpdated):
		event, err := DecodeBidEvent(body)
		if err != nil {
			return fmt.Errorf("%w: %w", errMalformed, err)
		}
		return c.handleBid(ctx, event)
	case admin.EventAuctionCancelled:
		payload, err := pkgevents.DecodePayload(body)
		if err != nil {
			return fmt.Errorf("%w: %w", errMalformed, err)
		}
		f := payload.GetFields()
		to := f["artistEmail"].GetStringValue()
		if to == "" {
			return fmt.Errorf("%w: auction.cancelled without artistEmail", errMalformed)
		}
		c.send(ctx, to, "Your auction was cancelled", fmt.Sprintf(
			"Hello %s,\n\nAuction %s was cancelled because your artist account was removed.\n",
			f["artistName"].GetStringValue(), f["auctionId"].GetStringValue(),
		))
		return nil
	default:
		c.logger.Debug("Ignoring event", "routing_key", routingKey)
		return nil
	}
}

func (c *NotificationConsumer) handleBid(ctx context.Context, event bids.BidEvent) error {
	// Resolve every recipient first: a requeue after an email went out would send it twice.
	bidder, err := c.contact(ctx, event.UserID)
	if err != nil {
		return err
	}
	var outbid *database.Contact
	if event.PreviousLeader != nil && *event.PreviousLeader != event.UserID {
		if outbid, err = c.contact(ctx, *event.PreviousLeader); err != nil {
			return err
		}
	}

	if bidder != nil {
		subject := "Your bid was placed"
		if event.Type == bids.EventBidUpdated {
			subject = "Your bid was updated"
		}
		body := fmt.Sprintf("Hello %s,\n\nYour bid of %s on auction %s is now the highest bid.\n",
			bidder.FullName, event.Amount.StringFixed(2), event.AuctionID)
		if event.Extended {
			body += fmt.Sprintf("The auction was extended and now ends at %s.\n", event.EndDate.UTC().Format("2006-01-02 15:04 MST"))
		}
		c.send(ctx, bidder.Email, subject, body)
	}
	if outbid != nil {
		c.send(ctx, outbid.Email, "You have been outbid", fmt.Sprintf(
			"Hello %s,\n\nSomeone bid %s on auction %s. Raise your bid to stay in the lead.\n",
			outbid.FullName, event.CurrentPrice.StringFixed(2), event.AuctionID,
		))
	}
	return nil
}

// contact returns nil without error for unknown users.
func (c *NotificationConsumer) contact(ctx context.Context, userID uuid.UUID) (*database.Contact, error) {
	contact, err := c.contacts.GetContact(ctx, userID)
	if errors.Is(err, database.ErrUserNotFound) {
		c.logger.Warn("No contact for user", "user_id", userID)
		return nil, nil
	}
	return contact, err
}

func (c *NotificationConsumer) send(ctx context.Context, to, subject, body string) {
	if err := c.mailer.Send(ctx, to, subject, body); err != nil {
		metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
		c.logger.Error("Failed to send email", "to", to, "subject", subject, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("email", "sent").Inc()
}

func setupNotificationsQueue(ch *amqp.Channel) error {
	if err := declareExchange(ch); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		NotificationsQueue, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return err
	}

	for _, key := range notificationRoutingKeys {
		if err := ch.QueueBind(q.Name, key, Exchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}
