package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/floroz/atelier/pkg/concurrency"
	pkgevents "github.com/floroz/atelier/pkg/events"
	"github.com/floroz/atelier/pkg/logger"
	"github.com/floroz/atelier/services/auction-service/internal/adapters/database"
	"github.com/floroz/atelier/services/auction-service/internal/domain/admin"
	"github.com/floroz/atelier/services/auction-service/internal/domain/bids"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func sampleEvent(previousLeader *uuid.UUID) bids.BidEvent {
	return bids.BidEvent{
		Type:           bids.EventBidPlaced,
		AuctionID:      "auction-1",
		ProductID:      uuid.New(),
		BidID:          "1773144000000_" + uuid.NewString(),
		UserID:         uuid.New(),
		CustomerName:   "Grace",
		Amount:         decimal.RequireFromString("65.00"),
		PreviousLeader: previousLeader,
		CurrentPrice:   decimal.RequireFromString("65.00"),
		BidCount:       2,
		EndDate:        testNow.Add(5 * time.Minute),
		Extended:       true,
		Timestamp:      testNow,
	}
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return m.Called(ctx, exchange, routingKey, body).Error(0)
}

type MockBroadcaster struct{ mock.Mock }

func (m *MockBroadcaster) Broadcast(ctx context.Context, auctionID string, payload []byte) error {
	return m.Called(ctx, auctionID, payload).Error(0)
}

type MockContacts struct{ mock.Mock }

func (m *MockContacts) GetContact(ctx context.Context, userID uuid.UUID) (*database.Contact, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.Contact), args.Error(1)
}

type sentMail struct{ to, subject, body string }

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return m.err
}

func (m *recordingMailer) all() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func TestBidEventCodec(t *testing.T) {
	leader := uuid.New()
	previous := decimal.RequireFromString("60")
	event := sampleEvent(&leader)
	event.Type = bids.EventBidUpdated
	event.PreviousAmount = &previous

	body, err := EncodeBidEvent(event)
	require.NoError(t, err)

	decoded, err := DecodeBidEvent(body)
	require.NoError(t, err)
	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, event.UserID, decoded.UserID)
	assert.True(t, decoded.Amount.Equal(event.Amount))
	assert.True(t, decoded.EndDate.Equal(event.EndDate))
	require.NotNil(t, decoded.PreviousLeader)
	assert.Equal(t, leader, *decoded.PreviousLeader)
	require.NotNil(t, decoded.PreviousAmount)
	assert.Equal(t, "60", decoded.PreviousAmount.String())

	t.Run("malformed", func(t *testing.T) {
		body, err := pkgevents.EncodePayload(map[string]any{"type": "bid.placed", "userId": "not-a-uuid"})
		require.NoError(t, err)
		_, err = DecodeBidEvent(body)
		assert.Error(t, err)
	})
}

func TestLiveChannel(t *testing.T) {
	id, ok := auctionIDFromChannel(LiveChannel("abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = auctionIDFromChannel("auction::live")
	assert.False(t, ok)
	_, ok = auctionIDFromChannel("other:abc")
	assert.False(t, ok)
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("from@example.com", "to@example.com", "Outbid", "line one\nline two"))
	assert.Contains(t, msg, "Subject: Outbid\r\n")
	assert.Contains(t, msg, "\r\n\r\nline one\r\nline two")
}

func TestDispatcher(t *testing.T) {
	newPool := func() *concurrency.WorkerPool {
		return concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "test", MaxWorkers: 2, MaxCapacity: 10, NonBlocking: true}, logger.NewNop())
	}

	t.Run("publishes to broker and live channel", func(t *testing.T) {
		pool := newPool()
		pub := new(MockPublisher)
		live := new(MockBroadcaster)
		event := sampleEvent(nil)

		pub.On("Publish", mock.Anything, Exchange, "bid.placed", mock.Anything).Return(nil)
		live.On("Broadcast", mock.Anything, "auction-1", mock.MatchedBy(func(payload []byte) bool {
			var decoded map[string]any
			return json.Unmarshal(payload, &decoded) == nil && decoded["currentPrice"] == "65"
		})).Return(nil)

		d := NewDispatcher(pool, pub, live, logger.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		d.Notify(ctx, event)
		cancel() // a finished request must not cancel delivery
		pool.Stop()

		pub.AssertExpectations(t)
		live.AssertExpectations(t)
	})

	t.Run("broker failure does not stop the live broadcast", func(t *testing.T) {
		pool := newPool()
		pub := new(MockPublisher)
		live := new(MockBroadcaster)
		pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
		live.On("Broadcast", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		NewDispatcher(pool, pub, live, logger.NewNop()).Notify(context.Background(), sampleEvent(nil))
		pool.Stop()

		live.AssertNumberOfCalls(t, "Broadcast", 1)
	})

	t.Run("nil sinks are skipped", func(t *testing.T) {
		pool := newPool()
		NewDispatcher(pool, nil, nil, logger.NewNop()).Notify(context.Background(), sampleEvent(nil))
		pool.Stop()
	})
}

func TestNotificationConsumer_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("emails bidder and outbid leader", func(t *testing.T) {
		leader := uuid.New()
		event := sampleEvent(&leader)
		contacts := new(MockContacts)
		mailer := &recordingMailer{}
		contacts.On("GetContact", mock.Anything, event.UserID).Return(&database.Contact{UserID: event.UserID, Email: "bidder@example.com", FullName: "Grace"}, nil)
		contacts.On("GetContact", mock.Anything, leader).Return(&database.Contact{UserID: leader, Email: "leader@example.com", FullName: "Alan"}, nil)

		body, err := EncodeBidEvent(event)
		require.NoError(t, err)
		require.NoError(t, NewNotificationConsumer(nil, contacts, mailer, logger.NewNop()).Handle(ctx, "bid.placed", body))

		sent := mailer.all()
		require.Len(t, sent, 2)
		assert.Equal(t, "bidder@example.com", sent[0].to)
		assert.Contains(t, sent[0].body, "65.00")
		assert.Contains(t, sent[0].body, "extended")
		assert.Equal(t, "leader@example.com", sent[1].to)
		assert.Equal(t, "You have been outbid", sent[1].subject)
	})

	t.Run("no outbid email without a different previous leader", func(t *testing.T) {
		event := sampleEvent(nil)
		event.PreviousLeader = &event.UserID
		contacts := new(MockContacts)
		mailer := &recordingMailer{}
		contacts.On("GetContact", mock.Anything, event.UserID).Return(&database.Contact{Email: "bidder@example.com"}, nil)

		body, err := EncodeBidEvent(event)
		require.NoError(t, err)
		require.NoError(t, NewNotificationConsumer(nil, contacts, mailer, logger.NewNop()).Handle(ctx, "bid.placed", body))
		assert.Len(t, mailer.all(), 1)
	})

	t.Run("unknown user and mail failures are swallowed", func(t *testing.T) {
		leader := uuid.New()
		event := sampleEvent(&leader)
		contacts := new(MockContacts)
		mailer := &recordingMailer{err: errors.New("smtp down")}
		contacts.On("GetContact", mock.Anything, event.UserID).Return(nil, database.ErrUserNotFound)
		contacts.On("GetContact", mock.Anything, leader).Return(&database.Contact{Email: "leader@example.com"}, nil)

		body, err := EncodeBidEvent(event)
		require.NoError(t, err)
		assert.NoError(t, NewNotificationConsumer(nil, contacts, mailer, logger.NewNop()).Handle(ctx, "bid.placed", body))
		assert.Len(t, mailer.all(), 1)
	})

	t.Run("directory outage is retryable", func(t *testing.T) {
		event := sampleEvent(nil)
		contacts := new(MockContacts)
		contacts.On("GetContact", mock.Anything, event.UserID).Return(nil, errors.New("connection reset"))

		body, err := EncodeBidEvent(event)
		require.NoError(t, err)
		err = NewNotificationConsumer(nil, contacts, &recordingMailer{}, logger.NewNop()).Handle(ctx, "bid.placed", body)
		require.Error(t, err)
		assert.NotErrorIs(t, err, errMalformed)
	})

	t.Run("leader lookup failure sends nothing before the requeue", func(t *testing.T) {
		leader := uuid.New()
		event := sampleEvent(&leader)
		contacts := new(MockContacts)
		mailer := &recordingMailer{}
		contacts.On("GetContact", mock.Anything, event.UserID).Return(&database.Contact{Email: "bidder@example.com"}, nil)
		contacts.On("GetContact", mock.Anything, leader).Return(nil, errors.New("connection reset"))

		body, err := EncodeBidEvent(event)
		require.NoError(t, err)
		err = NewNotificationConsumer(nil, contacts, mailer, logger.NewNop()).Handle(ctx, "bid.placed", body)
		require.Error(t, err)
		assert.Empty(t, mailer.all())
	})

	t.Run("malformed payload", func(t *testing.T) {
		err := NewNotificationConsumer(nil, new(MockContacts), &recordingMailer{}, logger.NewNop()).Handle(ctx, "bid.updated", []byte{0xff, 0x01})
		assert.ErrorIs(t, err, errMalformed)
	})

	t.Run("auction cancelled emails the artist", func(t *testing.T) {
		mailer := &recordingMailer{}
		body, err := pkgevents.EncodePayload(map[string]any{
			"auctionId":   "auction-9",
			"artistName":  "Ada",
			"artistEmail": "ada@example.com",
		})
		require.NoError(t, err)

		require.NoError(t, NewNotificationConsumer(nil, new(MockContacts), mailer, logger.NewNop()).Handle(ctx, admin.EventAuctionCancelled, body))
		sent := mailer.all()
		require.Len(t, sent, 1)
		assert.Equal(t, "ada@example.com", sent[0].to)
		assert.Contains(t, sent[0].body, "auction-9")
	})
}
