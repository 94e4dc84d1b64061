package events

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/floroz/atelier/pkg/logger"
)

const (
	liveChannelPrefix  = "auction:"
	liveChannelSuffix  = ":live"
	liveChannelPattern = liveChannelPrefix + "*" + liveChannelSuffix
)

// LiveChannel is the pub/sub channel carrying one auction's bid events.
func LiveChannel(auctionID string) string {
	return liveChannelPrefix + auctionID + liveChannelSuffix
}

func auctionIDFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, liveChannelPrefix) || !strings.HasSuffix(channel, liveChannelSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(channel, liveChannelPrefix), liveChannelSuffix)
	return id, id != ""
}

// RedisBroadcaster publishes live events so every API replica can forward them
// to its own websocket viewers.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, auctionID string, payload []byte) error {
	return b.client.Publish(ctx, LiveChannel(auctionID), payload).Err()
}

// LiveHandler receives one live event.
type LiveHandler func(auctionID string, payload []byte)

// RedisLiveSubscriber listens on every auction's live channel.
type RedisLiveSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisLiveSubscriber(client *redis.Client, log logger.Logger) *RedisLiveSubscriber {
	return &RedisLiveSubscriber{
		client: client,
		log:    log.With("component", "live_subscriber"),
	}
}

// Run blocks until ctx is cancelled.
func (s *RedisLiveSubscriber) Run(ctx context.Context, handler LiveHandler) error {
	pubsub := s.client.PSubscribe(ctx, liveChannelPattern)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting readiness
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()

	s.log.Info("Subscribed to live auction events")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			auctionID, valid := auctionIDFromChannel(msg.Channel)
			if !valid {
				s.log.Warn("Ignoring message on unexpected channel", "channel", msg.Channel)
				continue
			}
			handler(auctionID, []byte(msg.Payload))

		case <-ctx.Done():
			s.log.Info("Live subscriber stopped")
			return ctx.Err()
		}
	}
}
