// Package redisfeed fans change events out across server instances over
// Redis pub/sub so every instance can push them to its own SSE clients.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/petmarket/escrow-hub/internal/domain/notification"
)

func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Publisher is the dispatcher-side sink.
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

func NewPublisher(client redis.UniversalClient, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Name() string { return "redis" }

func (p *Publisher) Publish(ctx context.Context, e *notification.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Subscriber relays events from the channel to a local sink.
type Subscriber struct {
	client  redis.UniversalClient
	channel string
	local   notification.Sink
	logger  zerolog.Logger
}

func NewSubscriber(client redis.UniversalClient, channel string, local notification.Sink, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With().Str("component", "redis_feed").Str("channel", channel).Logger(),
	}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info().Msg("relaying change events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.relay(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) relay(ctx context.Context, payload string) {
	var e notification.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		s.logger.Warn().Err(err).Msg("discarding malformed event")
		return
	}
	if err := s.local.Publish(ctx, &e); err != nil {
		s.logger.Warn().Err(err).Str("event_id", e.EventID.String()).Msg("local relay failed")
	}
}
