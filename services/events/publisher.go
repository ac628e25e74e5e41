package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"carelink/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Publisher delivers committed session facts. Implementations must not block
// for long; callers publish after the state change is already stored.
type Publisher interface {
	Publish(ctx context.Context, evt models.SessionEvent) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt models.SessionEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher only writes events to the log.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, evt models.SessionEvent) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Session event",
		zap.String("type", string(evt.Type)),
		zap.String("bookingID", evt.BookingID),
		zap.String("requestID", evt.RequestID),
		zap.String("actorID", evt.ActorID),
		zap.String("status", evt.Status))
	return nil
}

// RedisChannel is the pub/sub channel RedisPublisher writes to.
const RedisChannel = "sessions:events"

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, channel: RedisChannel}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt models.SessionEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", evt.Type, err)
	}
	return nil
}
