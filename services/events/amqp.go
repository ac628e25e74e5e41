package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"carelink/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes events to a topic exchange with the event type as
// routing key, e.g. "booking.confirmed".
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt models.SessionEvent) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, string(evt.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    evt.BookingID + ":" + string(evt.Type) + ":" + evt.RequestID,
		Body:         b,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", evt.Type, err)
	}
	return nil
}

// Ping reports whether the broker connection is still open.
func (p *AMQPPublisher) Ping(context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
