// Package events publishes notification events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RoutingKey is used for every sent-notification event.
const RoutingKey = "notification.sent"

// NotificationSent is emitted after a successful dispatch.
type NotificationSent struct {
	NotificationID string    `json:"notification_id"`
	TripID         string    `json:"trip_id"`
	UserID         string    `json:"user_id"`
	DelayHours     int       `json:"delay_hours"`
	ImprovementPct string    `json:"improvement_pct"`
	SentAt         time.Time `json:"sent_at"`
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	PublishNotification(ctx context.Context, evt NotificationSent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

// PublishNotification implements Publisher.
func (Nop) PublishNotification(context.Context, NotificationSent) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// AMQP publishes JSON events to a topic exchange.
type AMQP struct {
	url      string
	exchange string
	logger   zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQP dials the broker and declares the exchange.
func NewAMQP(url, exchange string, logger zerolog.Logger) (*AMQP, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	p := &AMQP{
		url:      url,
		exchange: exchange,
		logger:   logger.With().Str("component", "events").Logger(),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQP) connectLocked() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// PublishNotification implements Publisher. A closed connection is redialled
// once.
func (p *AMQP) PublishNotification(ctx context.Context, evt NotificationSent) error {
	body, err := Encode(evt)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connectLocked(); err != nil {
			return err
		}
		p.logger.Info().Msg("reconnected to broker")
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.NotificationID,
		Timestamp:    evt.SentAt,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish notification event: %w", err)
	}
	return nil
}

// Close implements Publisher.
func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

// Encode renders evt as the wire payload.
func Encode(evt NotificationSent) ([]byte, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return body, nil
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*AMQP)(nil)
)
