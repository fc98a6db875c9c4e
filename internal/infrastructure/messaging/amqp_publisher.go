// Package messaging publishes domain events to RabbitMQ for downstream
// consumers (notifications, analytics). It implements the same Publisher
// port as the in-process bus, selected by configuration.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/calico-commerce/storefront/internal/domain/outbox"
	"github.com/calico-commerce/storefront/internal/observability"
)

type AMQPPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex // amqp channels are not safe for concurrent use
	ch       *amqp.Channel
	exchange string

	log      observability.Logger
	failures observability.Counter
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
// Event names ("order.created", "payment.captured") double as routing
// keys, so consumers bind with patterns like "order.*".
func NewAMQPPublisher(url, exchange string, tel observability.Telemetry) (*AMQPPublisher, error) {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("messaging: dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("messaging: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("messaging: declare exchange %q: %w", exchange, err)
	}
	return &AMQPPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		log:      tel.Logger().With(observability.F("component", "amqp_publisher")),
		failures: tel.Counter(observability.MEventPublishFailures),
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e outbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(e)
	if err != nil {
		p.failures.Add(1, observability.L("event", e.EventName()))
		return fmt.Errorf("messaging: encode %s: %w", e.EventName(), err)
	}

	p.mu.Lock()
	err = p.ch.Publish(p.exchange, e.EventName(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         e.EventName(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	p.mu.Unlock()

	if err != nil {
		p.failures.Add(1, observability.L("event", e.EventName()))
		return fmt.Errorf("messaging: publish %s: %w", e.EventName(), err)
	}
	p.log.Debug("event_published", observability.F("event", e.EventName()))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return fmt.Errorf("messaging: close channel: %w", err)
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("messaging: close connection: %w", err)
	}
	return nil
}
