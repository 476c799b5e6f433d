package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-engine/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the part of *amqp.Channel the transport uses
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPTransport publishes events to a topic exchange with the topic as routing key
type AMQPTransport struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// NewAMQPTransport dials RabbitMQ and declares a durable topic exchange
func NewAMQPTransport(url, exchange string) (*AMQPTransport, error) {
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
	return &AMQPTransport{conn: conn, ch: ch, exchange: exchange}, nil
}

// Name implements Transport
func (t *AMQPTransport) Name() string { return "amqp" }

// Deliver implements Transport
func (t *AMQPTransport) Deliver(ctx context.Context, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	err = t.ch.PublishWithContext(ctx, t.exchange, string(event.Topic), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    event.ID,
		Timestamp:    event.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", event.Topic, err)
	}
	return nil
}

// Close releases the channel and connection
func (t *AMQPTransport) Close() error {
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
