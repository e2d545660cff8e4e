package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
)

// Publisher sends event envelopes to the platform exchange with the
// event type as routing key.
type Publisher struct {
	conn     *Connection
	exchange string
}

// EnvelopePublisher is the surface the outbox loop depends on.
type EnvelopePublisher interface {
	PublishEnvelope(ctx context.Context, env EventEnvelope) error
}

// NewPublisher builds a publisher over the shared connection.
func NewPublisher(conn *Connection, cfg config.RabbitConfig) *Publisher {
	return &Publisher{conn: conn, exchange: cfg.ExchangeName}
}

// PublishEnvelope writes the envelope as a persistent JSON message.
func (p *Publisher) PublishEnvelope(ctx context.Context, env EventEnvelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(
		ctx,
		p.exchange,
		env.EventType, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.EventID.String(),
			CorrelationId: env.CorrelationID,
			Timestamp:     env.OccurredAt,
			Body:          body,
		},
	); err != nil {
		return fmt.Errorf("publishing %s: %w", env.EventType, err)
	}
	return nil
}
