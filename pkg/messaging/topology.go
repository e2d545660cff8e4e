package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
)

// Topology describes one consumer's queue trio: the main queue bound to
// the event types it handles, a TTL retry queue that dead-letters back to
// the exchange under the main queue's name, and a terminal DLQ.
type Topology struct {
	QueueName    string
	ConsumerName string
	RoutingKeys  []string
}

// RetryQueueName is the delay queue paired with the main queue.
func (t Topology) RetryQueueName() string {
	return t.QueueName + ".retry"
}

// DLQName is the terminal parking queue for poison messages.
func (t Topology) DLQName() string {
	return t.QueueName + ".dlq"
}

// Declare sets up the exchange, queues and bindings on the channel.
// Declarations are idempotent so every service declares its own topology
// at startup.
func Declare(ch *amqp.Channel, cfg config.RabbitConfig, inbox config.InboxConfig, t Topology) error {
	exchange := cfg.ExchangeName

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	if _, err := ch.QueueDeclare(
		t.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declaring queue %s: %w", t.QueueName, err)
	}

	for _, key := range t.RoutingKeys {
		if err := ch.QueueBind(t.QueueName, key, exchange, false, nil); err != nil {
			return fmt.Errorf("binding %s to %s: %w", t.QueueName, key, err)
		}
	}
	// The retry queue dead-letters back to the exchange with the main
	// queue's name as routing key; this binding routes it home.
	if err := ch.QueueBind(t.QueueName, t.QueueName, exchange, false, nil); err != nil {
		return fmt.Errorf("self-binding %s: %w", t.QueueName, err)
	}

	retryArgs := amqp.Table{
		"x-message-ttl":             inbox.RetryDelay.Milliseconds(),
		"x-dead-letter-exchange":    exchange,
		"x-dead-letter-routing-key": t.QueueName,
	}
	if _, err := ch.QueueDeclare(
		t.RetryQueueName(),
		true,
		false,
		false,
		false,
		retryArgs,
	); err != nil {
		return fmt.Errorf("declaring retry queue %s: %w", t.RetryQueueName(), err)
	}

	if _, err := ch.QueueDeclare(
		t.DLQName(),
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declaring dlq %s: %w", t.DLQName(), err)
	}

	return nil
}
