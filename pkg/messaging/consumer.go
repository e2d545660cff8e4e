package messaging

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
	"github.com/angelmondragon/ledgerpay-backend/pkg/db"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
	"github.com/angelmondragon/ledgerpay-backend/pkg/metrics"
)

// Retry bookkeeping headers carried on requeued and dead-lettered messages.
const (
	HeaderRetryCount = "x-retry-count"
	HeaderLastError  = "x-last-error"
	HeaderFinalError = "x-final-error"
)

const maxHeaderErrorLen = 400

// Handler processes one decoded event inside the transaction that also
// records the inbox row. Returning an error sends the message down the
// retry path.
type Handler func(ctx context.Context, tx *gorm.DB, env EventEnvelope) error

// InboxStore is the dedup ledger shared by all consumers.
type InboxStore interface {
	Seen(ctx context.Context, eventID uuid.UUID, consumer string) (bool, error)
	MarkProcessed(tx *gorm.DB, eventID uuid.UUID, consumer, eventType string) error
}

// copyPublisher republishes a delivery body to a named queue. Split out
// so the retry path is testable without a broker.
type copyPublisher interface {
	publishCopy(ctx context.Context, d amqp.Delivery, queue string, headers amqp.Table) error
}

type connCopyPublisher struct {
	conn *Connection
}

// publishCopy sends the original body straight to the named queue via
// the default exchange.
func (p connCopyPublisher) publishCopy(ctx context.Context, d amqp.Delivery, queue string, headers amqp.Table) error {
	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(
		ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:   d.ContentType,
			DeliveryMode:  amqp.Persistent,
			MessageId:     d.MessageId,
			CorrelationId: d.CorrelationId,
			Headers:       headers,
			Body:          d.Body,
		},
	)
}

// Consumer runs one queue's consume loop: decode, dedup through the
// inbox, dispatch to a handler, and route failures through the retry
// queue until the limit parks them on the DLQ.
type Consumer struct {
	conn     *Connection
	client   *db.Client
	inbox    InboxStore
	logg     *logger.Logger
	met      *metrics.ConsumerMetrics
	rabbit   config.RabbitConfig
	cfg      config.InboxConfig
	topo     Topology
	handlers map[string]Handler
	pub      copyPublisher
}

// NewConsumer assembles a consumer for the given topology.
func NewConsumer(
	conn *Connection,
	client *db.Client,
	inbox InboxStore,
	logg *logger.Logger,
	met *metrics.ConsumerMetrics,
	rabbit config.RabbitConfig,
	cfg config.InboxConfig,
	topo Topology,
	handlers map[string]Handler,
) *Consumer {
	return &Consumer{
		conn:     conn,
		client:   client,
		inbox:    inbox,
		logg:     logg,
		met:      met,
		rabbit:   rabbit,
		cfg:      cfg,
		topo:     topo,
		handlers: handlers,
		pub:      connCopyPublisher{conn: conn},
	}
}

// Run consumes until the context is canceled. A dropped channel is
// rebuilt after a short pause.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = c.logg.WithField(ctx, "consumer", c.topo.ConsumerName)
	for {
		if err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "consume loop ended, rebuilding")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return err
	}
	if err := Declare(ch, c.rabbit, c.cfg, c.topo); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		c.topo.QueueName,
		c.topo.ConsumerName,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.logg.Info(c.logg.WithField(ctx, "queue", c.topo.QueueName), "consuming")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.process(ctx, d)
		}
	}
}

// process handles one delivery. Every path ends in an ack: redelivery is
// driven by the retry queue, never by broker requeue.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	env, err := DecodeEnvelope(d.Body)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping malformed message")
		c.ack(ctx, d)
		return
	}

	ctx = c.logg.WithEventID(ctx, env.EventID.String())
	if env.CorrelationID != "" {
		ctx = c.logg.WithCorrelationID(ctx, env.CorrelationID)
	}

	seen, err := c.inbox.Seen(ctx, env.EventID, c.topo.ConsumerName)
	if err != nil {
		c.retryOrPark(ctx, d, env, err)
		return
	}
	if seen {
		c.met.IncDuplicate(c.topo.ConsumerName, env.EventType)
		c.logg.Debug(ctx, "duplicate message skipped")
		c.ack(ctx, d)
		return
	}

	handler, known := c.handlers[env.EventType]
	started := time.Now()
	err = c.client.WithTx(ctx, func(tx *gorm.DB) error {
		if known {
			if err := handler(ctx, tx, env); err != nil {
				return err
			}
		}
		// Unknown event types still get an inbox row so redeliveries
		// stay cheap.
		return c.inbox.MarkProcessed(tx, env.EventID, c.topo.ConsumerName, env.EventType)
	})
	c.met.ObserveHandler(c.topo.ConsumerName, env.EventType, time.Since(started))

	if err != nil {
		if db.IsUniqueViolation(err, "ux_inbox_event_consumer") {
			c.met.IncDuplicate(c.topo.ConsumerName, env.EventType)
			c.logg.Debug(ctx, "concurrent duplicate detected")
			c.ack(ctx, d)
			return
		}
		c.retryOrPark(ctx, d, env, err)
		return
	}

	if !known {
		c.logg.Warn(c.logg.WithField(ctx, "event_type", env.EventType), "no handler for event type")
	}
	c.met.IncProcessed(c.topo.ConsumerName, env.EventType)
	c.ack(ctx, d)
}

// retryOrPark republishes the original body to the retry queue with an
// incremented retry count, or parks it on the DLQ once the limit is hit.
func (c *Consumer) retryOrPark(ctx context.Context, d amqp.Delivery, env EventEnvelope, cause error) {
	retries := retryCount(d.Headers)
	errText := truncateError(cause)

	if retries < c.cfg.RetryLimit {
		headers := amqp.Table{
			HeaderRetryCount: strconv.Itoa(retries + 1),
			HeaderLastError:  errText,
		}
		if err := c.pub.publishCopy(ctx, d, c.topo.RetryQueueName(), headers); err != nil {
			c.logg.Error(ctx, "routing to retry queue failed", err)
			c.nackRequeue(ctx, d)
			return
		}
		c.met.IncRetry(c.topo.ConsumerName, env.EventType)
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"retry": retries + 1,
			"error": errText,
		}), "message scheduled for retry")
		c.ack(ctx, d)
		return
	}

	headers := amqp.Table{
		HeaderRetryCount: strconv.Itoa(retries),
		HeaderFinalError: errText,
	}
	if err := c.pub.publishCopy(ctx, d, c.topo.DLQName(), headers); err != nil {
		c.logg.Error(ctx, "routing to dlq failed", err)
		c.nackRequeue(ctx, d)
		return
	}
	c.met.IncDeadLettered(c.topo.ConsumerName, env.EventType)
	c.logg.Error(c.logg.WithField(ctx, "retries", retries), "message dead-lettered", cause)
	c.ack(ctx, d)
}

func (c *Consumer) ack(ctx context.Context, d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "ack failed")
	}
}

func (c *Consumer) nackRequeue(ctx context.Context, d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "nack failed")
	}
}

func retryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	// The header travels as a string, but be lenient about what other
	// publishers may have written.
	switch v := headers[HeaderRetryCount].(type) {
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return 0
		}
		return n
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxHeaderErrorLen {
		return msg[:maxHeaderErrorLen]
	}
	return msg
}
