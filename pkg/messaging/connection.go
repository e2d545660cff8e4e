package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/ledgerpay-backend/pkg/config"
	"github.com/angelmondragon/ledgerpay-backend/pkg/logger"
)

// Connection manages the broker connection and a shared channel. The
// connection is dialed lazily and rebuilt on next use when the broker
// dropped it.
type Connection struct {
	cfg  config.RabbitConfig
	logg *logger.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewConnection prepares a lazy connection. No dial happens until the
// first channel is requested.
func NewConnection(cfg config.RabbitConfig, logg *logger.Logger) *Connection {
	return &Connection{cfg: cfg, logg: logg}
}

// Channel returns a live channel, dialing or rebuilding as needed.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() && c.conn != nil && !c.conn.IsClosed() {
		return c.channel, nil
	}
	if err := c.rebuild(ctx); err != nil {
		return nil, err
	}
	return c.channel, nil
}

func (c *Connection) rebuild(ctx context.Context) error {
	if c.channel != nil && !c.channel.IsClosed() {
		_ = c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}

	heartbeat := c.cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}
	amqpCfg := amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Vhost:     c.cfg.VHost,
		Properties: amqp.Table{
			"connection_name": "ledgerpay",
		},
	}

	conn, err := amqp.DialConfig(c.cfg.AMQPURL(), amqpCfg)
	if err != nil {
		return fmt.Errorf("dialing rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	if c.logg != nil {
		c.logg.Info(ctx, "rabbitmq connection established")
	}
	return nil
}

// Ping verifies broker connectivity, dialing if needed.
func (c *Connection) Ping(ctx context.Context) error {
	_, err := c.Channel(ctx)
	return err
}

// IsHealthy reports whether a live connection is currently held.
func (c *Connection) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}

// Close shuts down the channel and connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.channel = nil
	c.conn = nil
	return firstErr
}
