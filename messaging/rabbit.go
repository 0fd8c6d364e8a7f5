package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config is the broker slice of the service configuration.
type Config struct {
	URL             string
	Exchange        string
	Prefetch        int
	MaxDeliveries   int
	RetryDelay      time.Duration
	ConnectAttempts int
}

// Client owns one long-lived connection and one channel, the way each stage
// talks to the broker. Publishing runs in confirm mode so a caller finds out
// when the broker did not take a message.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  Config
	log  *slog.Logger
}

// Dial connects with bounded retries and exponential backoff, then puts the
// channel in confirm mode and starts logging unroutable returns. Running out
// of attempts is a fatal startup failure by design.
func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 10
	}
	var (
		conn *amqp.Connection
		err  error
	)
	backoff := time.Second
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		log.Warn("broker unreachable", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect broker after %d attempts: %w", cfg.ConnectAttempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	c := &Client{conn: conn, ch: ch, cfg: cfg, log: log}

	returns := ch.NotifyReturn(make(chan amqp.Return, 8))
	go func() {
		for r := range returns {
			c.log.Error("message returned unroutable",
				"exchange", r.Exchange, "routing_key", r.RoutingKey, "reply", r.ReplyText)
		}
	}()

	return c, nil
}

func (c *Client) retryExchange() string { return c.cfg.Exchange + ".retry" }
func (c *Client) deadExchange() string  { return c.cfg.Exchange + ".dead" }
func (c *Client) deadQueue() string     { return c.cfg.Exchange + ".dead" }

// DeclareTopology declares the exchange, the work queue with its bounded
// retry cycle, and the dead-letter parking queue. Every declaration is
// idempotent: matching durability flags succeed whether or not the topology
// already exists, anything else fails startup fast.
//
// Failure path: a rejected message dead-letters to the retry exchange, sits
// in a TTL queue, and expires back onto the main exchange with its original
// routing key. Once the x-death count reaches MaxDeliveries the consumer
// parks it on the dead queue instead.
func (c *Client) DeclareTopology(queue, routingKey string) error {
	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	if err := c.ch.ExchangeDeclare(c.retryExchange(), "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare retry exchange: %w", err)
	}
	if err := c.ch.ExchangeDeclare(c.deadExchange(), "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead exchange: %w", err)
	}

	if _, err := c.ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": c.retryExchange(),
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := c.ch.QueueBind(queue, routingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}

	retryQueue := queue + ".retry"
	if _, err := c.ch.QueueDeclare(retryQueue, true, false, false, false, amqp.Table{
		"x-message-ttl":          c.cfg.RetryDelay.Milliseconds(),
		"x-dead-letter-exchange": c.cfg.Exchange,
	}); err != nil {
		return fmt.Errorf("declare retry queue %s: %w", retryQueue, err)
	}
	if err := c.ch.QueueBind(retryQueue, routingKey, c.retryExchange(), false, nil); err != nil {
		return fmt.Errorf("bind retry queue %s: %w", retryQueue, err)
	}

	if _, err := c.ch.QueueDeclare(c.deadQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead queue: %w", err)
	}
	if err := c.ch.QueueBind(c.deadQueue(), "#", c.deadExchange(), false, nil); err != nil {
		return fmt.Errorf("bind dead queue: %w", err)
	}

	c.log.Info("broker topology declared",
		"exchange", c.cfg.Exchange, "queue", queue, "routing_key", routingKey)
	return nil
}

// DeclarePublishOnly declares just the exchange, for stages that publish
// without consuming.
func (c *Client) DeclarePublishOnly() error {
	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	return nil
}

// Close tears the channel down before the connection. Consumers cancel their
// registration first via the consume loop.
func (c *Client) Close() {
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.log.Warn("close channel", "error", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Warn("close connection", "error", err)
		}
	}
}
