package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"mediarag/core"
)

// Verdict is a handler's decision about an inbound message. Handlers never
// touch ack/nack themselves.
type Verdict int

const (
	// Ack: the message is terminally handled, successfully or not (e.g. a
	// business-rule outcome that retrying cannot change).
	Ack Verdict = iota
	// Retry: transient failure; send the message through the bounded
	// retry cycle.
	Retry
	// Drop: poison message; park it on the dead queue immediately.
	Drop
)

// Handler processes one delivery. It runs logically sequentially per
// consumer; horizontal scale-out comes from more process instances on the
// same queue.
type Handler func(ctx context.Context, d amqp.Delivery) Verdict

// Consume runs the receive -> process -> ack/nack loop until ctx is
// cancelled or the channel closes. On shutdown the consumer registration is
// cancelled first so the broker stops delivering, the in-flight message is
// allowed to finish, and anything still buffered is requeued.
func (c *Client) Consume(ctx context.Context, queue string, handler Handler) error {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	tag := queue + "." + core.NewID()[:8]
	deliveries, err := c.ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", queue, err)
	}
	c.log.Info("consuming", "queue", queue, "consumer_tag", tag, "prefetch", c.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			if err := c.ch.Cancel(tag, false); err != nil {
				c.log.Warn("cancel consumer", "consumer_tag", tag, "error", err)
			}
			for d := range deliveries {
				_ = d.Nack(false, true)
			}
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %s", queue)
			}
			c.settle(ctx, d, handler(ctx, d))
		}
	}
}

func (c *Client) settle(ctx context.Context, d amqp.Delivery, v Verdict) {
	switch v {
	case Ack:
		if err := d.Ack(false); err != nil {
			c.log.Error("ack failed", "delivery_tag", d.DeliveryTag, "error", err)
		}
	case Retry:
		if DeathCount(d) >= int64(c.cfg.MaxDeliveries) {
			c.log.Warn("retry budget exhausted, parking message",
				"routing_key", d.RoutingKey, "deliveries", DeathCount(d)+1)
			c.parkAndAck(ctx, d)
			return
		}
		// Reject without requeue: the queue's DLX routes it into the
		// TTL retry cycle.
		if err := d.Nack(false, false); err != nil {
			c.log.Error("nack failed", "delivery_tag", d.DeliveryTag, "error", err)
		}
	case Drop:
		c.log.Warn("dropping poison message", "routing_key", d.RoutingKey)
		c.parkAndAck(ctx, d)
	}
}

func (c *Client) parkAndAck(ctx context.Context, d amqp.Delivery) {
	if err := c.park(ctx, d); err != nil {
		c.log.Error("park on dead queue failed, rejecting instead", "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Error("ack after park failed", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// DeathCount reads how many times a delivery has been through a dead-letter
// cycle, from the broker-maintained x-death header. A fresh message counts 0.
func DeathCount(d amqp.Delivery) int64 {
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	var max int64
	for _, entry := range deaths {
		table, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		if n, ok := table["count"].(int64); ok && n > max {
			max = n
		}
	}
	return max
}
