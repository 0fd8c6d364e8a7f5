package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mediarag/core"
)

// Publish serializes the event, marks it persistent, and waits for the
// broker's confirm. A failed or unconfirmed publish propagates to the caller
// so the stage's business transaction can fail the item instead of silently
// losing the follow-on event.
func (c *Client) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}

	conf, err := c.ch.PublishWithDeferredConfirmWithContext(ctx,
		c.cfg.Exchange, routingKey,
		true,  // mandatory: unroutable messages come back on NotifyReturn
		false, // immediate is unsupported by modern brokers
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         routingKey,
			MessageId:    core.NewID(),
			Timestamp:    time.Now().UTC(),
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s publish", routingKey)
	}
	c.log.Info("event published", "routing_key", routingKey, "bytes", len(body))
	return nil
}

// park moves an exhausted or poison message onto the dead queue and reports
// whether that succeeded.
func (c *Client) park(ctx context.Context, d amqp.Delivery) error {
	_, err := c.ch.PublishWithDeferredConfirmWithContext(ctx,
		c.deadExchange(), d.RoutingKey, false, false,
		amqp.Publishing{
			ContentType:  d.ContentType,
			Type:         d.Type,
			MessageId:    d.MessageId,
			Timestamp:    time.Now().UTC(),
			DeliveryMode: amqp.Persistent,
			Headers:      d.Headers,
			Body:         d.Body,
		})
	return err
}
