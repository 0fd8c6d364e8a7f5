package messaging

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestDeathCountFreshMessage(t *testing.T) {
	if n := DeathCount(amqp.Delivery{}); n != 0 {
		t.Errorf("fresh delivery: got %d, want 0", n)
	}
	if n := DeathCount(amqp.Delivery{Headers: amqp.Table{"x-death": "garbage"}}); n != 0 {
		t.Errorf("malformed header: got %d, want 0", n)
	}
}

func TestDeathCountReadsCycles(t *testing.T) {
	d := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{
			amqp.Table{"queue": "media.transcription", "reason": "rejected", "count": int64(2)},
			amqp.Table{"queue": "media.transcription.retry", "reason": "expired", "count": int64(2)},
		},
	}}
	if n := DeathCount(d); n != 2 {
		t.Errorf("got %d, want 2", n)
	}
}

func TestDeathCountTakesHighest(t *testing.T) {
	d := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{
			amqp.Table{"count": int64(1)},
			amqp.Table{"count": int64(3)},
		},
	}}
	if n := DeathCount(d); n != 3 {
		t.Errorf("got %d, want 3", n)
	}
}
