// Package redelivery decides what happens to a message whose processing
// failed: requeue it again, or move it to a dead-letter queue once it has
// failed too many times.
//
// A zero limit keeps the broker's plain behaviour of requeueing forever.
package redelivery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliveryCountHeader is set by RabbitMQ quorum queues to the number of
// earlier deliveries of the message.
const DeliveryCountHeader = "x-delivery-count"

// Headers added to dead-lettered messages.
const (
	HeaderSourceQueue   = "x-source-queue"
	HeaderFailureReason = "x-failure-reason"
	HeaderAttempts      = "x-failed-attempts"
)

// ConfirmTimeout bounds the wait for the broker to confirm a dead-letter
// publish.
const ConfirmTimeout = 30 * time.Second

// Publisher is the publishing half of a broker channel in confirm mode.
type Publisher interface {
	PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

type Policy struct {
	limit   int
	counter Counter
	source  string
	dlq     string
}

// NewPolicy returns a policy that dead-letters a message from source to dlq
// after limit failed attempts. limit <= 0 disables dead-lettering.
func NewPolicy(limit int, counter Counter, source, dlq string) *Policy {
	if counter == nil {
		counter = NewMemoryCounter(24 * time.Hour)
	}
	return &Policy{limit: limit, counter: counter, source: source, dlq: dlq}
}

// Enabled reports whether failed messages can ever leave the queue.
func (p *Policy) Enabled() bool {
	return p != nil && p.limit > 0 && p.dlq != ""
}

func (p *Policy) Limit() int { return p.limit }

// Queue is the dead-letter queue name.
func (p *Policy) Queue() string {
	if p == nil {
		return ""
	}
	return p.dlq
}

// Attempts records a failure of d and returns how many times it has failed,
// this one included. The broker's delivery count header wins over the
// counter when present.
func (p *Policy) Attempts(ctx context.Context, d amqp.Delivery) (int, error) {
	if n, ok := headerCount(d.Headers); ok {
		return int(n) + 1, nil
	}
	n, err := p.counter.Incr(ctx, Key(d))
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return int(n), nil
}

// Exhausted reports whether a message that has failed attempts times must
// be dead-lettered.
func (p *Policy) Exhausted(attempts int) bool {
	return p.Enabled() && attempts >= p.limit
}

// Forget drops the failure count for d.
func (p *Policy) Forget(ctx context.Context, d amqp.Delivery) error {
	if !p.Enabled() {
		return nil
	}
	return p.counter.Reset(ctx, Key(d))
}

// DeadLetter republishes d to the dead-letter queue with the failure
// recorded in its headers and waits for the broker's confirm. The caller
// acks d, and then calls Forget, only once this returns nil.
func (p *Policy) DeadLetter(ctx context.Context, pub Publisher, d amqp.Delivery, attempts int, cause error) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[HeaderSourceQueue] = p.source
	headers[HeaderAttempts] = int64(attempts)
	if cause != nil {
		headers[HeaderFailureReason] = cause.Error()
	}

	msg := amqp.Publishing{
		Headers:       headers,
		ContentType:   d.ContentType,
		CorrelationId: d.CorrelationId,
		MessageId:     d.MessageId,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		Body:          d.Body,
	}
	ctx, cancel := context.WithTimeout(ctx, ConfirmTimeout)
	defer cancel()
	if err := pub.PublishConfirmed(ctx, "", p.dlq, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.dlq, err)
	}
	return nil
}

// Key identifies d across redeliveries: its message id when the publisher
// set one, otherwise a hash of the body.
func Key(d amqp.Delivery) string {
	if d.MessageId != "" {
		return "id:" + d.MessageId
	}
	return "body:" + strconv.FormatUint(xxhash.Sum64(d.Body), 16)
}

func headerCount(h amqp.Table) (int64, bool) {
	switch v := h[DeliveryCountHeader].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
