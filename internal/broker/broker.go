// Package broker owns the RabbitMQ connection: dialing with a bounded retry
// budget, opening the consuming channel and declaring durable queues.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publish outcomes reported by Channel.PublishConfirmed.
var (
	ErrPublishNacked   = errors.New("broker nacked the publish")
	ErrPublishReturned = errors.New("broker returned the message as unroutable")
	ErrNotConfirming   = errors.New("channel is not in confirm mode")
)

// Channel is the subset of an AMQP channel the worker uses.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueDeclarePassive(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Confirm(noWait bool) error
	// PublishConfirmed publishes msg as mandatory and returns nil only once
	// the broker has confirmed it. The channel must be in confirm mode.
	PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Connection is the subset of *amqp.Connection the worker uses.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

var (
	_ Channel    = (*amqpChannel)(nil)
	_ Connection = amqpConnection{}
)

// QueueStats is a point-in-time view of a queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
}

// Session is one live connection plus the channel used for consuming.
type Session struct {
	Conn    Connection
	Channel Channel

	closeOnce sync.Once
	closeErr  error
}

// Close closes the channel and then the connection. It is safe to call
// more than once and on a nil Session.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		var errs []error
		if s.Channel != nil {
			if err := s.Channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("close channel: %w", err))
			}
		}
		if s.Conn != nil && !s.Conn.IsClosed() {
			if err := s.Conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Inspect reports the depth of queue on a short-lived channel so the
// consuming channel is never shared.
func (s *Session) Inspect(queue string) (QueueStats, error) {
	ch, err := s.Conn.Channel()
	if err != nil {
		return QueueStats{}, fmt.Errorf("open inspection channel: %w", err)
	}
	defer ch.Close() //nolint:errcheck

	q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return QueueStats{}, fmt.Errorf("inspect queue %s: %w", queue, err)
	}
	return QueueStats{Queue: q.Name, Messages: q.Messages, Consumers: q.Consumers}, nil
}
