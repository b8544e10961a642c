package broker

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ricirt/task-insights/internal/config"
)

// Hand-written in-memory broker doubles used by the broker and worker tests.

// Published is one message recorded by MockChannel.PublishConfirmed.
type Published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

// MockChannel records calls and serves deliveries from Deliveries.
type MockChannel struct {
	mu sync.Mutex

	Deliveries chan amqp.Delivery
	Declared   []string
	Prefetch   int
	Published  []Published
	Cancelled  bool
	Closed     bool
	Confirming bool

	// Depths answers QueueDeclarePassive.
	Depths map[string]int

	// Optional error overrides. ConfirmResult is returned by
	// PublishConfirmed after the message is recorded, as when the broker
	// nacks or returns a publish it has received.
	DeclareErr    error
	ConsumeErr    error
	PublishErr    error
	ConfirmResult error

	closeDeliveries sync.Once
}

func NewMockChannel() *MockChannel {
	return &MockChannel{
		Deliveries: make(chan amqp.Delivery, 16),
		Depths:     make(map[string]int),
	}
}

func (c *MockChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prefetch = prefetchCount
	return nil
}

func (c *MockChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return amqp.Queue{}, c.DeclareErr
	}
	c.Declared = append(c.Declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *MockChannel) QueueDeclarePassive(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	return amqp.Queue{Name: name, Messages: c.Depths[name], Consumers: 1}, nil
}

func (c *MockChannel) Consume(_, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	return c.Deliveries, nil
}

func (c *MockChannel) Confirm(_ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Confirming = true
	return nil
}

func (c *MockChannel) PublishConfirmed(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Confirming {
		return ErrNotConfirming
	}
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.Published = append(c.Published, Published{Exchange: exchange, Key: key, Msg: msg})
	return c.ConfirmResult
}

func (c *MockChannel) Cancel(_ string, _ bool) error {
	c.mu.Lock()
	c.Cancelled = true
	c.mu.Unlock()
	c.CloseDeliveries()
	return nil
}

func (c *MockChannel) Close() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	c.CloseDeliveries()
	return nil
}

// CloseDeliveries simulates the broker ending the delivery stream, as on a
// lost connection.
func (c *MockChannel) CloseDeliveries() {
	c.closeDeliveries.Do(func() { close(c.Deliveries) })
}

// Snapshot returns copies of the recorded state for assertions.
func (c *MockChannel) Snapshot() (declared []string, published []Published, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Declared...), append([]Published(nil), c.Published...), c.Closed
}

// MockConnection hands out Main for the first Channel call and fresh
// MockChannels (sharing Main's depths) afterwards.
type MockConnection struct {
	mu     sync.Mutex
	Main   *MockChannel
	opened int
	closed bool

	ChannelErr error
}

func NewMockConnection() *MockConnection {
	return &MockConnection{Main: NewMockChannel()}
}

func (c *MockConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ChannelErr != nil {
		return nil, c.ChannelErr
	}
	if c.closed {
		return nil, amqp.ErrClosed
	}
	c.opened++
	if c.opened == 1 {
		return c.Main, nil
	}
	extra := NewMockChannel()
	extra.Depths = c.Main.Depths
	return extra, nil
}

func (c *MockConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// MockDialer fails the first FailTimes dials, then returns Conn.
type MockDialer struct {
	mu        sync.Mutex
	Conn      *MockConnection
	FailTimes int
	attempts  int
}

var ErrMockDial = errors.New("dial tcp: connection refused")

func (d *MockDialer) Dial(_ config.BrokerConfig) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.FailTimes < 0 || d.attempts <= d.FailTimes {
		return nil, ErrMockDial
	}
	return d.Conn, nil
}

// Attempts reports how many dials were made.
func (d *MockDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// MockAcknowledger records acks and nacks per delivery tag. Set it as
// amqp.Delivery.Acknowledger in tests.
type MockAcknowledger struct {
	mu    sync.Mutex
	Acks  []uint64
	Nacks []uint64

	// Requeue flags, parallel to Nacks.
	Requeues []bool
}

func (a *MockAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Acks = append(a.Acks, tag)
	return nil
}

func (a *MockAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nacks = append(a.Nacks, tag)
	a.Requeues = append(a.Requeues, requeue)
	return nil
}

func (a *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Counts returns the number of acks and nacks seen for tag.
func (a *MockAcknowledger) Counts(tag uint64) (acks, nacks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.Acks {
		if t == tag {
			acks++
		}
	}
	for _, t := range a.Nacks {
		if t == tag {
			nacks++
		}
	}
	return acks, nacks
}

// AllRequeued reports whether every nack asked for requeue.
func (a *MockAcknowledger) AllRequeued() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.Requeues {
		if !r {
			return false
		}
	}
	return true
}
