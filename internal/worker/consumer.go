package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ricirt/task-insights/internal/broker"
	"github.com/ricirt/task-insights/internal/domain"
	"github.com/ricirt/task-insights/internal/ratelimiter"
	"github.com/ricirt/task-insights/internal/redelivery"
)

const consumerTag = "task-insights"

// Connector opens a broker session. *broker.Manager implements it.
type Connector interface {
	Connect(ctx context.Context) (*broker.Session, error)
}

// Processor handles one message body. *service.AnalysisService implements it.
type Processor interface {
	Process(ctx context.Context, body []byte) (*domain.AnalysisResult, error)
}

// Hooks carries the metric callbacks injected by main. Any of them may be nil.
type Hooks struct {
	OnAcked        func(res *domain.AnalysisResult, latency time.Duration)
	OnRequeued     func(cause error)
	OnDeadLettered func(cause error)
}

// Consumer pulls task events off the queue one at a time and acks each one
// only after it has been analysed and stored.
type Consumer struct {
	queue     string
	connector Connector
	proc      Processor
	policy    *redelivery.Policy
	throttle  *ratelimiter.Throttle
	status    *Status
	logger    *zap.Logger
	hooks     Hooks

	mu      sync.Mutex
	session *broker.Session

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewConsumer constructs a consumer for queue. policy and throttle are
// optional: nil means requeue forever without pacing.
func NewConsumer(
	queue string,
	connector Connector,
	proc Processor,
	policy *redelivery.Policy,
	throttle *ratelimiter.Throttle,
	status *Status,
	logger *zap.Logger,
	hooks Hooks,
) *Consumer {
	if throttle == nil {
		throttle = ratelimiter.New(0, 0)
	}
	if status == nil {
		status = NewStatus()
	}
	if hooks.OnAcked == nil {
		hooks.OnAcked = func(*domain.AnalysisResult, time.Duration) {}
	}
	if hooks.OnRequeued == nil {
		hooks.OnRequeued = func(error) {}
	}
	if hooks.OnDeadLettered == nil {
		hooks.OnDeadLettered = func(error) {}
	}
	return &Consumer{
		queue: queue, connector: connector, proc: proc,
		policy: policy, throttle: throttle, status: status,
		logger: logger, hooks: hooks,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run connects, subscribes and handles deliveries until Stop is called,
// ctx is cancelled or the broker closes the delivery stream.
//
// A failed connect returns its error with the consumer Stopped. Failures
// while handling a message never end the loop. Run may only be called once.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("consumer already started")
	}
	defer close(c.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.status.set(StateStarting)
	session, err := c.connector.Connect(ctx)
	if err != nil {
		c.status.set(StateStopped)
		c.logger.Error("consumer could not start", zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	defer c.teardown()

	// One unacked message at a time keeps handling strictly sequential.
	if err := session.Channel.Qos(1, 0, false); err != nil {
		c.status.set(StateStopped)
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := session.Channel.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		c.status.set(StateStopped)
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.status.set(StateRunning)
	c.logger.Info("consumer started", zap.String("queue", c.queue))

	for {
		// A stop that races with a ready delivery wins.
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping")
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Error("delivery stream closed; consumer stopped")
				return domain.ErrDeliveriesClosed
			}
			c.handle(ctx, session, d)
		}
	}
}

// Stop asks Run to return after the in-flight message. Safe to call more
// than once, and before or after Run.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Done is closed when Run has returned and the session is closed.
func (c *Consumer) Done() <-chan struct{} { return c.done }

func (c *Consumer) Status() *Status { return c.status }

// QueueStats inspects the consumed queue on a short-lived channel.
func (c *Consumer) QueueStats() (broker.QueueStats, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil || !c.status.Running() {
		return broker.QueueStats{}, domain.ErrConsumerNotRunning
	}
	return s.Inspect(c.queue)
}

func (c *Consumer) teardown() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	c.status.set(StateStopped)
	if s == nil {
		return
	}
	if err := s.Channel.Cancel(consumerTag, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
		c.logger.Warn("cancel consumer failed", zap.Error(err))
	}
	if err := s.Close(); err != nil {
		c.logger.Warn("close broker session failed", zap.Error(err))
	}
	c.logger.Info("consumer stopped")
}

// handle processes one delivery and settles it exactly once. The work runs
// on a context detached from ctx so shutdown never cuts a store write short.
func (c *Consumer) handle(ctx context.Context, session *broker.Session, d amqp.Delivery) {
	work := context.WithoutCancel(ctx)
	start := time.Now()
	log := c.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))

	res, err := c.safeProcess(work, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("ack failed", zap.Error(ackErr))
			return
		}
		if fErr := c.policy.Forget(work, d); fErr != nil {
			log.Warn("could not clear redelivery count", zap.Error(fErr))
		}
		c.hooks.OnAcked(res, time.Since(start))
		return
	}

	if c.policy.Enabled() {
		if c.deadLetter(work, session, d, err, log) {
			return
		}
	}

	if errors.Is(err, domain.ErrMalformedEvent) || errors.Is(err, domain.ErrMissingTaskID) {
		log.Warn("rejecting malformed message", zap.Error(err))
	} else {
		log.Error("message processing failed", zap.Error(err))
	}

	// Shutdown skips the pause; the nack still goes out.
	_ = c.throttle.Wait(ctx)

	if nackErr := d.Nack(false, true); nackErr != nil {
		log.Error("nack failed", zap.Error(nackErr))
		return
	}
	c.hooks.OnRequeued(err)
}

// deadLetter moves d to the dead-letter queue when its redelivery budget is
// spent. It reports whether d was settled.
func (c *Consumer) deadLetter(ctx context.Context, session *broker.Session, d amqp.Delivery, cause error, log *zap.Logger) bool {
	attempts, err := c.policy.Attempts(ctx, d)
	if err != nil {
		log.Warn("could not count delivery attempts; requeueing", zap.Error(err))
		return false
	}
	if !c.policy.Exhausted(attempts) {
		return false
	}

	if err := c.policy.DeadLetter(ctx, session.Channel, d, attempts, cause); err != nil {
		log.Error("dead-letter publish failed; requeueing", zap.Error(err))
		return false
	}
	if err := d.Ack(false); err != nil {
		log.Error("ack after dead-letter failed", zap.Error(err))
		return true
	}
	if err := c.policy.Forget(ctx, d); err != nil {
		log.Warn("could not clear redelivery count", zap.Error(err))
	}

	log.Error("message dead-lettered",
		zap.Int("attempts", attempts),
		zap.String("queue", c.policy.Queue()),
		zap.Error(cause),
	)
	c.hooks.OnDeadLettered(cause)
	return true
}

func (c *Consumer) safeProcess(ctx context.Context, body []byte) (res *domain.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing message: %v", r)
		}
	}()
	return c.proc.Process(ctx, body)
}
