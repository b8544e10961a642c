package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ricirt/task-insights/internal/config"
)

const connectionName = "task-insights-worker"

// DialFunc opens a broker connection. Tests replace it with MockDialer.Dial.
type DialFunc func(cfg config.BrokerConfig) (Connection, error)

// URL returns the AMQP URL for cfg: the orchestrator supplied URL when
// present, otherwise one built from the host form.
func URL(cfg config.BrokerConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		Vhost:    "/",
	}.String()
}

// NewAMQPDialer returns a DialFunc backed by amqp091-go.
//
// The orchestrator URL form is dialed as given. The host form applies the
// configured heartbeat and closes the connection when the broker keeps it
// blocked (resource alarm) for longer than cfg.BlockedTimeout.
func NewAMQPDialer(logger *zap.Logger) DialFunc {
	return func(cfg config.BrokerConfig) (Connection, error) {
		amqpCfg := amqp.Config{
			Properties: amqp.NewConnectionProperties(),
			Locale:     "en_US",
		}
		amqpCfg.Properties.SetClientConnectionName(connectionName)
		if cfg.URL == "" {
			amqpCfg.Heartbeat = cfg.Heartbeat
		}

		conn, err := amqp.DialConfig(URL(cfg), amqpCfg)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}

		if cfg.URL == "" && cfg.BlockedTimeout > 0 {
			watchBlocked(conn, cfg.BlockedTimeout, logger)
		}
		return amqpConnection{conn}, nil
	}
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{Channel: ch}, nil
}

// amqpChannel adds confirmed publishing to *amqp.Channel.
type amqpChannel struct {
	*amqp.Channel

	// returns receives mandatory publishes the broker could not route. It is
	// set by Confirm.
	returns chan amqp.Return
}

func (c *amqpChannel) Confirm(noWait bool) error {
	if err := c.Channel.Confirm(noWait); err != nil {
		return err
	}
	c.returns = c.Channel.NotifyReturn(make(chan amqp.Return, 4))
	return nil
}

func (c *amqpChannel) PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if c.returns == nil {
		return ErrNotConfirming
	}
	c.drainReturns()

	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, exchange, key, true, false, msg)
	if err != nil {
		return err
	}
	if dc == nil {
		return ErrNotConfirming
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}

	// The broker sends basic.return before the ack of the same message, so
	// an unroutable publish is already buffered here.
	select {
	case r, ok := <-c.returns:
		if ok {
			return fmt.Errorf("%w: %d %s", ErrPublishReturned, r.ReplyCode, r.ReplyText)
		}
		return amqp.ErrClosed
	default:
	}
	return nil
}

// drainReturns discards returns left over from earlier publishes.
func (c *amqpChannel) drainReturns() {
	for {
		select {
		case _, ok := <-c.returns:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// watchBlocked closes conn once it has been blocked for timeout without
// being unblocked.
func watchBlocked(conn *amqp.Connection, timeout time.Duration, logger *zap.Logger) {
	blocked := conn.NotifyBlocked(make(chan amqp.Blocking, 1))
	go superviseBlocked(blocked, conn.Close, timeout, logger)
}

// superviseBlocked runs until blocked is closed or closeConn has been
// called. It keeps draining blocked after that, until the library closes it.
func superviseBlocked(blocked <-chan amqp.Blocking, closeConn func() error, timeout time.Duration, logger *zap.Logger) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
			timer, fire = nil, nil
		}
	}

	for {
		select {
		case b, ok := <-blocked:
			if !ok {
				stop()
				return
			}
			if b.Active {
				logger.Warn("broker blocked the connection", zap.String("reason", b.Reason))
				if timer == nil {
					timer = time.NewTimer(timeout)
					fire = timer.C
				}
			} else {
				logger.Info("broker unblocked the connection")
				stop()
			}
		case <-fire:
			logger.Error("connection blocked too long; closing", zap.Duration("timeout", timeout))
			// Close waits for close-ok from the library's reader, which must
			// never block on a full notification channel meanwhile.
			go func() {
				for range blocked {
				}
			}()
			_ = closeConn()
			return
		}
	}
}
