package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/ricirt/task-insights/internal/config"
	"github.com/ricirt/task-insights/internal/domain"
)

// Manager establishes the worker's single broker session.
//
// Retries only happen inside Connect, at startup. Once a session is handed
// out the manager does not reconnect it.
type Manager struct {
	cfg    config.BrokerConfig
	dial   DialFunc
	queues []string
	logger *zap.Logger

	// OnAttempt is called after every dial attempt (optional).
	OnAttempt func(ok bool)
}

// NewManager returns a manager that declares cfg.Queue plus any extra
// queues (the dead-letter queue, when enabled) as durable on connect.
// Extra queues are publish targets, so their presence also puts the
// channel into confirm mode.
func NewManager(cfg config.BrokerConfig, dial DialFunc, logger *zap.Logger, extraQueues ...string) *Manager {
	queues := []string{cfg.Queue}
	for _, q := range extraQueues {
		if q != "" && q != cfg.Queue {
			queues = append(queues, q)
		}
	}
	return &Manager{cfg: cfg, dial: dial, queues: queues, logger: logger}
}

// Connect makes up to cfg.ConnectAttempts attempts, cfg.RetryDelay apart.
// It returns domain.ErrBrokerUnavailable once the budget is spent, or the
// context error if ctx ends first.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	attempts := max(m.cfg.ConnectAttempts, 1)
	delay := max(m.cfg.RetryDelay, time.Millisecond)
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	var (
		session *Session
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		s, err := m.open()
		if m.OnAttempt != nil {
			m.OnAttempt(err == nil)
		}
		if err != nil {
			m.logger.Warn("broker connect failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		session = s
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %d attempts: %v", domain.ErrBrokerUnavailable, attempt, err)
	}

	m.logger.Info("connected to broker",
		zap.Int("attempt", attempt),
		zap.Strings("queues", m.queues),
	)
	return session, nil
}

// open performs one dial + channel + declare round.
func (m *Manager) open() (*Session, error) {
	conn, err := m.dial(m.cfg)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	s := &Session{Conn: conn, Channel: ch}
	for _, q := range m.queues {
		// Declaring is idempotent: an existing durable queue is left as is.
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if len(m.queues) > 1 {
		if err := ch.Confirm(false); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("enable publisher confirms: %w", err)
		}
	}
	return s, nil
}
