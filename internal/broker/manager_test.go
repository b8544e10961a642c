package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/task-insights/internal/config"
	"github.com/ricirt/task-insights/internal/domain"
)

func testBrokerConfig() config.BrokerConfig {
	return config.BrokerConfig{
		Host:            "rabbitmq",
		Port:            5672,
		Username:        "guest",
		Password:        "guest",
		Queue:           "task_created",
		ConnectAttempts: 5,
		RetryDelay:      time.Millisecond,
	}
}

func TestManager_ConnectFirstAttempt(t *testing.T) {
	d := &MockDialer{Conn: NewMockConnection()}
	m := NewManager(testBrokerConfig(), d.Dial, zap.NewNop())

	s, err := m.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)

	declared, _, _ := d.Conn.Main.Snapshot()
	assert.Equal(t, []string{"task_created"}, declared)
	assert.Equal(t, 1, d.Attempts())
}

func TestManager_ConnectSucceedsOnLastAttempt(t *testing.T) {
	d := &MockDialer{Conn: NewMockConnection(), FailTimes: 4}
	var outcomes []bool
	m := NewManager(testBrokerConfig(), d.Dial, zap.NewNop())
	m.OnAttempt = func(ok bool) { outcomes = append(outcomes, ok) }

	_, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, d.Attempts())
	assert.Equal(t, []bool{false, false, false, false, true}, outcomes)
}

func TestManager_ConnectExhausted(t *testing.T) {
	d := &MockDialer{Conn: NewMockConnection(), FailTimes: -1}
	m := NewManager(testBrokerConfig(), d.Dial, zap.NewNop())

	s, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, domain.ErrBrokerUnavailable))
	assert.Equal(t, 5, d.Attempts(), "no attempts beyond the budget")
}

func TestManager_ConnectWaitsBetweenAttempts(t *testing.T) {
	cfg := testBrokerConfig()
	cfg.ConnectAttempts = 3
	cfg.RetryDelay = 20 * time.Millisecond
	d := &MockDialer{Conn: NewMockConnection(), FailTimes: -1}
	m := NewManager(cfg, d.Dial, zap.NewNop())

	start := time.Now()
	_, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 3, d.Attempts())
}

func TestManager_ConnectContextCancelled(t *testing.T) {
	cfg := testBrokerConfig()
	cfg.RetryDelay = time.Hour
	d := &MockDialer{Conn: NewMockConnection(), FailTimes: -1}
	m := NewManager(cfg, d.Dial, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, 1, d.Attempts())
}

func TestManager_DeclaresDeadLetterQueue(t *testing.T) {
	d := &MockDialer{Conn: NewMockConnection()}
	m := NewManager(testBrokerConfig(), d.Dial, zap.NewNop(), "task_created.dead", "", "task_created")

	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	declared, _, _ := d.Conn.Main.Snapshot()
	assert.Equal(t, []string{"task_created", "task_created.dead"}, declared)
	assert.True(t, d.Conn.Main.Confirming, "dead-letter publishes need confirms")
}

func TestManager_NoConfirmModeWithoutPublishTargets(t *testing.T) {
	d := &MockDialer{Conn: NewMockConnection()}
	m := NewManager(testBrokerConfig(), d.Dial, zap.NewNop())

	_, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.False(t, d.Conn.Main.Confirming)
}

func TestManager_DeclareFailureClosesConnection(t *testing.T) {
	conn := NewMockConnection()
	conn.Main.DeclareErr = errors.New("access refused")
	d := &MockDialer{Conn: conn}
	m := NewManager(testBrokerConfig(), d.Dial, zap.NewNop())

	_, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBrokerUnavailable))
	assert.True(t, conn.IsClosed())
}

func TestURL(t *testing.T) {
	cfg := testBrokerConfig()

	uri, err := amqp.ParseURI(URL(cfg))
	require.NoError(t, err)
	assert.Equal(t, "rabbitmq", uri.Host)
	assert.Equal(t, 5672, uri.Port)
	assert.Equal(t, "guest", uri.Username)
	assert.Equal(t, "guest", uri.Password)

	cfg.URL = "amqps://u:p@mq.example.com:5671/prod"
	assert.Equal(t, "amqps://u:p@mq.example.com:5671/prod", URL(cfg))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	var nilSession *Session
	assert.NoError(t, nilSession.Close())

	conn := NewMockConnection()
	ch, err := conn.Channel()
	require.NoError(t, err)
	s := &Session{Conn: conn, Channel: ch}

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.True(t, conn.IsClosed())
	assert.True(t, conn.Main.Closed)
}

func TestSession_Inspect(t *testing.T) {
	conn := NewMockConnection()
	conn.Main.Depths["task_created"] = 7
	ch, err := conn.Channel()
	require.NoError(t, err)
	s := &Session{Conn: conn, Channel: ch}

	stats, err := s.Inspect("task_created")
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: "task_created", Messages: 7, Consumers: 1}, stats)

	_, _, closed := conn.Main.Snapshot()
	assert.False(t, closed, "inspection must not close the consuming channel")
}
