package redelivery

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/task-insights/internal/broker"
)

func TestPolicy_ZeroLimitIsDisabled(t *testing.T) {
	p := NewPolicy(0, nil, "task_created", "task_created.dead")
	assert.False(t, p.Enabled())
	assert.False(t, p.Exhausted(1_000_000))

	var nilPolicy *Policy
	assert.False(t, nilPolicy.Enabled())
}

func TestPolicy_AttemptsFromCounter(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(3, NewMemoryCounter(time.Hour), "task_created", "task_created.dead")
	d := amqp.Delivery{Body: []byte(`{"task_id":"1"}`)}

	for want := 1; want <= 3; want++ {
		n, err := p.Attempts(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.True(t, p.Exhausted(3))
	assert.False(t, p.Exhausted(2))

	require.NoError(t, p.Forget(ctx, d))
	n, _ := p.Attempts(ctx, d)
	assert.Equal(t, 1, n)
}

func TestPolicy_AttemptsFromDeliveryCountHeader(t *testing.T) {
	p := NewPolicy(3, NewMemoryCounter(time.Hour), "task_created", "task_created.dead")

	for _, v := range []any{int(2), int32(2), int64(2)} {
		d := amqp.Delivery{Headers: amqp.Table{DeliveryCountHeader: v}}
		n, err := p.Attempts(context.Background(), d)
		require.NoError(t, err)
		assert.Equal(t, 3, n, "%T", v)
	}
}

func TestKey(t *testing.T) {
	a := amqp.Delivery{Body: []byte("x")}
	b := amqp.Delivery{Body: []byte("x")}
	c := amqp.Delivery{Body: []byte("y")}
	assert.Equal(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(c))

	assert.Equal(t, "id:m-1", Key(amqp.Delivery{MessageId: "m-1", Body: []byte("x")}))
}

func TestPolicy_DeadLetter(t *testing.T) {
	ctx := context.Background()
	counter := NewMemoryCounter(time.Hour)
	p := NewPolicy(2, counter, "task_created", "task_created.dead")
	ch := broker.NewMockChannel()
	require.NoError(t, ch.Confirm(false))
	d := amqp.Delivery{
		Body:        []byte("not json"),
		ContentType: "application/json",
		Headers:     amqp.Table{"trace": "abc"},
	}
	_, _ = p.Attempts(ctx, d)

	require.NoError(t, p.DeadLetter(ctx, ch, d, 2, errors.New("malformed")))

	_, published, _ := ch.Snapshot()
	require.Len(t, published, 1)
	msg := published[0]
	assert.Equal(t, "", msg.Exchange)
	assert.Equal(t, "task_created.dead", msg.Key)
	assert.Equal(t, d.Body, msg.Msg.Body)
	assert.Equal(t, amqp.Persistent, msg.Msg.DeliveryMode)
	assert.Equal(t, "task_created", msg.Msg.Headers[HeaderSourceQueue])
	assert.Equal(t, "malformed", msg.Msg.Headers[HeaderFailureReason])
	assert.Equal(t, int64(2), msg.Msg.Headers[HeaderAttempts])
	assert.Equal(t, "abc", msg.Msg.Headers["trace"])

	n, _ := counter.Incr(ctx, Key(d))
	assert.Equal(t, int64(2), n, "the count is kept until the caller has acked and calls Forget")
}

func TestPolicy_DeadLetterNotConfirmed(t *testing.T) {
	cases := []struct {
		name   string
		result error
	}{
		{"nacked", broker.ErrPublishNacked},
		{"returned", broker.ErrPublishReturned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPolicy(1, nil, "task_created", "task_created.dead")
			ch := broker.NewMockChannel()
			require.NoError(t, ch.Confirm(false))
			ch.ConfirmResult = tc.result

			err := p.DeadLetter(context.Background(), ch, amqp.Delivery{Body: []byte("x")}, 1, errors.New("boom"))
			assert.ErrorIs(t, err, tc.result)
		})
	}
}

func TestPolicy_DeadLetterWithoutConfirmMode(t *testing.T) {
	p := NewPolicy(1, nil, "task_created", "task_created.dead")
	err := p.DeadLetter(context.Background(), broker.NewMockChannel(), amqp.Delivery{}, 1, errors.New("boom"))
	assert.ErrorIs(t, err, broker.ErrNotConfirming)
}

func TestPolicy_DeadLetterPublishError(t *testing.T) {
	p := NewPolicy(1, nil, "task_created", "task_created.dead")
	ch := broker.NewMockChannel()
	require.NoError(t, ch.Confirm(false))
	ch.PublishErr = amqp.ErrClosed

	err := p.DeadLetter(context.Background(), ch, amqp.Delivery{}, 1, errors.New("boom"))
	assert.ErrorIs(t, err, amqp.ErrClosed)
}
