package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ricirt/task-insights/internal/broker"
)

// StatsSource reports the depth of the consumed queue. *Consumer implements it.
type StatsSource interface {
	QueueStats() (broker.QueueStats, error)
}

// QueueSnapshot is the result of the most recent sample.
type QueueSnapshot struct {
	Stats     broker.QueueStats `json:"stats"`
	SampledAt time.Time         `json:"sampled_at"`
	Error     string            `json:"error,omitempty"`
}

// QueueSampler inspects the task queue on a cron schedule and keeps the
// latest result for the HTTP API and the queue depth gauge.
type QueueSampler struct {
	source   StatsSource
	schedule string
	onSample func(broker.QueueStats)
	logger   *zap.Logger

	mu   sync.RWMutex
	last *QueueSnapshot
}

// NewQueueSampler builds a sampler. schedule accepts cron expressions with
// a seconds field and descriptors such as "@every 15s". onSample is optional.
func NewQueueSampler(source StatsSource, schedule string, onSample func(broker.QueueStats), logger *zap.Logger) *QueueSampler {
	if onSample == nil {
		onSample = func(broker.QueueStats) {}
	}
	return &QueueSampler{source: source, schedule: schedule, onSample: onSample, logger: logger}
}

// Run samples on schedule until ctx is cancelled. It returns an error only
// when the schedule cannot be parsed.
func (qs *QueueSampler) Run(ctx context.Context) error {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(qs.schedule, func() { _ = qs.Sample() }); err != nil {
		return fmt.Errorf("queue sample schedule %q: %w", qs.schedule, err)
	}

	c.Start()
	qs.logger.Info("queue sampler started", zap.String("schedule", qs.schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	qs.logger.Info("queue sampler stopped")
	return nil
}

// Sample takes one reading now. The error, if any, is also recorded in the
// snapshot.
func (qs *QueueSampler) Sample() error {
	snap := QueueSnapshot{SampledAt: time.Now().UTC()}

	stats, err := qs.source.QueueStats()
	if err != nil {
		snap.Error = err.Error()
		qs.logger.Debug("queue sample skipped", zap.Error(err))
	} else {
		snap.Stats = stats
		qs.onSample(stats)
	}

	qs.mu.Lock()
	qs.last = &snap
	qs.mu.Unlock()
	return err
}

// Last returns the latest snapshot, if any sample has run.
func (qs *QueueSampler) Last() (QueueSnapshot, bool) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	if qs.last == nil {
		return QueueSnapshot{}, false
	}
	return *qs.last, true
}
