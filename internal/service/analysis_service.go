package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/task-insights/internal/classifier"
	"github.com/ricirt/task-insights/internal/domain"
	"github.com/ricirt/task-insights/internal/repository"
)

// AnalysisService turns one raw task event into a persisted classification.
// The consumer loop depends on this service; the service knows nothing about
// the broker, so acknowledgment decisions stay in the worker.
type AnalysisService struct {
	repo   repository.TaskRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewAnalysisService(repo repository.TaskRepository, logger *zap.Logger) *AnalysisService {
	return &AnalysisService{repo: repo, logger: logger, now: time.Now}
}

// Process decodes body, classifies the task and writes the result.
//
// Any returned error means the message was not fully handled and must be
// redelivered. A task id without a matching row is still a success; it is
// reported through AnalysisResult.Updated and a warning.
func (s *AnalysisService) Process(ctx context.Context, body []byte) (*domain.AnalysisResult, error) {
	ev, err := domain.DecodeTaskEvent(body)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("task_id", string(ev.TaskID)))
	log.Debug("processing task")

	c := classifier.Classify(ev.Title, ev.Description)
	analyzedAt := s.now().UTC()

	updated, err := s.repo.UpdateAnalysis(ctx, ev.TaskID, c, analyzedAt)
	if err != nil {
		return nil, fmt.Errorf("persist analysis for task %s: %w", ev.TaskID, err)
	}

	if !updated {
		log.Warn("no task row matched; analysis not stored",
			zap.String("category", string(c.Category)),
			zap.String("sentiment", string(c.Sentiment)),
		)
	} else {
		log.Info("task analysed",
			zap.String("category", string(c.Category)),
			zap.String("sentiment", string(c.Sentiment)),
			zap.Float64("polarity", c.Polarity),
		)
	}

	return &domain.AnalysisResult{
		TaskID:         ev.TaskID,
		Classification: c,
		Updated:        updated,
		AnalyzedAt:     analyzedAt,
	}, nil
}
