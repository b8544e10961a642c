package repository

import (
	"context"
	"time"

	"github.com/ricirt/task-insights/internal/domain"
)

// TaskRepository writes analysis results onto externally owned task rows.
// The pgx implementation is in pg_task_repo.go.
// Tests use a hand-written mock (mock_task_repo.go).
type TaskRepository interface {
	// UpdateAnalysis overwrites the three analysis columns of the task row.
	// Repeating the call with the same arguments leaves the same state.
	// updated is false when no row matched id; that is not an error.
	UpdateAnalysis(ctx context.Context, id domain.TaskID, c domain.Classification, analyzedAt time.Time) (updated bool, err error)
}
