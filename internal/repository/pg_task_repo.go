package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ricirt/task-insights/internal/config"
	"github.com/ricirt/task-insights/internal/db"
	"github.com/ricirt/task-insights/internal/domain"
)

const tasksTable = "tasks"

type pgTaskRepository struct {
	cfg     config.StoreConfig
	connect func(ctx context.Context, cfg config.StoreConfig) (*pgx.Conn, error)
}

// NewPgTaskRepository returns a TaskRepository backed by PostgreSQL.
// Every call opens its own connection and closes it before returning.
func NewPgTaskRepository(cfg config.StoreConfig) TaskRepository {
	return &pgTaskRepository{cfg: cfg, connect: db.Connect}
}

func (r *pgTaskRepository) UpdateAnalysis(ctx context.Context, id domain.TaskID, c domain.Classification, analyzedAt time.Time) (bool, error) {
	query, args, err := buildUpdateAnalysis(id, c, analyzedAt)
	if err != nil {
		return false, err
	}

	conn, err := r.connect(ctx, r.cfg)
	if err != nil {
		return false, err
	}
	defer conn.Close(context.WithoutCancel(ctx)) //nolint:errcheck

	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update task analysis: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit task analysis: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// buildUpdateAnalysis renders the single UPDATE statement for one task.
// The task id is passed as text so both integer and uuid keys work.
func buildUpdateAnalysis(id domain.TaskID, c domain.Classification, analyzedAt time.Time) (string, []any, error) {
	query, args, err := sq.Update(tasksTable).
		Set("ai_category", string(c.Category)).
		Set("ai_sentiment", string(c.Sentiment)).
		Set("ai_analyzed_at", analyzedAt.UTC()).
		Where(sq.Eq{"id": string(id)}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build update query: %w", err)
	}
	return query, args, nil
}
