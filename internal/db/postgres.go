package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ricirt/task-insights/internal/config"
)

// Connect opens a single, unpooled connection and verifies connectivity.
// Callers own the connection and must Close it; nothing is reused across calls.
func Connect(ctx context.Context, cfg config.StoreConfig) (*pgx.Conn, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse store config: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("ping store: %w", err)
	}

	return conn, nil
}
