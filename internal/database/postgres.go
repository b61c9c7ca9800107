package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"vitalink-monitor/internal/config"
)

// Connect 打开 PostgreSQL 连接池并验证连通性
// 验证失败时关闭连接池，调用方只在成功后持有连接
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
