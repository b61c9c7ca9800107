package repository

import (
	"database/sql"
	"fmt"
)

// alert_events 表结构
// id 为追加序号：读数按接收顺序落库，序号序即时间序，FIFO 淘汰以它为准
const alertEventsTableSQL = `
	CREATE TABLE IF NOT EXISTS alert_events (
		id BIGSERIAL PRIMARY KEY,
		event_id UUID NOT NULL UNIQUE,
		subject_id TEXT NOT NULL,
		bpm INTEGER,
		spo2 DOUBLE PRECISION,
		temp_c DOUBLE PRECISION,
		ir BIGINT,
		status TEXT NOT NULL,
		warnings JSONB NOT NULL DEFAULT '[]',
		activity_mode TEXT NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		observed_at_local TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
`

const alertEventsIndexSQL = `
	CREATE INDEX IF NOT EXISTS idx_alert_events_subject_observed
	ON alert_events (subject_id, observed_at DESC)
`

// EnsureSchema 创建报警事件表（幂等）
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(alertEventsTableSQL); err != nil {
		return fmt.Errorf("failed to create alert_events table: %w", err)
	}
	if _, err := db.Exec(alertEventsIndexSQL); err != nil {
		return fmt.Errorf("failed to create alert_events index: %w", err)
	}
	return nil
}
