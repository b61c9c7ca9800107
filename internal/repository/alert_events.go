package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vitalink-monitor/internal/models"

	"go.uber.org/zap"
)

// AlertEventsRepository 报警事件仓库
// 仅追加：append 是唯一写入口，按 FIFO 淘汰超出上限的最旧事件
type AlertEventsRepository struct {
	db     *sql.DB
	cap    int
	logger *zap.Logger
}

// NewAlertEventsRepository 创建报警事件仓库
// cap 为每个对象保留的事件数量上限（<=0 时使用默认值 1000）
func NewAlertEventsRepository(db *sql.DB, cap int, logger *zap.Logger) *AlertEventsRepository {
	if cap <= 0 {
		cap = 1000
	}
	return &AlertEventsRepository{
		db:     db,
		cap:    cap,
		logger: logger,
	}
}

// AlertEventFilters 报警事件过滤条件
type AlertEventFilters struct {
	// 时间段过滤（闭区间，基于 observed_at）
	From *time.Time // 开始时间（observed_at >= From）
	To   *time.Time // 结束时间（observed_at <= To）
}

// AppendAlertEvent 追加报警事件并淘汰超出上限的最旧事件（同一事务）
func (r *AlertEventsRepository) AppendAlertEvent(ctx context.Context, event *models.AlertEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	warningsJSON, err := json.Marshal(event.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO alert_events (
			event_id,
			subject_id,
			bpm,
			spo2,
			temp_c,
			ir,
			status,
			warnings,
			activity_mode,
			observed_at,
			observed_at_local,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err = tx.ExecContext(ctx, insertQuery,
		event.EventID,
		event.SubjectID,
		nullableInt(event.BPM),
		nullableFloat(event.SpO2),
		nullableFloat(event.TempC),
		nullableInt64(event.IR),
		string(event.Status),
		warningsJSON,
		string(event.ActivityMode),
		event.ObservedAt,
		event.ObservedAtLocal,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}

	// FIFO 淘汰：只保留该对象最新的 cap 条
	pruneQuery := `
		DELETE FROM alert_events
		WHERE subject_id = $1
		  AND id NOT IN (
			SELECT id FROM alert_events
			WHERE subject_id = $1
			ORDER BY id DESC
			LIMIT $2
		  )
	`

	if _, err := tx.ExecContext(ctx, pruneQuery, event.SubjectID, r.cap); err != nil {
		return fmt.Errorf("failed to prune alert events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert event: %w", err)
	}

	return nil
}

// QueryAlertEvents 按时间段分页查询（最新在前，页码从 1 开始）
// 超出末页的页码返回空列表而非错误
func (r *AlertEventsRepository) QueryAlertEvents(ctx context.Context, subjectID string, filters AlertEventFilters, page, size int) ([]*models.AlertEvent, int, error) {
	if subjectID == "" {
		return nil, 0, fmt.Errorf("subject_id is required")
	}

	// 构建 WHERE 子句
	where := "subject_id = $1"
	args := []interface{}{subjectID}
	argN := 2

	if filters.From != nil {
		where += fmt.Sprintf(" AND observed_at >= $%d", argN)
		args = append(args, *filters.From)
		argN++
	}
	if filters.To != nil {
		where += fmt.Sprintf(" AND observed_at <= $%d", argN)
		args = append(args, *filters.To)
		argN++
	}

	// 计算总数
	queryCount := fmt.Sprintf(`SELECT COUNT(*) FROM alert_events WHERE %s`, where)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alert events: %w", err)
	}

	// 分页处理
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 10
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT
			event_id,
			subject_id,
			bpm,
			spo2,
			temp_c,
			ir,
			status,
			warnings,
			activity_mode,
			observed_at,
			observed_at_local,
			created_at
		FROM alert_events
		WHERE %s
		ORDER BY observed_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, argN, argN+1)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	events := []*models.AlertEvent{}
	for rows.Next() {
		event, err := scanAlertEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alert events: %w", err)
	}

	return events, total, nil
}

// CountAlertEvents 统计某对象的报警事件数量
func (r *AlertEventsRepository) CountAlertEvents(ctx context.Context, subjectID string) (int, error) {
	if subjectID == "" {
		return 0, fmt.Errorf("subject_id is required")
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_events WHERE subject_id = $1`,
		subjectID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count alert events: %w", err)
	}

	return total, nil
}

// ResetSubjectHistory 清空某对象的全部报警历史（唯一的删除入口）
func (r *AlertEventsRepository) ResetSubjectHistory(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM alert_events WHERE subject_id = $1`,
		subjectID,
	); err != nil {
		return fmt.Errorf("failed to reset alert history: %w", err)
	}

	r.logger.Info("Alert history reset", zap.String("subject_id", subjectID))
	return nil
}

func scanAlertEvent(rows *sql.Rows) (*models.AlertEvent, error) {
	var event models.AlertEvent
	var bpm sql.NullInt64
	var spo2, tempC sql.NullFloat64
	var ir sql.NullInt64
	var status, activityMode string
	var warningsJSON []byte

	err := rows.Scan(
		&event.EventID,
		&event.SubjectID,
		&bpm,
		&spo2,
		&tempC,
		&ir,
		&status,
		&warningsJSON,
		&activityMode,
		&event.ObservedAt,
		&event.ObservedAtLocal,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert event: %w", err)
	}

	// 处理可空字段
	if bpm.Valid {
		v := int(bpm.Int64)
		event.BPM = &v
	}
	if spo2.Valid {
		event.SpO2 = &spo2.Float64
	}
	if tempC.Valid {
		event.TempC = &tempC.Float64
	}
	if ir.Valid {
		event.IR = &ir.Int64
	}

	event.Status = models.VitalStatus(status)
	event.ActivityMode = models.ActivityMode(activityMode)

	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &event.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}

	return &event, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
