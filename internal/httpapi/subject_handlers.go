package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"vitalink-monitor/internal/models"
	"vitalink-monitor/internal/repository"
	"vitalink-monitor/internal/state"
)

// MonitorControl 服务层提供的控制操作（移除监控、下发设备配置）
type MonitorControl interface {
	RemoveSubject(ctx context.Context, subjectID string) error
	PublishDeviceSettings(subjectID string, settings json.RawMessage) error
}

// SubjectHandler 实现监控 API
type SubjectHandler struct {
	table    *state.Table
	repo     *repository.AlertEventsRepository
	control  MonitorControl
	pageSize int
	logger   *zap.Logger
}

func NewSubjectHandler(
	table *state.Table,
	repo *repository.AlertEventsRepository,
	control MonitorControl,
	defaultPageSize int,
	logger *zap.Logger,
) *SubjectHandler {
	if defaultPageSize <= 0 {
		defaultPageSize = 10
	}
	return &SubjectHandler{
		table:    table,
		repo:     repo,
		control:  control,
		pageSize: defaultPageSize,
		logger:   logger,
	}
}

// GET /monitor/api/v1/subjects
func (h *SubjectHandler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	entries := h.table.List()
	writeJSON(w, http.StatusOK, Ok(entries))
}

// SubjectDetail 单个对象的状态快照，附带报警历史条数
type SubjectDetail struct {
	models.SubjectEntry
	AlertCount int `json:"alert_count"`
}

// GET /monitor/api/v1/subjects/{id}
func (h *SubjectHandler) GetSubject(w http.ResponseWriter, r *http.Request, subjectID string) {
	entry, ok := h.table.Get(subjectID)
	if !ok {
		writeJSON(w, http.StatusNotFound, Fail("subject not found"))
		return
	}

	count, err := h.repo.CountAlertEvents(r.Context(), subjectID)
	if err != nil {
		// 历史条数是附带信息，查询失败不影响状态读取
		h.logger.Warn("Failed to count alert events",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		count = 0
	}

	writeJSON(w, http.StatusOK, Ok(SubjectDetail{SubjectEntry: entry, AlertCount: count}))
}

// AlertHistoryPage 报警历史分页响应
type AlertHistoryPage struct {
	Items      []*models.AlertEvent `json:"items"`
	Pagination Pagination           `json:"pagination"`
}

type Pagination struct {
	Size  int `json:"size"`
	Page  int `json:"page"`
	Count int `json:"count"`
}

// GET /monitor/api/v1/subjects/{id}/alerts
// params:
// - from? / to? RFC3339（闭区间）
// - page? number (default 1)
// - size? number (default 10)
func (h *SubjectHandler) GetAlerts(w http.ResponseWriter, r *http.Request, subjectID string) {
	q := r.URL.Query()

	filters := repository.AlertEventFilters{}
	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid 'from' timestamp, expected RFC3339"))
			return
		}
		filters.From = &ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid 'to' timestamp, expected RFC3339"))
			return
		}
		filters.To = &ts
	}

	page := parseInt(q.Get("page"), 1)
	size := parseInt(q.Get("size"), h.pageSize)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = h.pageSize
	}

	events, total, err := h.repo.QueryAlertEvents(r.Context(), subjectID, filters, page, size)
	if err != nil {
		h.logger.Error("Failed to query alert events",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to query alert history"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(AlertHistoryPage{
		Items: events,
		Pagination: Pagination{
			Size:  size,
			Page:  page,
			Count: total,
		},
	}))
}

// DELETE /monitor/api/v1/subjects/{id}
// params:
// - purge? bool：同时清空该对象的报警历史
func (h *SubjectHandler) RemoveSubject(w http.ResponseWriter, r *http.Request, subjectID string) {
	if _, ok := h.table.Get(subjectID); !ok {
		writeJSON(w, http.StatusNotFound, Fail("subject not found"))
		return
	}

	if r.URL.Query().Get("purge") == "true" {
		if err := h.repo.ResetSubjectHistory(r.Context(), subjectID); err != nil {
			h.logger.Error("Failed to purge alert history",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, Fail("failed to purge alert history"))
			return
		}
	}

	if err := h.control.RemoveSubject(r.Context(), subjectID); err != nil {
		h.logger.Error("Failed to remove subject",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to remove subject"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]string{"subject_id": subjectID}))
}

// POST /monitor/api/v1/subjects/{id}/device-settings
// 请求体原样透传给设备（仅校验是合法 JSON 对象）
func (h *SubjectHandler) PublishDeviceSettings(w http.ResponseWriter, r *http.Request, subjectID string) {
	body, err := readBody(r, 64*1024)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("failed to read request body"))
		return
	}

	var settings map[string]any
	if err := json.Unmarshal(body, &settings); err != nil || len(settings) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("request body must be a non-empty JSON object"))
		return
	}

	if err := h.control.PublishDeviceSettings(subjectID, body); err != nil {
		h.logger.Error("Failed to publish device settings",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to publish device settings"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]string{"subject_id": subjectID}))
}
