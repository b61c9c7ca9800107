package models

import "time"

// AlertTimeLayout 报警事件展示用的本地时间格式（与历史页面显示一致）
const AlertTimeLayout = "02/01/2006 15:04:05"

// AlertEvent 报警事件（仅在触发 AbnormalHeartRate 时持久化，写入后不可变）
type AlertEvent struct {
	EventID         string        `json:"event_id" db:"event_id"`
	SubjectID       string        `json:"subject_id" db:"subject_id"`
	BPM             *int          `json:"bpm" db:"bpm"`
	SpO2            *float64      `json:"spo2" db:"spo2"`
	TempC           *float64      `json:"temp_c" db:"temp_c"`
	IR              *int64        `json:"ir" db:"ir"`
	Status          VitalStatus   `json:"status" db:"status"` // 恒为 alert
	Warnings        []WarningKind `json:"warnings" db:"warnings"`
	ActivityMode    ActivityMode  `json:"activity_mode" db:"activity_mode"` // 触发时刻的运动状态快照
	ObservedAt      time.Time     `json:"observed_at" db:"observed_at"`     // 可排序的原始时刻（过滤、排序依据）
	ObservedAtLocal string        `json:"observed_at_local" db:"observed_at_local"` // 展示用本地时间字符串
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// NewAlertEvent 由读数和分级结果构建报警事件
func NewAlertEvent(eventID string, reading Reading, result ClassificationResult, activity ActivityMode) *AlertEvent {
	return &AlertEvent{
		EventID:         eventID,
		SubjectID:       reading.SubjectID,
		BPM:             reading.BPM,
		SpO2:            reading.SpO2,
		TempC:           reading.TempC,
		IR:              reading.IR,
		Status:          result.Status,
		Warnings:        result.Warnings,
		ActivityMode:    activity,
		ObservedAt:      reading.ObservedAt,
		ObservedAtLocal: reading.ObservedAt.Local().Format(AlertTimeLayout),
		CreatedAt:       time.Now(),
	}
}
