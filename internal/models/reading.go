package models

import "time"

// SentinelValue 传感器无数据时上报的占位值
// 解码边界将其转换为 nil 指针，之后不再参与任何数值比较
const SentinelValue = -999

// Reading 一次遥测采样（解码后的内部表示，缺失的体征为 nil）
type Reading struct {
	SubjectID  string    `json:"subject_id"`
	BPM        *int      `json:"bpm"`     // 心率
	SpO2       *float64  `json:"spo2"`    // 血氧饱和度（0-100）
	TempC      *float64  `json:"temp_c"`  // 皮肤温度（摄氏度）
	IR         *int64    `json:"ir"`      // PPG 原始值（仅展示，不参与分级）
	ObservedAt time.Time `json:"observed_at"` // 接收端解码时刻（不信任载荷自带时间）
}

// VitalStatus 对象状态标签
type VitalStatus string

const (
	StatusNormal VitalStatus = "normal"
	StatusAlert  VitalStatus = "alert"
	StatusNoData VitalStatus = "no-data"
)

// WarningKind 单项体征告警
type WarningKind string

const (
	WarningAbnormalHeartRate   WarningKind = "AbnormalHeartRate"
	WarningLowOxygen           WarningKind = "LowOxygen"
	WarningAbnormalTemperature WarningKind = "AbnormalTemperature"
)

// ClassificationResult 分级结果（派生值，不单独持久化）
type ClassificationResult struct {
	Status   VitalStatus   `json:"status"`
	Warnings []WarningKind `json:"warnings"`
}

// HasWarning 判断是否包含指定告警
func (r ClassificationResult) HasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w == kind {
			return true
		}
	}
	return false
}
