package models

import "time"

// ActivityMode 对象当前运动状态（由外部档案服务维护，本服务只读缓存）
type ActivityMode string

const (
	ActivityResting    ActivityMode = "resting"
	ActivityExercising ActivityMode = "exercising"
	ActivitySleeping   ActivityMode = "sleeping"
)

// ParseActivityMode 解析运动状态，无法识别时回退为 resting
func ParseActivityMode(s string) ActivityMode {
	switch ActivityMode(s) {
	case ActivityResting, ActivityExercising, ActivitySleeping:
		return ActivityMode(s)
	default:
		return ActivityResting
	}
}

// NoDataCause no-data 状态的成因（诊断用，对外状态标签不区分）
type NoDataCause string

const (
	// NoDataCauseSentinel 传感器在所有体征上报了占位值
	NoDataCauseSentinel NoDataCause = "sentinel"
	// NoDataCauseSilence 静默窗口内没有收到任何读数
	NoDataCauseSilence NoDataCause = "silence"
)

// SubjectEntry 对象实时状态表条目
type SubjectEntry struct {
	SubjectID      string               `json:"subject_id"`
	Reading        *Reading             `json:"reading,omitempty"` // 最后一次读数（静默降级后保留）
	Result         ClassificationResult `json:"result"`
	ActivityMode   ActivityMode         `json:"activity_mode"`
	NoDataCause    NoDataCause          `json:"no_data_cause,omitempty"`
	LastObservedAt time.Time            `json:"last_observed_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}
