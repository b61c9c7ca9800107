package classifier

import "vitalink-monitor/internal/models"

// 临床阈值
// BPM 区间与运动状态相关（见 bpmBand），SpO2 和体温为固定阈值
const (
	SpO2Min  = 90.0
	TempCMin = 26.0
	TempCMax = 40.0
)

// bpmBand 返回指定运动状态下可接受的心率区间（闭区间）
// 当前所有状态均使用静息区间 [50, 120]；按状态细分是预留的扩展点，
// 无法识别的状态按静息处理
func bpmBand(activity models.ActivityMode) (min, max int) {
	switch activity {
	case models.ActivityResting, models.ActivityExercising, models.ActivitySleeping:
		return 50, 120
	default:
		return 50, 120
	}
}

// Classify 将一次读数按临床阈值分级
// 纯函数：缺失的体征（nil）不产生告警也不参与区间判断；
// status 由告警集合派生：有告警为 alert，无告警但存在有效体征为 normal，
// 三项体征全部缺失为 no-data
func Classify(reading models.Reading, activity models.ActivityMode) models.ClassificationResult {
	var warnings []models.WarningKind

	if reading.BPM != nil {
		min, max := bpmBand(activity)
		if *reading.BPM < min || *reading.BPM > max {
			warnings = append(warnings, models.WarningAbnormalHeartRate)
		}
	}

	if reading.SpO2 != nil && *reading.SpO2 < SpO2Min {
		warnings = append(warnings, models.WarningLowOxygen)
	}

	if reading.TempC != nil && (*reading.TempC < TempCMin || *reading.TempC > TempCMax) {
		warnings = append(warnings, models.WarningAbnormalTemperature)
	}

	status := models.StatusNoData
	switch {
	case len(warnings) > 0:
		status = models.StatusAlert
	case reading.BPM != nil || reading.SpO2 != nil || reading.TempC != nil:
		status = models.StatusNormal
	}

	return models.ClassificationResult{
		Status:   status,
		Warnings: warnings,
	}
}
