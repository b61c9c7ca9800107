package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vitalink-monitor/internal/cache"
	"vitalink-monitor/internal/classifier"
	"vitalink-monitor/internal/liveness"
	"vitalink-monitor/internal/models"
	"vitalink-monitor/internal/profile"
	"vitalink-monitor/internal/state"
)

// AlertSink 报警事件的落库入口（由服务层实现为异步写入）
type AlertSink interface {
	Submit(event *models.AlertEvent)
}

// TelemetryPayload 设备上报的遥测帧
// 所有字段可缺省；控制帧（无任何体征字段）不属于遥测
type TelemetryPayload struct {
	BPM   *float64 `json:"bpm"`
	SpO2  *float64 `json:"spo2"`
	TempC *float64 `json:"tempC"`
	IR    *int64   `json:"ir"`
}

// TelemetryConsumer 遥测消费者：解码、分类、更新状态表并投递报警
type TelemetryConsumer struct {
	table    *state.Table
	tracker  *liveness.Tracker
	profiles *profile.Cache
	snapshot *cache.SnapshotCache
	sink     AlertSink
	logger   *zap.Logger
	now      func() time.Time
}

// NewTelemetryConsumer 创建遥测消费者
func NewTelemetryConsumer(
	table *state.Table,
	tracker *liveness.Tracker,
	profiles *profile.Cache,
	snapshot *cache.SnapshotCache,
	sink AlertSink,
	logger *zap.Logger,
) *TelemetryConsumer {
	return &TelemetryConsumer{
		table:    table,
		tracker:  tracker,
		profiles: profiles,
		snapshot: snapshot,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleMessage 处理一条 MQTT 消息
// 所有失败都在内部记录并丢弃该帧，永远返回 nil，保证消费不中断
func (c *TelemetryConsumer) HandleMessage(topic string, payload []byte) error {
	subjectID := subjectIDFromTopic(topic)
	if subjectID == "" {
		c.logger.Warn("Dropping message without subject id",
			zap.String("topic", topic),
		)
		return nil
	}

	var frame TelemetryPayload
	if err := json.Unmarshal(payload, &frame); err != nil {
		c.logger.Error("Failed to decode telemetry payload",
			zap.String("topic", topic),
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		return nil
	}

	// 共享主题上的控制帧：没有任何体征字段，静默跳过
	if frame.BPM == nil && frame.SpO2 == nil && frame.TempC == nil && frame.IR == nil {
		c.logger.Debug("Ignoring non-telemetry frame",
			zap.String("topic", topic),
			zap.String("subject_id", subjectID),
		)
		return nil
	}

	reading := c.buildReading(subjectID, frame)

	ctx := context.Background()
	activity := c.profiles.ActivityMode(ctx, subjectID)

	result := classifier.Classify(reading, activity)

	entry := c.table.Upsert(subjectID, reading, result, activity)

	// 读数本身也会刷新静默计时
	c.tracker.Touch(subjectID)

	// 快照镜像失败不影响主流程
	if c.snapshot != nil {
		if err := c.snapshot.UpdateSnapshot(ctx, &entry); err != nil {
			c.logger.Warn("Failed to mirror subject snapshot",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		}
	}

	if result.HasWarning(models.WarningAbnormalHeartRate) {
		event := models.NewAlertEvent(uuid.New().String(), reading, result, activity)
		c.sink.Submit(event)
	}

	return nil
}

// buildReading 将遥测帧转换为读数（占位值转为缺失）
func (c *TelemetryConsumer) buildReading(subjectID string, frame TelemetryPayload) models.Reading {
	reading := models.Reading{
		SubjectID:  subjectID,
		ObservedAt: c.now(),
	}

	if v := frame.BPM; v != nil && *v != models.SentinelValue {
		bpm := int(*v)
		reading.BPM = &bpm
	}
	if v := frame.SpO2; v != nil && *v != models.SentinelValue {
		spo2 := *v
		reading.SpO2 = &spo2
	}
	if v := frame.TempC; v != nil && *v != models.SentinelValue {
		temp := *v
		reading.TempC = &temp
	}
	if v := frame.IR; v != nil && *v != int64(models.SentinelValue) {
		ir := *v
		reading.IR = &ir
	}

	return reading
}

// subjectIDFromTopic 从主题最后一段提取对象 ID
func subjectIDFromTopic(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return ""
	}
	return topic[idx+1:]
}
