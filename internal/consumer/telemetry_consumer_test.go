package consumer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vitalink-monitor/internal/cache"
	"vitalink-monitor/internal/consumer"
	"vitalink-monitor/internal/liveness"
	"vitalink-monitor/internal/models"
	"vitalink-monitor/internal/profile"
	"vitalink-monitor/internal/state"
)

// fakeSink 收集投递的报警事件
type fakeSink struct {
	mu     sync.Mutex
	events []*models.AlertEvent
}

func (f *fakeSink) Submit(event *models.AlertEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) all() []*models.AlertEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.AlertEvent, len(f.events))
	copy(out, f.events)
	return out
}

type fixture struct {
	mr       *miniredis.Miniredis
	table    *state.Table
	tracker  *liveness.Tracker
	snapshot *cache.SnapshotCache
	sink     *fakeSink
	consumer *consumer.TelemetryConsumer
}

func setup(t *testing.T) *fixture {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	kv := cache.NewRedisKVStore(client)
	logger := zap.NewNop()

	table := state.NewTable()
	tracker := liveness.NewTracker(time.Hour, func(string, time.Time) {}, logger)
	t.Cleanup(tracker.StopAll)

	profiles := profile.NewCache(kv, "subject:profile:", logger)
	snapshot := cache.NewSnapshotCache(kv, "telemetry:subject:", ":snapshot", 10*time.Second, logger)
	sink := &fakeSink{}

	return &fixture{
		mr:       mr,
		table:    table,
		tracker:  tracker,
		snapshot: snapshot,
		sink:     sink,
		consumer: consumer.NewTelemetryConsumer(table, tracker, profiles, snapshot, sink, logger),
	}
}

func TestHandleMessage_NormalReading(t *testing.T) {
	f := setup(t)

	payload := []byte(`{"bpm": 72, "spo2": 97.5, "tempC": 36.6, "ir": 1200}`)
	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", payload))

	entry, ok := f.table.Get("u1")
	require.True(t, ok)
	assert.Equal(t, models.StatusNormal, entry.Result.Status)
	require.NotNil(t, entry.Reading)
	require.NotNil(t, entry.Reading.BPM)
	assert.Equal(t, 72, *entry.Reading.BPM)
	assert.Empty(t, f.sink.all())
	assert.Equal(t, 1, f.tracker.Tracked())
}

func TestHandleMessage_AbnormalHeartRateSubmitsAlert(t *testing.T) {
	f := setup(t)

	payload := []byte(`{"bpm": 130, "spo2": 97.5, "tempC": 36.6}`)
	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", payload))

	events := f.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].SubjectID)
	assert.Equal(t, models.StatusAlert, events[0].Status)
	assert.Contains(t, events[0].Warnings, models.WarningAbnormalHeartRate)
}

func TestHandleMessage_LowOxygenAloneIsNotPersisted(t *testing.T) {
	f := setup(t)

	// 血氧告警会更新状态表，但只有心率异常才落库
	payload := []byte(`{"bpm": 72, "spo2": 85.0, "tempC": 36.6}`)
	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", payload))

	entry, ok := f.table.Get("u1")
	require.True(t, ok)
	assert.Equal(t, models.StatusAlert, entry.Result.Status)
	assert.Empty(t, f.sink.all())
}

func TestHandleMessage_SentinelValuesBecomeMissing(t *testing.T) {
	f := setup(t)

	payload := []byte(`{"bpm": -999, "spo2": -999, "tempC": 36.6, "ir": -999}`)
	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", payload))

	entry, ok := f.table.Get("u1")
	require.True(t, ok)
	require.NotNil(t, entry.Reading)
	assert.Nil(t, entry.Reading.BPM)
	assert.Nil(t, entry.Reading.SpO2)
	assert.Nil(t, entry.Reading.IR)
	require.NotNil(t, entry.Reading.TempC)
	assert.Equal(t, models.StatusNormal, entry.Result.Status)
}

func TestHandleMessage_AllSentinelIsNoData(t *testing.T) {
	f := setup(t)

	payload := []byte(`{"bpm": -999, "spo2": -999, "tempC": -999, "ir": -999}`)
	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", payload))

	entry, ok := f.table.Get("u1")
	require.True(t, ok)
	assert.Equal(t, models.StatusNoData, entry.Result.Status)
	assert.Equal(t, models.NoDataCauseSentinel, entry.NoDataCause)
	// 占位帧依然算收到数据，刷新静默计时
	assert.Equal(t, 1, f.tracker.Tracked())
}

func TestHandleMessage_MalformedPayloadIsDropped(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", []byte(`{not json`)))

	_, ok := f.table.Get("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, f.tracker.Tracked())
}

func TestHandleMessage_ControlFrameIsIgnored(t *testing.T) {
	f := setup(t)

	// 共享主题上的下行配置帧：无任何体征字段
	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", []byte(`{"interval": 5}`)))

	_, ok := f.table.Get("u1")
	assert.False(t, ok)
	assert.Empty(t, f.sink.all())
}

func TestHandleMessage_TopicWithoutSubjectIsDropped(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.consumer.HandleMessage("telemetry/", []byte(`{"bpm": 72}`)))
	require.NoError(t, f.consumer.HandleMessage("telemetry", []byte(`{"bpm": 72}`)))

	assert.Equal(t, 0, f.table.Len())
}

func TestHandleMessage_UsesProfileActivityMode(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.mr.Set("subject:profile:u1", "exercising"))

	payload := []byte(`{"bpm": 72}`)
	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", payload))

	entry, ok := f.table.Get("u1")
	require.True(t, ok)
	assert.Equal(t, models.ActivityExercising, entry.ActivityMode)
}

func TestHandleMessage_MirrorsSnapshot(t *testing.T) {
	f := setup(t)

	payload := []byte(`{"bpm": 72}`)
	require.NoError(t, f.consumer.HandleMessage("telemetry/u1", payload))

	snap, err := f.snapshot.GetSnapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.SubjectID)
	assert.Equal(t, models.StatusNormal, snap.Result.Status)
}

func TestHandleMessage_NestedTopicUsesLastSegment(t *testing.T) {
	f := setup(t)

	payload := []byte(`{"bpm": 72}`)
	require.NoError(t, f.consumer.HandleMessage("telemetry/ward-3/u9", payload))

	_, ok := f.table.Get("u9")
	assert.True(t, ok)
}
