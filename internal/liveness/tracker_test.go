package liveness_test

import (
	"sync"
	"testing"
	"time"

	"vitalink-monitor/internal/liveness"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// expireRecorder 线程安全地记录超时回调
type expireRecorder struct {
	mu    sync.Mutex
	fired map[string]int
}

func newExpireRecorder() *expireRecorder {
	return &expireRecorder{fired: make(map[string]int)}
}

func (r *expireRecorder) record(subjectID string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired[subjectID]++
}

func (r *expireRecorder) count(subjectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired[subjectID]
}

func TestTracker_FiresAfterWindow(t *testing.T) {
	rec := newExpireRecorder()
	tracker := liveness.NewTracker(30*time.Millisecond, rec.record, zap.NewNop())
	defer tracker.StopAll()

	tracker.Touch("u1")

	require.Eventually(t, func() bool {
		return rec.count("u1") >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestTracker_TouchResetsWindow(t *testing.T) {
	rec := newExpireRecorder()
	tracker := liveness.NewTracker(60*time.Millisecond, rec.record, zap.NewNop())
	defer tracker.StopAll()

	tracker.Touch("u1")

	// 持续续期，窗口不应触发
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		tracker.Touch("u1")
	}
	assert.Equal(t, 0, rec.count("u1"))

	// 停止续期后触发
	require.Eventually(t, func() bool {
		return rec.count("u1") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTracker_RemoveCancelsTimer(t *testing.T) {
	rec := newExpireRecorder()
	tracker := liveness.NewTracker(30*time.Millisecond, rec.record, zap.NewNop())
	defer tracker.StopAll()

	tracker.Touch("u1")
	tracker.Remove("u1")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count("u1"))
	assert.Equal(t, 0, tracker.Tracked())
}

func TestTracker_IndependentTimersPerSubject(t *testing.T) {
	rec := newExpireRecorder()
	tracker := liveness.NewTracker(40*time.Millisecond, rec.record, zap.NewNop())
	defer tracker.StopAll()

	tracker.Touch("u1")
	tracker.Touch("u2")
	assert.Equal(t, 2, tracker.Tracked())

	// u1 持续活跃，u2 静默
	deadline := time.Now().Add(120 * time.Millisecond)
	for time.Now().Before(deadline) {
		tracker.Touch("u1")
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, 0, rec.count("u1"))
	assert.GreaterOrEqual(t, rec.count("u2"), 1)
}

func TestTracker_StopAllPreventsFiresAndTouches(t *testing.T) {
	rec := newExpireRecorder()
	tracker := liveness.NewTracker(30*time.Millisecond, rec.record, zap.NewNop())

	tracker.Touch("u1")
	tracker.Touch("u2")
	tracker.StopAll()

	// 拆除后 Touch 不再注册定时器
	tracker.Touch("u3")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, rec.count("u1"))
	assert.Equal(t, 0, rec.count("u2"))
	assert.Equal(t, 0, rec.count("u3"))
	assert.Equal(t, 0, tracker.Tracked())
}

func TestTracker_ConcurrentTouchAndRemove(t *testing.T) {
	rec := newExpireRecorder()
	tracker := liveness.NewTracker(10*time.Millisecond, rec.record, zap.NewNop())
	defer tracker.StopAll()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tracker.Touch("u1")
				if j%50 == 0 {
					tracker.Remove("u1")
				}
			}
		}()
	}
	wg.Wait()
}
