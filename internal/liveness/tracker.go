package liveness

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExpireFunc 静默窗口超时回调
// firedAt 为触发时刻，用于和读数时间戳裁决先后
type ExpireFunc func(subjectID string, firedAt time.Time)

// Tracker 对象静默检测器
// 每个对象一个定时器，收到读数时重置；窗口内没有新读数则回调降级。
// 定时器句柄按对象标识注册在同一把锁下，移除对象时取消并删除句柄，
// 世代计数保证已取消/已重置的定时器迟到触发时不会产生回调
type Tracker struct {
	mu       sync.Mutex
	window   time.Duration
	onExpire ExpireFunc
	timers   map[string]*subjectTimer
	stopped  bool
	logger   *zap.Logger
}

type subjectTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewTracker 创建静默检测器
func NewTracker(window time.Duration, onExpire ExpireFunc, logger *zap.Logger) *Tracker {
	return &Tracker{
		window:   window,
		onExpire: onExpire,
		timers:   make(map[string]*subjectTimer),
		logger:   logger,
	}
}

// Touch 收到对象读数，重置（或创建）该对象的静默定时器
func (t *Tracker) Touch(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	if st, ok := t.timers[subjectID]; ok {
		// 旧定时器携带旧世代，停止后重建；迟到的旧触发因世代不匹配被放弃
		st.gen++
		st.timer.Stop()
		st.timer = t.newTimer(subjectID, st.gen)
		return
	}

	st := &subjectTimer{gen: 0}
	st.timer = t.newTimer(subjectID, 0)
	t.timers[subjectID] = st

	t.logger.Debug("Liveness timer created", zap.String("subject_id", subjectID))
}

// newTimer 必须在持有 t.mu 时调用
func (t *Tracker) newTimer(subjectID string, gen uint64) *time.Timer {
	return time.AfterFunc(t.window, func() {
		t.fire(subjectID, gen)
	})
}

// fire 定时器触发入口：校验世代后才执行回调
func (t *Tracker) fire(subjectID string, gen uint64) {
	firedAt := time.Now()

	t.mu.Lock()
	st, ok := t.timers[subjectID]
	if t.stopped || !ok || st.gen != gen {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.logger.Debug("Liveness window elapsed",
		zap.String("subject_id", subjectID),
		zap.Duration("window", t.window),
	)

	t.onExpire(subjectID, firedAt)
}

// Remove 移除对象：取消并删除定时器句柄
func (t *Tracker) Remove(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.timers[subjectID]; ok {
		st.gen++
		st.timer.Stop()
		delete(t.timers, subjectID)
	}
}

// StopAll 停止全部定时器（会话拆除时调用，之后 Touch 不再生效）
func (t *Tracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for subjectID, st := range t.timers {
		st.gen++
		st.timer.Stop()
		delete(t.timers, subjectID)
	}
}

// Tracked 当前被跟踪的对象数量
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
