package state

import (
	"sync"
	"time"

	"vitalink-monitor/internal/models"
)

// Table 对象实时状态表（进程内读模型）
// 注册表锁只保护 map 结构；每个对象持有独立的槽锁，
// 消息路由和静默检测对同一对象的写入在槽锁下串行，互不相关的对象不排队
type Table struct {
	mu       sync.RWMutex
	subjects map[string]*subjectSlot
}

type subjectSlot struct {
	mu    sync.Mutex
	entry models.SubjectEntry
}

// NewTable 创建状态表
func NewTable() *Table {
	return &Table{
		subjects: make(map[string]*subjectSlot),
	}
}

// slot 获取或创建对象槽
func (t *Table) slot(subjectID string) *subjectSlot {
	t.mu.RLock()
	s, ok := t.subjects[subjectID]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.subjects[subjectID]; ok {
		return s
	}
	s = &subjectSlot{entry: models.SubjectEntry{SubjectID: subjectID}}
	t.subjects[subjectID] = s
	return s
}

// Upsert 写入一次读数的分级结果
// 按时间戳裁决：更旧的读数不会覆盖更新的状态（消息乱序或与静默检测竞争时）
func (t *Table) Upsert(subjectID string, reading models.Reading, result models.ClassificationResult, activity models.ActivityMode) models.SubjectEntry {
	s := t.slot(subjectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if reading.ObservedAt.Before(s.entry.LastObservedAt) {
		return s.entry
	}

	var cause models.NoDataCause
	if result.Status == models.StatusNoData {
		cause = models.NoDataCauseSentinel
	}

	r := reading
	s.entry = models.SubjectEntry{
		SubjectID:      subjectID,
		Reading:        &r,
		Result:         result,
		ActivityMode:   activity,
		NoDataCause:    cause,
		LastObservedAt: reading.ObservedAt,
		UpdatedAt:      time.Now(),
	}
	return s.entry
}

// MarkNoData 静默检测触发时将对象降级为 no-data
// 保留最后一次读数的数值；若在触发时刻之后已有新读数写入则放弃
// （时间戳相等视为读数胜出，触发必须严格晚于最后读数才生效）。
// 只作用于已存在的条目：对象被移除后到达的迟到触发不得复活条目，
// 所以这里绝不创建新槽
func (t *Table) MarkNoData(subjectID string, firedAt time.Time) bool {
	t.mu.RLock()
	s, ok := t.subjects[subjectID]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !firedAt.After(s.entry.LastObservedAt) {
		return false
	}

	s.entry.Result = models.ClassificationResult{Status: models.StatusNoData}
	s.entry.NoDataCause = models.NoDataCauseSilence
	s.entry.UpdatedAt = time.Now()
	return true
}

// SetActivityMode 更新对象的运动状态缓存值（不改变读数和分级）
func (t *Table) SetActivityMode(subjectID string, activity models.ActivityMode) {
	s := t.slot(subjectID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry.ActivityMode = activity
	s.entry.UpdatedAt = time.Now()
}

// Get 读取单个对象状态
func (t *Table) Get(subjectID string) (models.SubjectEntry, bool) {
	t.mu.RLock()
	s, ok := t.subjects[subjectID]
	t.mu.RUnlock()
	if !ok {
		return models.SubjectEntry{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry, true
}

// List 读取全部对象状态
func (t *Table) List() []models.SubjectEntry {
	t.mu.RLock()
	slots := make([]*subjectSlot, 0, len(t.subjects))
	for _, s := range t.subjects {
		slots = append(slots, s)
	}
	t.mu.RUnlock()

	entries := make([]models.SubjectEntry, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		entries = append(entries, s.entry)
		s.mu.Unlock()
	}
	return entries
}

// Remove 删除对象（会话结束的外部信号）
func (t *Table) Remove(subjectID string) {
	t.mu.Lock()
	delete(t.subjects, subjectID)
	t.mu.Unlock()
}

// Len 当前跟踪的对象数量
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subjects)
}
