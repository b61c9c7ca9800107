package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vitalink-monitor/internal/models"
)

// SnapshotCache 将对象最新状态镜像到 Redis（供外部看板读取）
type SnapshotCache struct {
	kv        KVStore
	keyPrefix string
	suffix    string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewSnapshotCache 创建快照缓存
func NewSnapshotCache(kv KVStore, keyPrefix, suffix string, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{
		kv:        kv,
		keyPrefix: keyPrefix,
		suffix:    suffix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *SnapshotCache) key(subjectID string) string {
	return c.keyPrefix + subjectID + c.suffix
}

// UpdateSnapshot 写入对象状态快照
func (c *SnapshotCache) UpdateSnapshot(ctx context.Context, entry *models.SubjectEntry) error {
	if entry == nil || entry.SubjectID == "" {
		return fmt.Errorf("entry with subject_id is required")
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal subject snapshot: %w", err)
	}

	if err := c.kv.Set(ctx, c.key(entry.SubjectID), string(jsonData), c.ttl); err != nil {
		return fmt.Errorf("failed to set snapshot cache: %w", err)
	}

	c.logger.Debug("Updated subject snapshot",
		zap.String("subject_id", entry.SubjectID),
		zap.String("status", string(entry.Result.Status)),
	)

	return nil
}

// GetSnapshot 读取对象状态快照，缓存不存在时返回 ErrCacheMiss
func (c *SnapshotCache) GetSnapshot(ctx context.Context, subjectID string) (*models.SubjectEntry, error) {
	val, err := c.kv.Get(ctx, c.key(subjectID))
	if err != nil {
		return nil, err
	}

	var entry models.SubjectEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subject snapshot: %w", err)
	}
	return &entry, nil
}

// DeleteSnapshot 删除对象快照（对象被移除监控时调用）
func (c *SnapshotCache) DeleteSnapshot(ctx context.Context, subjectID string) error {
	if err := c.kv.Del(ctx, c.key(subjectID)); err != nil {
		return fmt.Errorf("failed to delete snapshot cache: %w", err)
	}
	return nil
}
