package profile

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"vitalink-monitor/internal/cache"
	"vitalink-monitor/internal/models"
)

// Cache 对象运动状态的只读缓存
// 档案由外部服务写入 Redis，本服务只读；Redis 故障时回退到
// 最近一次成功读取的值，完全没有档案时回退为 resting
type Cache struct {
	kv        cache.KVStore
	keyPrefix string
	logger    *zap.Logger

	mu   sync.RWMutex
	last map[string]models.ActivityMode
}

// NewCache 创建档案缓存
func NewCache(kv cache.KVStore, keyPrefix string, logger *zap.Logger) *Cache {
	return &Cache{
		kv:        kv,
		keyPrefix: keyPrefix,
		logger:    logger,
		last:      make(map[string]models.ActivityMode),
	}
}

// ActivityMode 查询对象当前运动状态
func (c *Cache) ActivityMode(ctx context.Context, subjectID string) models.ActivityMode {
	val, err := c.kv.Get(ctx, c.keyPrefix+subjectID)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return c.fallback(subjectID)
		}
		c.logger.Warn("Profile lookup failed, using last known activity mode",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		return c.fallback(subjectID)
	}

	mode := models.ParseActivityMode(val)

	c.mu.Lock()
	c.last[subjectID] = mode
	c.mu.Unlock()

	return mode
}

// Forget 丢弃对象的回退值（对象被移除监控时调用）
func (c *Cache) Forget(subjectID string) {
	c.mu.Lock()
	delete(c.last, subjectID)
	c.mu.Unlock()
}

func (c *Cache) fallback(subjectID string) models.ActivityMode {
	c.mu.RLock()
	mode, ok := c.last[subjectID]
	c.mu.RUnlock()

	if !ok {
		return models.ActivityResting
	}
	return mode
}
