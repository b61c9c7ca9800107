package profile_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vitalink-monitor/internal/cache"
	"vitalink-monitor/internal/models"
	"vitalink-monitor/internal/profile"
)

func setupProfileCache(t *testing.T) (*miniredis.Miniredis, *profile.Cache) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	kv := cache.NewRedisKVStore(client)
	return mr, profile.NewCache(kv, "subject:profile:", zap.NewNop())
}

func TestActivityMode_ReadsProfile(t *testing.T) {
	mr, pc := setupProfileCache(t)

	require.NoError(t, mr.Set("subject:profile:u1", "exercising"))

	mode := pc.ActivityMode(context.Background(), "u1")
	assert.Equal(t, models.ActivityExercising, mode)
}

func TestActivityMode_MissDefaultsToResting(t *testing.T) {
	_, pc := setupProfileCache(t)

	mode := pc.ActivityMode(context.Background(), "unknown")
	assert.Equal(t, models.ActivityResting, mode)
}

func TestActivityMode_UnrecognizedValueFallsBackToResting(t *testing.T) {
	mr, pc := setupProfileCache(t)

	require.NoError(t, mr.Set("subject:profile:u1", "levitating"))

	mode := pc.ActivityMode(context.Background(), "u1")
	assert.Equal(t, models.ActivityResting, mode)
}

func TestActivityMode_RedisFailureUsesLastKnown(t *testing.T) {
	mr, pc := setupProfileCache(t)

	require.NoError(t, mr.Set("subject:profile:u1", "sleeping"))
	require.Equal(t, models.ActivitySleeping, pc.ActivityMode(context.Background(), "u1"))

	// Redis 宕机后继续返回最近一次成功读取的值
	mr.Close()

	mode := pc.ActivityMode(context.Background(), "u1")
	assert.Equal(t, models.ActivitySleeping, mode)
}

func TestForget_DropsFallbackValue(t *testing.T) {
	mr, pc := setupProfileCache(t)

	require.NoError(t, mr.Set("subject:profile:u1", "sleeping"))
	require.Equal(t, models.ActivitySleeping, pc.ActivityMode(context.Background(), "u1"))

	pc.Forget("u1")
	mr.Close()

	mode := pc.ActivityMode(context.Background(), "u1")
	assert.Equal(t, models.ActivityResting, mode)
}
