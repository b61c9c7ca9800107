package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"vitalink-monitor/internal/config"
)

// Connect 创建 Redis 客户端并验证连通性
// 验证失败时关闭客户端，调用方只在成功后持有连接
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
