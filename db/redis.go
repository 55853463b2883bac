package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"CrateFM/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
	redisErr    error
)

// ConnectRedis 初始化Redis连接（跨进程变更通知通道）。
// 与数据库连接一样按进程缓存，重复调用返回同一个客户端。
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	redisOnce.Do(func() {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		// 测试连接
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := client.Ping(ctx).Result(); err != nil {
			redisErr = fmt.Errorf("failed to connect to Redis: %w", err)
			return
		}

		redisClient = client
	})
	return redisClient, redisErr
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
