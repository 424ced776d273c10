package redisutil

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Config Redis配置
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient 创建Redis客户端
func NewClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping 测试Redis连接
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func Close(client *redis.Client) error {
	return client.Close()
}
