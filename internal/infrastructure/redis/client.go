package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// 全局Redis客户端实例
var redisClient *redis.Client

// GetClient 获取Redis客户端实例，未初始化时为nil
func GetClient() *redis.Client {
	return redisClient
}

// InitClient 按配置初始化Redis连接并测试连通性
func InitClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis连接测试失败: %w", err)
	}

	redisClient = client
	logger.WithFields(logrus.Fields{
		"address": cfg.Address,
		"db":      cfg.DB,
	}).Info("Redis连接初始化成功")
	return client, nil
}

// Close 关闭Redis连接
func Close() error {
	if redisClient == nil {
		return nil
	}
	if err := redisClient.Close(); err != nil {
		return fmt.Errorf("关闭Redis连接失败: %w", err)
	}
	redisClient = nil
	logger.Info("Redis连接已关闭")
	return nil
}
