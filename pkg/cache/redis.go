package cache

import (
	"context"
	"fmt"
	"time"

	"tradectl/conf"

	"github.com/redis/go-redis/v9"
)

// InitRedis 创建 client 并 ping，失败时关闭 client。由调用方负责 Close
func InitRedis(ctx context.Context, redisCfg conf.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		DB:              redisCfg.Db,
		Addr:            redisCfg.Addr,
		Password:        redisCfg.Password,
		PoolSize:        redisCfg.PoolSize,
		MinIdleConns:    redisCfg.MinIdleConns,
		ConnMaxIdleTime: time.Duration(redisCfg.IdleTimeout) * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", redisCfg.Addr, err)
	}
	return client, nil
}
