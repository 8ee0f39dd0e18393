package utils

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var rdb *redis.Client

// RedisOptions 通知 Pub/Sub 使用的 Redis 连接参数
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// InitRedis 连接 Redis 并确认可用
func InitRedis(opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	rdb = client
	log.Printf("✅ Redis connected (%s, db %d)", opts.Addr, opts.DB)
	return client, nil
}

// CloseRedis 未初始化时直接返回
func CloseRedis() error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}
