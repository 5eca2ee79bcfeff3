package config

import (
	"context"
	"time"

	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const RedisKeyPrefix = "edgetunnel:"

// RedisStore 把配置存在 redis 中, 可以让多个节点共享同一份配置.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

// 会 ping 一次, 连不上 只打印警告: 之后每次读取失败时 Resolver 会退到 远程文档 和 默认值.
func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
		MaxRetries:  1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		if ce := utils.CanLogWarn("redis unreachable, falling back to remote config and defaults"); ce != nil {
			ce.Write(zap.String("addr", addr), zap.Error(err))
		}
	}
	return &RedisStore{Client: rdb, Prefix: RedisKeyPrefix}
}

func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	bs, err := rs.Client.Get(ctx, rs.Prefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return bs, err
}

func (rs *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	return rs.Client.Set(ctx, rs.Prefix+key, value, 0).Err()
}

func (rs *RedisStore) Close() error {
	return rs.Client.Close()
}
