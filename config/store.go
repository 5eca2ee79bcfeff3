/*
Package config resolves the runtime settings of the gateway.

每个 key 按如下顺序查找, 找到非空值即停止:

	1. 持久化存储 (Store, 比如 redis)
	2. 远程json文档 (remote_config_url), 带有自己的缓存
	3. 静态默认值 (toml 配置文件的 [defaults] 部分, 以及环境变量)

任何一层不可用 都只是简单地跳到下一层, 不会报错. 只有三层都没有时, 才认为该key未设置.

Resolver.Snapshot 把所有已知的key 解析成一个不可变的 *Settings, 供各个会话只读使用.
*/
package config

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotFound          = errors.New("key not found")
	ErrConfigUnavailable = errors.New("config unavailable")
)

// Store 是持久化的 key/value 存储. 不存在时 Get 返回 ErrNotFound.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// MemStore 是进程内的 Store, 一般用于测试 或者 没有配置redis 的单机部署.
type MemStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemStore(init map[string]string) *MemStore {
	ms := &MemStore{m: make(map[string][]byte, len(init))}
	for k, v := range init {
		ms.m[k] = []byte(v)
	}
	return ms
}

func (ms *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	v, ok := ms.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (ms *MemStore) Put(ctx context.Context, key string, value []byte) error {
	ms.mu.Lock()
	if ms.m == nil {
		ms.m = make(map[string][]byte)
	}
	ms.m[key] = append([]byte(nil), value...)
	ms.mu.Unlock()
	return nil
}

// NopStore 什么也不存
type NopStore struct{}

func (NopStore) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrNotFound }

func (NopStore) Put(ctx context.Context, key string, value []byte) error {
	return errors.New("store is read only")
}
