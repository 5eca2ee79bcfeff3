package config

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/e1732a364fed/edgetunnel/utils"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheTTL  = time.Second * 30
	DefaultRemoteTTL = time.Minute * 5

	// 远程文档获取失败时, 失败的结果只缓存这么久
	remoteFailTTL = time.Second * 30

	remoteFetchTimeout = time.Second * 10
	maxRemoteDocLen    = 1 << 20
)

// Defaults 是最低的一层
type Defaults interface {
	Lookup(key string) (string, bool)
}

type cacheEntry struct {
	value  string
	ok     bool
	expire time.Time
}

type remoteDoc struct {
	values map[string]string
	expire time.Time
}

// Resolver 按 Store > 远程文档 > Defaults 的顺序解析 key. 零值不可用, Store 和 Defaults 可为nil.
//
// Resolver 可被多个goroutine 同时使用. 缓存过期时 并发的解析可能各自触发一次查询, 后写入者胜出;
// 同一时刻的远程文档获取 由 singleflight 合并为一次.
type Resolver struct {
	Store      Store
	RemoteURL  string //静态的远程文档地址; store 中的 remote_config_url 优先
	HTTPClient *http.Client
	Defaults   Defaults

	CacheTTL  time.Duration //0 表示不缓存
	RemoteTTL time.Duration

	Now func() time.Time

	mu     sync.Mutex
	cache  map[string]cacheEntry
	remote *remoteDoc
	gen    uint64 //每次 Invalidate 加一, 防止旧的查询结果在 Invalidate 之后写入缓存

	group singleflight.Group
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Get 返回 key 的值. 三层都没有时 ok 为 false.
func (r *Resolver) Get(ctx context.Context, key string) (value string, ok bool) {
	now := r.now()

	r.mu.Lock()
	if e, has := r.cache[key]; has && now.Before(e.expire) {
		r.mu.Unlock()
		return e.value, e.ok
	}
	gen := r.gen
	r.mu.Unlock()

	value, ok = r.resolve(ctx, key)

	if r.CacheTTL > 0 {
		r.mu.Lock()
		if r.gen == gen {
			if r.cache == nil {
				r.cache = make(map[string]cacheEntry)
			}
			r.cache[key] = cacheEntry{value: value, ok: ok, expire: now.Add(r.CacheTTL)}
		}
		r.mu.Unlock()
	}
	return
}

func (r *Resolver) resolve(ctx context.Context, key string) (string, bool) {
	if v, ok := r.fromStore(ctx, key); ok {
		return v, true
	}

	if doc := r.remoteValues(ctx); doc != nil {
		if v := doc[key]; v != "" {
			return v, true
		}
	}

	if r.Defaults != nil {
		return r.Defaults.Lookup(key)
	}
	return "", false
}

func (r *Resolver) fromStore(ctx context.Context, key string) (string, bool) {
	if r.Store == nil {
		return "", false
	}
	bs, err := r.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			if ce := utils.CanLogWarn("config store unreachable"); ce != nil {
				ce.Write(zap.String("key", key), zap.Error(err))
			}
		}
		return "", false
	}
	v := strings.TrimSpace(string(bs))
	return v, v != ""
}

// 远程文档的地址本身 只从 store 和 静态配置里找, 不走远程文档.
func (r *Resolver) remoteURL(ctx context.Context) string {
	if v, ok := r.fromStore(ctx, KeyRemoteConfigURL); ok {
		return v
	}
	if r.RemoteURL != "" {
		return r.RemoteURL
	}
	if r.Defaults != nil {
		v, _ := r.Defaults.Lookup(KeyRemoteConfigURL)
		return v
	}
	return ""
}

func (r *Resolver) remoteValues(ctx context.Context) map[string]string {
	now := r.now()

	r.mu.Lock()
	if r.remote != nil && now.Before(r.remote.expire) {
		doc := r.remote.values
		r.mu.Unlock()
		return doc
	}
	gen := r.gen
	r.mu.Unlock()

	url := r.remoteURL(ctx)
	if url == "" {
		return nil
	}

	v, _, _ := r.group.Do(url, func() (any, error) {
		//调用者的ctx 被取消 不应该影响其它在等待同一结果的调用者
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteFetchTimeout)
		defer cancel()

		values, err := r.fetchRemote(fctx, url)
		ttl := r.RemoteTTL
		if ttl <= 0 {
			ttl = DefaultRemoteTTL
		}
		if err != nil {
			if ce := utils.CanLogWarn("fetch remote config failed"); ce != nil {
				ce.Write(zap.String("url", url), zap.Error(err))
			}
			if ttl > remoteFailTTL {
				ttl = remoteFailTTL
			}
		}

		r.mu.Lock()
		if r.gen == gen {
			r.remote = &remoteDoc{values: values, expire: r.now().Add(ttl)}
		}
		r.mu.Unlock()
		return values, nil
	})
	values, _ := v.(map[string]string)
	return values
}

// 非200 或者 不是json对象 都视为不存在
func (r *Resolver) fetchRemote(ctx context.Context, url string) (map[string]string, error) {
	if !govalidator.IsURL(url) {
		return nil, utils.ErrInErr{ErrDesc: "invalid remote config url", ErrDetail: utils.ErrInvalidData, Data: url}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxRemoteDocLen))
		return nil, utils.NumErr{N: resp.StatusCode, Prefix: "remote config status "}
	}

	var raw map[string]any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(io.LimitReader(resp.Body, maxRemoteDocLen)).Decode(&raw); err != nil {
		return nil, utils.ErrInErr{ErrDesc: "remote config is not a json object", ErrDetail: err}
	}

	values := make(map[string]string, len(raw))
	flatten("", raw, values)
	return values, nil
}

// Invalidate 丢弃所有缓存, 包括远程文档.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = nil
	r.remote = nil
	r.gen++
	r.mu.Unlock()
}

// Put 写入 store, 然后 Invalidate.
func (r *Resolver) Put(ctx context.Context, key, value string) error {
	if r.Store == nil {
		return utils.ErrInErr{ErrDesc: "no persistent store configured", ErrDetail: ErrConfigUnavailable, Data: key}
	}
	if err := r.Store.Put(ctx, key, []byte(value)); err != nil {
		return err
	}
	r.Invalidate()
	return nil
}
