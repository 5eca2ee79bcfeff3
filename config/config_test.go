package config_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e1732a364fed/edgetunnel/config"
	"github.com/e1732a364fed/edgetunnel/credential"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func remoteServer(t *testing.T, body string, hits *int32) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestPrecedence(t *testing.T) {
	ts := remoteServer(t, `{"protoA":"false","protoB":"true"}`, nil)

	r := &config.Resolver{
		Store:     config.NewMemStore(map[string]string{"protoA": "true"}),
		RemoteURL: ts.URL,
		Defaults: &config.StaticDefaults{Env: envFrom(map[string]string{
			"PROTOA": "false", "PROTOB": "false", "PROTOC": "true",
		})},
	}

	for _, k := range []string{"protoA", "protoB", "protoC"} {
		v, ok := r.Get(context.Background(), k)
		if !ok || v != "true" {
			t.Log(k, v, ok)
			t.FailNow()
		}
	}

	if _, ok := r.Get(context.Background(), "protoD"); ok {
		t.Log("unset key should be reported as unset")
		t.FailNow()
	}
}

func TestUnreachableTiersDegrade(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	r := &config.Resolver{
		Store:     brokenStore{},
		RemoteURL: ts.URL,
		Defaults:  &config.StaticDefaults{Values: map[string]string{"vless.enabled": "true"}, Env: envFrom(nil)},
	}
	v, ok := r.Get(context.Background(), "vless.enabled")
	if !ok || v != "true" {
		t.Log(v, ok)
		t.FailNow()
	}

	bad := remoteServer(t, `not json`, nil)
	r = &config.Resolver{
		RemoteURL: bad.URL,
		Defaults:  &config.StaticDefaults{Values: map[string]string{"k": "d"}, Env: envFrom(nil)},
	}
	if v, _ := r.Get(context.Background(), "test.unreachable"); v != "d" {
		t.Log(v)
		t.FailNow()
	}
}

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Put(ctx context.Context, key string, value []byte) error {
	return errors.New("connection refused")
}

func TestCacheAndInvalidate(t *testing.T) {
	var hits int32
	ts := remoteServer(t, `{"node":{"name":"remote"}}`, &hits)

	store := config.NewMemStore(nil)
	r := &config.Resolver{
		Store:     store,
		RemoteURL: ts.URL,
		CacheTTL:  time.Minute,
		RemoteTTL: time.Minute,
	}
	ctx := context.Background()

	v1, _ := r.Get(ctx, "node.name")
	v2, _ := r.Get(ctx, "node.name")
	if v1 != "remote" || v1 != v2 {
		t.Log(v1, v2)
		t.FailNow()
	}

	//store 被直接修改, 但缓存期内 结果不变
	store.Put(ctx, "node.name", []byte("stored"))
	if v, _ := r.Get(ctx, "node.name"); v != "remote" {
		t.Log("cached value changed within ttl", v)
		t.FailNow()
	}

	r.Invalidate()
	if v, _ := r.Get(ctx, "node.name"); v != "stored" {
		t.Log(v)
		t.FailNow()
	}

	if err := r.Put(ctx, "node.name", "put"); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.Get(ctx, "node.name"); v != "put" {
		t.Log(v)
		t.FailNow()
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Log("remote document fetched", n, "times")
		t.FailNow()
	}
}

func TestRemoteURLFromStore(t *testing.T) {
	ts := remoteServer(t, `{"k":"from-remote"}`, nil)
	r := &config.Resolver{
		Store: config.NewMemStore(map[string]string{config.KeyRemoteConfigURL: ts.URL}),
	}
	if v, _ := r.Get(context.Background(), "test.unreachable"); v != "from-remote" {
		t.Log(v)
		t.FailNow()
	}
}

func TestSnapshot(t *testing.T) {
	r := &config.Resolver{
		Store: config.NewMemStore(map[string]string{
			"master_secret":             "s3cret",
			"vless.enabled":             "true",
			"trojan.enabled":            "true",
			"egress_overrides":          "1.1.1.1, bad host!",
			"trojan.egress_overrides":   "proxy.example.com:8443",
			"handshake_timeout":         "3",
			"idle_timeout":              "90s",
			"credential.period":         "10m",
			"credential.skew":           "100",
			"egress_fallback_direct":    "yes",
			"xhttp.path":                "stream",
			"shadowsocks.method":        "AES-256-GCM",
			"socks5.allow_noauth":       "false",
			"node.port":                 "8443",
		}),
		Defaults: &config.StaticDefaults{Env: envFrom(nil)},
	}

	s, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.EnabledProtocols(); len(got) != 2 || got[0] != "vless" || got[1] != "trojan" {
		t.Log(got)
		t.FailNow()
	}
	if s.CredentialSkew != credential.MaxSkew {
		t.Log(s.CredentialSkew)
		t.FailNow()
	}
	if s.HandshakeTimeout != 3*time.Second || s.IdleTimeout != 90*time.Second || s.CredentialPeriod != 10*time.Minute {
		t.Log(s.HandshakeTimeout, s.IdleTimeout, s.CredentialPeriod)
		t.FailNow()
	}
	if s.CredentialSkew != 1 || s.NodePort != 8443 || s.XHTTPPath != "/stream" || s.ShadowsocksMethod != "aes-256-gcm" {
		t.Log(s.CredentialSkew, s.NodePort, s.XHTTPPath, s.ShadowsocksMethod)
		t.FailNow()
	}

	ve := s.Egress["vless"]
	if len(ve.Overrides) != 1 || ve.Overrides[0].String() != "1.1.1.1:0" || !ve.AllowDirect {
		t.Log(ve)
		t.FailNow()
	}
	te := s.Egress["trojan"]
	if len(te.Overrides) != 1 || te.Overrides[0].Name != "proxy.example.com" || te.Overrides[0].Port != 8443 {
		t.Log(te)
		t.FailNow()
	}
}

func TestSnapshotNoMaster(t *testing.T) {
	r := &config.Resolver{
		Store:    config.NewMemStore(map[string]string{"vless.enabled": "true", "socks5.enabled": "1"}),
		Defaults: &config.StaticDefaults{Env: envFrom(nil)},
	}
	s, err := r.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(s.EnabledProtocols()) != 0 {
		t.Log(s.EnabledProtocols())
		t.FailNow()
	}
	if !errors.Is(s.Disabled["vless"], config.ErrConfigUnavailable) || !errors.Is(s.Disabled["socks5"], config.ErrConfigUnavailable) {
		t.Log(s.Disabled)
		t.FailNow()
	}
}

func TestFileConf(t *testing.T) {
	const conf = `
[app]
listen = "127.0.0.1:9000"
loglevel = 0
redis_addr = "127.0.0.1:6379"

[defaults]
master_secret = "from-file"
vless.enabled = true
node.port = 2053
blocked_cidrs = ["10.0.0.0/8", "192.168.0.0/16"]
`
	fc, err := config.LoadFileConfFromBs([]byte(conf))
	if err != nil {
		t.Fatal(err)
	}
	if fc.App.Listen != "127.0.0.1:9000" || fc.App.LogLevel == nil || *fc.App.LogLevel != 0 {
		t.Log(fc.App)
		t.FailNow()
	}

	sd := config.NewStaticDefaults(fc.Defaults)
	sd.Env = envFrom(map[string]string{"NODE_PORT": "8443"})

	cases := map[string]string{
		"master_secret": "from-file",
		"vless.enabled": "true",
		"node.port":     "8443",
		"blocked_cidrs": "10.0.0.0/8,192.168.0.0/16",
	}
	for k, want := range cases {
		if v, _ := sd.Lookup(k); v != want {
			t.Log(k, v)
			t.FailNow()
		}
	}
}

func TestEnvKey(t *testing.T) {
	if config.EnvKey("vless.enabled") != "VLESS_ENABLED" {
		t.FailNow()
	}
	os.Setenv("EDGETUNNEL_TEST_KEY", "x")
	defer os.Unsetenv("EDGETUNNEL_TEST_KEY")
	if v, ok := (&config.StaticDefaults{}).Lookup("edgetunnel.test-key"); !ok || v != "x" {
		t.Log(v, ok)
		t.FailNow()
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("EDGETUNNEL_TEST_REDIS")
	if addr == "" {
		t.Skip("EDGETUNNEL_TEST_REDIS not set")
	}
	rs := config.NewRedisStore(addr, "", 0)
	defer rs.Close()

	ctx := context.Background()
	if err := rs.Put(ctx, "test.key", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if v, err := rs.Get(ctx, "test.key"); err != nil || string(v) != "v" {
		t.Log(string(v), err)
		t.FailNow()
	}
	if _, err := rs.Get(ctx, "test.absent"); err != config.ErrNotFound {
		t.Log(err)
		t.FailNow()
	}
}

// redis 连不上时 不影响启动, 读取退到下一层
func TestRedisStoreUnreachable(t *testing.T) {
	rs := config.NewRedisStore("127.0.0.1:1", "", 0)
	defer rs.Close()

	if _, err := rs.Get(context.Background(), "test.unreachable"); err == nil || err == config.ErrNotFound {
		t.Log(err)
		t.FailNow()
	}

	r := &config.Resolver{
		Store:    rs,
		Defaults: config.NewStaticDefaults(map[string]any{"test.unreachable": "from defaults"}),
	}
	if v, ok := r.Get(context.Background(), "test.unreachable"); !ok || v != "from defaults" {
		t.Log(v, ok)
		t.FailNow()
	}
}
