package machine

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/e1732a364fed/edgetunnel/advLayer/ws"
	"github.com/e1732a364fed/edgetunnel/advLayer/xhttp"
	"github.com/e1732a364fed/edgetunnel/config"
	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/httpLayer"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/proxy/trojan"
	"github.com/e1732a364fed/edgetunnel/proxy/vless"
)

const testPass = "adminpass"

func newTestM(t *testing.T, init map[string]string) (*M, *httptest.Server) {
	m := New(&config.Resolver{Store: config.NewMemStore(init)})
	if err := m.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(m.Handler())
	t.Cleanup(ts.Close)
	return m, ts
}

func baseConf() map[string]string {
	return map[string]string{
		config.KeyMasterSecret:                  "machine test master",
		config.EnabledKey(credential.TagVless):  "true",
		config.EnabledKey(credential.TagTrojan): "true",
		config.KeyAdminPass:                     testPass,
		config.KeyNodeHost:                      "edge.example.com",
	}
}

func get(t *testing.T, ts *httptest.Server, path string, auth bool) (int, string) {
	req, _ := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if auth {
		req.SetBasicAuth(adminUser, testPass)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	bs, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(bs)
}

func put(t *testing.T, ts *httptest.Server, key, value string) int {
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/admin/config?key="+key, strings.NewReader(value))
	req.SetBasicAuth(adminUser, testPass)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestDisguise(t *testing.T) {
	_, ts := newTestM(t, baseConf())

	resp, err := ts.Client().Get(ts.URL + "/some/page")
	if err != nil {
		t.Fatal(err)
	}
	bs, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound || string(bs) != httpLayer.Nginx404_html {
		t.Log(resp.StatusCode, string(bs))
		t.FailNow()
	}
	if resp.Header.Get("Server") != httpLayer.NginxServer {
		t.Log(resp.Header)
		t.FailNow()
	}

	//ws 路径上的 普通 GET 也是 404
	if code, _ := get(t, ts, "/", false); code != http.StatusNotFound {
		t.Log(code)
		t.FailNow()
	}
}

func TestAdminDisabledWithoutPass(t *testing.T) {
	conf := baseConf()
	delete(conf, config.KeyAdminPass)
	_, ts := newTestM(t, conf)

	for _, p := range []string{"/sub", "/metrics"} {
		if code, body := get(t, ts, p, true); code != http.StatusNotFound || body != httpLayer.Nginx404_html {
			t.Log(p, code)
			t.FailNow()
		}
	}
}

func TestSub(t *testing.T) {
	_, ts := newTestM(t, baseConf())

	if code, _ := get(t, ts, "/sub", false); code != http.StatusUnauthorized {
		t.Log(code)
		t.FailNow()
	}

	code, plain := get(t, ts, "/sub", true)
	if code != http.StatusOK {
		t.Log(code)
		t.FailNow()
	}
	if !strings.Contains(plain, "vless://") || !strings.Contains(plain, "trojan://") || strings.Contains(plain, "ss://") {
		t.Log(plain)
		t.FailNow()
	}

	_, b64 := get(t, ts, "/sub?format=base64", true)
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != plain {
		t.Log(string(decoded))
		t.FailNow()
	}

	//方法不对 也是 404
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/sub", nil)
	req.SetBasicAuth(adminUser, testPass)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Log(resp.StatusCode)
		t.FailNow()
	}
}

func TestPutConfig(t *testing.T) {
	m, ts := newTestM(t, baseConf())

	if m.Dispatcher.Settings().IsEnabled(credential.TagSocks5) {
		t.FailNow()
	}
	if code := put(t, ts, config.EnabledKey(credential.TagSocks5), "true\n"); code != http.StatusNoContent {
		t.Log(code)
		t.FailNow()
	}
	//写入后 立即生效
	if !m.Dispatcher.Settings().IsEnabled(credential.TagSocks5) {
		t.Log("put did not refresh")
		t.FailNow()
	}
	if _, plain := get(t, ts, "/sub", true); !strings.Contains(plain, "socks://") {
		t.Log(plain)
		t.FailNow()
	}

	if code := put(t, ts, "no.such.key", "1"); code != http.StatusBadRequest {
		t.Log(code)
		t.FailNow()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestM(t, baseConf())

	code, body := get(t, ts, "/metrics", true)
	if code != http.StatusOK || !strings.Contains(body, "edgetunnel_active_sessions") {
		t.Log(code, body)
		t.FailNow()
	}
}

// 目标服务器: 回显
func echoTarget(t *testing.T) netLayer.Addr {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	a, err := netLayer.NewAddr(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func readFull(t *testing.T, r io.Reader, n int) []byte {
	got := make([]byte, n)
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(r, got)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Log("read timeout")
		t.FailNow()
	}
	return got
}

func TestWsVless(t *testing.T) {
	m, ts := newTestM(t, baseConf())
	target := echoTarget(t)

	conn, err := ws.Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http")+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	payload := []byte("hello through ws")
	req := vless.ClientRequest(m.Dispatcher.Settings().Deriver().CurrentID(), target)
	conn.Write(append(req, payload...))

	got := readFull(t, conn, 2+len(payload))
	if !bytes.Equal(got[:2], []byte{0, 0}) || !bytes.Equal(got[2:], payload) {
		t.Log(got)
		t.FailNow()
	}
}

func TestXhttpTrojan(t *testing.T) {
	m, ts := newTestM(t, baseConf())
	target := echoTarget(t)

	conn, err := xhttp.Dial(context.Background(), ts.Client(), ts.URL+config.DefaultXHTTPPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	pw := m.Dispatcher.Settings().Deriver().Current(credential.TagTrojan)
	payload := []byte("hello through xhttp")
	go conn.Write(append(trojan.ClientRequest(pw, target), payload...))

	if got := readFull(t, conn, len(payload)); !bytes.Equal(got, payload) {
		t.Log(got)
		t.FailNow()
	}
}

func TestNewFromConf(t *testing.T) {
	fc, err := config.LoadFileConfFromBs([]byte(`
[app]
listen = "127.0.0.1:0"
refresh_interval = 5
cache_ttl = 2

[defaults]
master_secret = "from file"
vless.enabled = true
`))
	if err != nil {
		t.Fatal(err)
	}
	m, closer, err := NewFromConf(fc)
	if err != nil {
		t.Fatal(err)
	}
	if closer != nil {
		t.Log("mem store needs no closer")
		t.FailNow()
	}
	if m.RefreshInterval != 5*time.Second || m.Resolver.CacheTTL != 2*time.Second {
		t.Log(m.RefreshInterval, m.Resolver.CacheTTL)
		t.FailNow()
	}
	if err := m.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !m.Dispatcher.Settings().IsEnabled(credential.TagVless) {
		t.FailNow()
	}

	if err := m.Start(ListenAddr(fc.App)); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()
	if !m.IsRunning() || m.Addr() == nil {
		t.FailNow()
	}

	resp, err := http.Get("http://" + m.Addr().String() + "/x")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Log(resp.StatusCode)
		t.FailNow()
	}
}

// redis_addr 连不上时 仍然可以启动, 配置来自 [defaults]
func TestNewFromConfRedisUnreachable(t *testing.T) {
	fc, err := config.LoadFileConfFromBs([]byte(`
[app]
redis_addr = "127.0.0.1:1"

[defaults]
master_secret = "from file"
trojan.enabled = true
`))
	if err != nil {
		t.Fatal(err)
	}
	m, closer, err := NewFromConf(fc)
	if err != nil {
		t.Fatal(err)
	}
	if closer == nil {
		t.FailNow()
	}
	defer closer.Close()

	if err := m.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !m.Dispatcher.Settings().IsEnabled(credential.TagTrojan) {
		t.FailNow()
	}
}
