package netLayer_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/e1732a364fed/edgetunnel/netLayer"
)

// recordDial 记录被拨号的地址; fail 中的地址会拨号失败.
type recordDial struct {
	mu     sync.Mutex
	dialed []string
	fail   map[string]bool
}

func (r *recordDial) dial(ctx context.Context, network, address string) (net.Conn, error) {
	r.mu.Lock()
	r.dialed = append(r.dialed, address)
	r.mu.Unlock()

	if r.fail[address] {
		return nil, errors.New("refused")
	}
	c, _ := net.Pipe()
	return c, nil
}

func mustAddr(t *testing.T, s string) netLayer.Addr {
	a, err := netLayer.NewAddr(s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestConnectDirect(t *testing.T) {
	rd := &recordDial{}
	c := &netLayer.Connector{Dial: rd.dial}

	conn, err := c.Connect(context.Background(), mustAddr(t, "1.2.3.4:443"), netLayer.Egress{})
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	if len(rd.dialed) != 1 || rd.dialed[0] != "1.2.3.4:443" {
		t.Log(rd.dialed)
		t.FailNow()
	}
}

func TestConnectOverrides(t *testing.T) {
	rd := &recordDial{fail: map[string]bool{"10.0.0.1:443": true}}
	c := &netLayer.Connector{Dial: rd.dial}

	egress := netLayer.Egress{Overrides: []netLayer.Addr{mustAddr(t, "10.0.0.1"), mustAddr(t, "10.0.0.2:8443")}}
	conn, err := c.Connect(context.Background(), mustAddr(t, "1.2.3.4:443"), egress)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	want := []string{"10.0.0.1:443", "10.0.0.2:8443"}
	if len(rd.dialed) != len(want) || rd.dialed[0] != want[0] || rd.dialed[1] != want[1] {
		t.Log(rd.dialed)
		t.FailNow()
	}
}

func TestConnectOverridesNoFallback(t *testing.T) {
	rd := &recordDial{fail: map[string]bool{"10.0.0.1:443": true}}
	c := &netLayer.Connector{Dial: rd.dial}

	egress := netLayer.Egress{Overrides: []netLayer.Addr{mustAddr(t, "10.0.0.1")}}
	_, err := c.Connect(context.Background(), mustAddr(t, "1.2.3.4:443"), egress)
	if !errors.Is(err, netLayer.ErrOutboundConnect) {
		t.Log(err)
		t.FailNow()
	}
	if len(rd.dialed) != 1 {
		t.Log("direct dial must not happen", rd.dialed)
		t.FailNow()
	}

	egress.AllowDirect = true
	conn, err := c.Connect(context.Background(), mustAddr(t, "1.2.3.4:443"), egress)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	if rd.dialed[len(rd.dialed)-1] != "1.2.3.4:443" {
		t.Log(rd.dialed)
		t.FailNow()
	}
}

func TestConnectBlocked(t *testing.T) {
	ranger, err := netLayer.NewBlockRanger([]string{"10.0.0.0/8", "192.168.1.1"})
	if err != nil {
		t.Fatal(err)
	}
	rd := &recordDial{}
	c := &netLayer.Connector{Dial: rd.dial, Blocked: ranger}

	for _, s := range []string{"10.9.9.9:80", "192.168.1.1:22"} {
		_, err = c.Connect(context.Background(), mustAddr(t, s), netLayer.Egress{})
		if !errors.Is(err, netLayer.ErrOutboundConnect) {
			t.Log(s, err)
			t.FailNow()
		}
	}
	if len(rd.dialed) != 0 {
		t.Log("blocked targets were dialed", rd.dialed)
		t.FailNow()
	}

	conn, err := c.Connect(context.Background(), mustAddr(t, "192.168.1.2:22"), netLayer.Egress{})
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
}
