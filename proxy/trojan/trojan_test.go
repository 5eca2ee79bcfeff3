package trojan_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/proxy"
	"github.com/e1732a364fed/edgetunnel/proxy/trojan"
)

func testDeriver() *credential.Deriver {
	d := credential.New([]byte("trojan test master"))
	now := time.Unix(1_700_000_000, 0)
	d.Now = func() time.Time { return now }
	return d
}

func TestIsTrojanPrefix(t *testing.T) {
	full := trojan.ClientRequest("pw", netLayer.Addr{Name: "a.com", Port: 1})

	if m, p := trojan.IsTrojanPrefix(full); !m || !p {
		t.FailNow()
	}
	if m, p := trojan.IsTrojanPrefix(full[:30]); m || !p {
		t.FailNow()
	}
	if m, p := trojan.IsTrojanPrefix([]byte("ABCDEF")); m || p {
		t.Log("upper case hex is not trojan")
		t.FailNow()
	}
	bad := append([]byte(nil), full...)
	bad[56] = 'x'
	if m, p := trojan.IsTrojanPrefix(bad); m || p {
		t.FailNow()
	}
}

func TestTrojan(t *testing.T) {
	d := testDeriver()
	target, _ := netLayer.NewAddr("example.org:80")

	req := trojan.ClientRequest(d.Current(credential.TagTrojan), target)
	req = append(req, "hello"...)

	r, err := trojan.NewServer(d).Handshake(context.Background(), bufio.NewReader(bytes.NewReader(req)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Target.String() != "example.org:80" {
		t.Log(r.Target.String())
		t.FailNow()
	}
	payload, _ := io.ReadAll(r.Conn)
	if string(payload) != "hello" {
		t.FailNow()
	}
}

func TestTrojanWrongPasswordIsMiss(t *testing.T) {
	d := testDeriver()
	target, _ := netLayer.NewAddr("example.org:80")

	req := trojan.ClientRequest("some other password", target)
	in := bufio.NewReader(bytes.NewReader(req))
	_, err := trojan.NewServer(d).Handshake(context.Background(), in, nil)
	if !proxy.IsMiss(err) {
		t.Log(err)
		t.FailNow()
	}
	if in.Buffered() != len(req) {
		t.FailNow()
	}
}

func TestTrojanMissingTrailingCRLF(t *testing.T) {
	d := testDeriver()
	target, _ := netLayer.NewAddr("example.org:80")

	req := trojan.ClientRequest(d.Current(credential.TagTrojan), target)
	req[len(req)-1] = 'x'

	_, err := trojan.NewServer(d).Handshake(context.Background(), bufio.NewReader(bytes.NewReader(req)), nil)
	if err == nil || proxy.IsMiss(err) {
		t.Log(err)
		t.FailNow()
	}
}
