package edgetunnel_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/e1732a364fed/edgetunnel"
	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/proxy"
	"github.com/e1732a364fed/edgetunnel/proxy/trojan"
	"github.com/e1732a364fed/edgetunnel/proxy/vless"
)

func TestClassify(t *testing.T) {
	const ssMin = 50
	target := netLayer.Addr{Name: "example.com", Port: 443}

	trojanReq := trojan.ClientRequest("pw", target)
	vlessReq := vless.ClientRequest(credential.DeriveID([]byte("m"), 1), target)
	junk := bytes.Repeat([]byte{0x99}, ssMin)
	saltGreeting := append([]byte{5, 30}, junk[:30]...)

	cases := []struct {
		name     string
		prefix   []byte
		ssMin    int
		want     []proxy.Protocol
		needMore bool
	}{
		{"empty", nil, ssMin, nil, true},
		{"trojan", trojanReq, ssMin, []proxy.Protocol{proxy.Trojan}, false},
		{"trojan partial", trojanReq[:30], ssMin, nil, true},
		{"socks5 greeting", []byte{5, 1, 2}, ssMin, []proxy.Protocol{proxy.Socks5}, false},
		{"socks5 partial", []byte{5, 2, 0}, ssMin, nil, true},
		{"socks5 partial no ss", []byte{5, 2, 0}, 0, nil, true},
		{"vless short", vlessReq[:10], ssMin, nil, true},
		{"vless, ss may follow", vlessReq[:vless.MinLen], ssMin, []proxy.Protocol{proxy.Vless}, true},
		{"vless no ss", vlessReq[:vless.MinLen], 0, []proxy.Protocol{proxy.Vless}, false},
		{"vless or ss", append(append([]byte(nil), vlessReq...), junk...), ssMin, []proxy.Protocol{proxy.Vless, proxy.Shadowsocks}, false},
		{"ss short", junk[:10], ssMin, nil, true},
		{"ss", junk, ssMin, []proxy.Protocol{proxy.Shadowsocks}, false},
		{"junk without ss", junk, 0, nil, false},
		{"salt looks like socks5", append([]byte{5, 1}, junk...), ssMin, []proxy.Protocol{proxy.Shadowsocks}, false},
		{"lone salt looks like greeting", saltGreeting, ssMin, nil, true},
		{"big greeting no ss", saltGreeting, 0, []proxy.Protocol{proxy.Socks5}, false},
		{"lone salt looks like vless", append([]byte{0}, junk[:31]...), ssMin, []proxy.Protocol{proxy.Vless}, true},
	}
	for _, c := range cases {
		got, more := edgetunnel.Classify(c.prefix, c.ssMin)
		if !reflect.DeepEqual(got, c.want) || more != c.needMore {
			t.Log(c.name, got, more)
			t.FailNow()
		}
	}
}

// 同一个前缀 结果总是一样的
func TestClassifyPure(t *testing.T) {
	p := []byte{5, 1, 2}
	a, _ := edgetunnel.Classify(p, 34)
	b, _ := edgetunnel.Classify(p, 34)
	if !reflect.DeepEqual(a, b) || !bytes.Equal(p, []byte{5, 1, 2}) {
		t.FailNow()
	}
}
