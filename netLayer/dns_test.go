package netLayer_test

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"

	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/miekg/dns"
)

// 本地的假dns服务器
func fakeDNSServer(t *testing.T) string {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	add := func(m *dns.Msg, s string) {
		rr, err := dns.NewRR(s)
		if err != nil {
			t.Log(err)
			return
		}
		m.Answer = append(m.Answer, rr)
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]

		switch q.Name {
		case "www.myfake.com.":
			if q.Qtype == dns.TypeA {
				add(m, "www.myfake.com. 60 IN A 11.22.33.44")
			}
		case "alias.myfake.com.":
			add(m, "alias.myfake.com. 60 IN CNAME www.myfake.com.")
		case "v6only.myfake.com.":
			if q.Qtype == dns.TypeAAAA {
				add(m, "v6only.myfake.com. 60 IN AAAA 2001:db8::1")
			}
		case "empty.myfake.com.":
		case "loop.myfake.com.":
			add(m, "loop.myfake.com. 60 IN CNAME loop.myfake.com.")
		default:
			m.Rcode = dns.RcodeNameError
		}
		w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNS(t *testing.T) {
	r := netLayer.NewDNSResolver(fakeDNSServer(t))
	ctx := context.Background()

	for domain, want := range map[string]string{
		"www.myfake.com":    "11.22.33.44",
		"alias.myfake.com":  "11.22.33.44",
		"v6only.myfake.com": "2001:db8::1",
	} {
		ip, err := r.LookupIP(ctx, domain)
		if err != nil {
			t.Log(domain, err)
			t.FailNow()
		}
		if !ip.Equal(net.ParseIP(want)) {
			t.Log(domain, ip)
			t.FailNow()
		}
	}

	if _, err := r.LookupIP(ctx, "nothing.myfake.com"); err != dns.ErrRcode {
		t.Log(err)
		t.FailNow()
	}
	if _, err := r.LookupIP(ctx, "empty.myfake.com"); !errors.Is(err, os.ErrNotExist) {
		t.Log(err)
		t.FailNow()
	}
	if _, err := r.LookupIP(ctx, "loop.myfake.com"); err != netLayer.ErrRecursion {
		t.Log(err)
		t.FailNow()
	}

	a, err := netLayer.NewAddr("www.myfake.com:443")
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := a.Resolve(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.IP.String() != "11.22.33.44" || resolved.Port != 443 {
		t.Log(resolved)
		t.FailNow()
	}
}

func TestDNSDefaultPort(t *testing.T) {
	if netLayer.NewDNSResolver("") != nil {
		t.FailNow()
	}
	if r := netLayer.NewDNSResolver("1.1.1.1"); r.Server != "1.1.1.1:53" {
		t.Log(r.Server)
		t.FailNow()
	}
	if r := netLayer.NewDNSResolver("[2606:4700::1111]"); r.Server != "[2606:4700::1111]:53" {
		t.Log(r.Server)
		t.FailNow()
	}
}
