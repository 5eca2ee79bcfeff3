package netLayer

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

var ErrRecursion = errors.New("multiple recursion not allowed")

// DNSResolver 用指定的dns服务器 解析出站的域名. 目前只查询 A 和 AAAA.
//
// 边缘节点的系统dns有时很不可靠, 所以可以配置 dns_server 来指定.
type DNSResolver struct {
	Server  string //host:port, 不给端口则默认 53
	Timeout time.Duration

	client *dns.Client
}

func NewDNSResolver(server string) *DNSResolver {
	if server == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
	}
	return &DNSResolver{
		Server:  server,
		Timeout: time.Second * 4,
		client:  &dns.Client{Net: "udp"},
	}
}

// LookupIP 先查 A, 再查 AAAA. 若是ipv6不可用的机器, 拨号的时候自然会失败, 所以我们优先 A.
func (r *DNSResolver) LookupIP(ctx context.Context, domain string) (net.IP, error) {
	fqdn := dns.Fqdn(domain)

	ip, err := r.query(ctx, fqdn, dns.TypeA, 0)
	if err == nil {
		return ip, nil
	}
	if ce := utils.CanLogDebug("dns A query failed, trying AAAA"); ce != nil {
		ce.Write(zap.String("domain", domain), zap.Error(err))
	}
	return r.query(ctx, fqdn, dns.TypeAAAA, 0)
}

// 可能返回如下几种错误 os.ErrNotExist (表示查无此记录), dns.ErrRcode (表示dns返回的 Rcode 不是 dns.RcodeSuccess), ErrRecursion,
// 如果不是这三个error, 那就是 读写dns服务器时出错了.
func (r *DNSResolver) query(ctx context.Context, domain string, dnsType uint16, recursionCount int) (net.IP, error) {
	if recursionCount > 2 {
		return nil, ErrRecursion
	}
	m := new(dns.Msg)
	m.SetQuestion(domain, dnsType)

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	resp, _, err := r.client.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, dns.ErrRcode
	}

	var cname string
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			if dnsType == dns.TypeA {
				return v.A, nil
			}
		case *dns.AAAA:
			if dnsType == dns.TypeAAAA {
				return v.AAAA, nil
			}
		case *dns.CNAME:
			cname = v.Target
		}
	}
	if cname != "" {
		return r.query(ctx, cname, dnsType, recursionCount+1)
	}
	return nil, os.ErrNotExist
}
