/*
Package nodeinfo generates client share links for the currently enabled protocols.

链接中的凭证 只是 当前窗口的那一个, 窗口滚动后 客户端需要重新拉取订阅.

格式参考

vless/trojan: https://github.com/XTLS/Xray-core/discussions/716

shadowsocks: https://github.com/shadowsocks/shadowsocks-org/wiki/SIP002-URI-Scheme , 用 v2ray-plugin 表示 ws 传输层

订阅 即 所有链接 用换行连接后 进行 base64 编码, v2rayN 等客户端 都能识别.
*/
package nodeinfo

import (
	"encoding/base64"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/e1732a364fed/edgetunnel/config"
	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/google/uuid"
)

// Node 描述客户端 应该如何连接到我们. 我们假定 前面有 tls 终结.
type Node struct {
	Host string
	Port int
	Name string

	Transport string //"ws" 或 "xhttp"
	Path      string
}

// NodeFrom 从配置中得到 Node; node.host 没有配置时 使用 reqHost (即请求的 Host 头).
func NodeFrom(s *config.Settings, reqHost string) Node {
	n := Node{
		Host:      s.NodeHost,
		Port:      s.NodePort,
		Name:      s.NodeName,
		Transport: "ws",
		Path:      s.WSPath,
	}
	if n.Host == "" {
		n.Host = reqHost
		if h, _, err := net.SplitHostPort(reqHost); err == nil {
			n.Host = h
		}
	}
	if n.Port <= 0 {
		n.Port = config.DefaultNodePort
	}
	return n
}

func (n Node) hostPort() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

func (n Node) tag(proto string) string {
	return n.Name + "-" + proto
}

// xray 分享链接 共用的 query
func (n Node) query() url.Values {
	q := url.Values{}
	q.Set("security", "tls")
	q.Set("sni", n.Host)
	q.Set("type", n.Transport)
	q.Set("host", n.Host)
	if n.Transport == "xhttp" {
		q.Set("mode", "stream-one")
	}
	q.Set("path", n.Path)
	return q
}

type Link struct {
	Protocol string
	URI      string
}

// Generate 按 config.Protocols 的顺序 为每个启用的协议生成一个链接. d 为nil时 使用 s.Deriver().
func Generate(s *config.Settings, d *credential.Deriver, reqHost string) []Link {
	if d == nil {
		d = s.Deriver()
	}
	n := NodeFrom(s, reqHost)

	var links []Link
	for _, p := range s.EnabledProtocols() {
		var uri string
		switch p {
		case credential.TagVless:
			uri = ToVless(n, d.CurrentID())
		case credential.TagTrojan:
			uri = ToTrojan(n, d.Current(p))
		case credential.TagShadowsocks:
			uri = ToSS(n, s.ShadowsocksMethod, d.Current(p))
		case credential.TagSocks5:
			uri = ToSocks(n, d.Current(p))
		default:
			continue
		}
		links = append(links, Link{Protocol: p, URI: uri})
	}
	return links
}

func ToVless(n Node, id uuid.UUID) string {
	q := n.query()
	q.Set("encryption", "none")

	u := url.URL{
		Scheme:   "vless",
		User:     url.User(id.String()),
		Host:     n.hostPort(),
		RawQuery: q.Encode(),
		Fragment: n.tag(credential.TagVless),
	}
	return u.String()
}

func ToTrojan(n Node, password string) string {
	u := url.URL{
		Scheme:   "trojan",
		User:     url.User(password),
		Host:     n.hostPort(),
		RawQuery: n.query().Encode(),
		Fragment: n.tag(credential.TagTrojan),
	}
	return u.String()
}

// ToSS 生成 SIP002 链接. userinfo 为 base64url(method:password)
func ToSS(n Node, method, password string) string {
	plugin := []string{"v2ray-plugin", "tls", "host=" + n.Host, "path=" + n.Path}
	if n.Transport != "ws" {
		plugin = append(plugin, "mode="+n.Transport)
	}
	q := url.Values{}
	q.Set("plugin", strings.Join(plugin, ";"))

	u := url.URL{
		Scheme:   "ss",
		User:     url.User(base64.URLEncoding.EncodeToString([]byte(method + ":" + password))),
		Host:     n.hostPort(),
		Path:     "/", //有 plugin 时要有这个 /
		RawQuery: q.Encode(),
		Fragment: n.tag(credential.TagShadowsocks),
	}
	return u.String()
}

// ToSocks 用户名 随意, 我们用节点名
func ToSocks(n Node, password string) string {
	u := url.URL{
		Scheme:   "socks",
		User:     url.User(base64.URLEncoding.EncodeToString([]byte(n.Name + ":" + password))),
		Host:     n.hostPort(),
		RawQuery: n.query().Encode(),
		Fragment: n.tag(credential.TagSocks5),
	}
	return u.String()
}

// Plain 每行一个链接
func Plain(links []Link) string {
	var sb strings.Builder
	for _, l := range links {
		sb.WriteString(l.URI)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Subscription 是 Plain 的 base64 形式
func Subscription(links []Link) string {
	return base64.StdEncoding.EncodeToString([]byte(Plain(links)))
}
