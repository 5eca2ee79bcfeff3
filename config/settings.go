package config

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/utils"
	"go.uber.org/zap"
)

const (
	KeyMasterSecret         = "master_secret"
	KeyEgressOverrides      = "egress_overrides"
	KeyEgressFallbackDirect = "egress_fallback_direct"
	KeyRemoteConfigURL      = "remote_config_url"
	KeyShadowsocksMethod    = "shadowsocks.method"
	KeySocks5AllowNoAuth    = "socks5.allow_noauth"
	KeyCredentialPeriod     = "credential.period"
	KeyCredentialSkew       = "credential.skew"
	KeyBlockedCIDRs         = "blocked_cidrs"
	KeyDNSServer            = "dns_server"
	KeyNodeHost             = "node.host"
	KeyNodePort             = "node.port"
	KeyNodeName             = "node.name"
	KeyWSPath               = "ws.path"
	KeyXHTTPPath            = "xhttp.path"
	KeyHandshakeTimeout     = "handshake_timeout"
	KeyIdleTimeout          = "idle_timeout"
	KeyDialTimeout          = "dial_timeout"
	KeyAdminPass            = "admin_pass"
)

const (
	DefaultShadowsocksMethod = "chacha20-ietf-poly1305"
	DefaultHandshakeTimeout  = time.Second * 5
	DefaultWSPath            = "/"
	DefaultXHTTPPath         = "/xhttp"
	DefaultNodePort          = 443
)

// 协议的标签, 顺序即 节点信息 里的顺序.
var Protocols = []string{credential.TagVless, credential.TagTrojan, credential.TagShadowsocks, credential.TagSocks5}

func EnabledKey(proto string) string { return proto + ".enabled" }

func EgressKey(proto string) string { return proto + "." + KeyEgressOverrides }

// 所有 Snapshot 会去解析的 key
func KnownKeys() []string {
	keys := []string{
		KeyMasterSecret, KeyEgressOverrides, KeyEgressFallbackDirect, KeyRemoteConfigURL,
		KeyShadowsocksMethod, KeySocks5AllowNoAuth, KeyCredentialPeriod, KeyCredentialSkew,
		KeyBlockedCIDRs, KeyDNSServer, KeyNodeHost, KeyNodePort, KeyNodeName,
		KeyWSPath, KeyXHTTPPath, KeyHandshakeTimeout, KeyIdleTimeout, KeyDialTimeout, KeyAdminPass,
	}
	for _, p := range Protocols {
		keys = append(keys, EnabledKey(p), EgressKey(p))
	}
	return keys
}

// Settings 是某一时刻解析出的全部配置, 创建后不再修改. 用 Resolver.Snapshot 获得.
type Settings struct {
	Master []byte

	Enabled  map[string]bool  //最终是否启用; master 缺失时全部为false
	Disabled map[string]error //未启用的原因, 没被配置为启用的协议不在其中

	Egress map[string]netLayer.Egress

	ShadowsocksMethod string
	Socks5AllowNoAuth bool

	CredentialPeriod time.Duration
	CredentialSkew   int

	BlockedCIDRs []string
	DNSServer    string

	NodeHost string
	NodePort int
	NodeName string

	WSPath    string
	XHTTPPath string

	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	DialTimeout      time.Duration

	AdminPass string

	ResolvedAt time.Time
}

func (s *Settings) IsEnabled(proto string) bool {
	return s != nil && s.Enabled[proto]
}

// 所有启用的协议, 按 Protocols 的顺序
func (s *Settings) EnabledProtocols() (r []string) {
	for _, p := range Protocols {
		if s.IsEnabled(p) {
			r = append(r, p)
		}
	}
	return
}

func (s *Settings) Deriver() *credential.Deriver {
	return &credential.Deriver{Master: s.Master, Period: s.CredentialPeriod, Skew: s.CredentialSkew}
}

// Snapshot 解析出所有已知的key. 可选的key 解析失败时 使用默认值并打印警告;
// master_secret 缺失时 所有协议被禁用, Disabled 中记录的原因 Is ErrConfigUnavailable.
func (r *Resolver) Snapshot(ctx context.Context) (*Settings, error) {
	get := func(key string) string {
		v, _ := r.Get(ctx, key)
		return v
	}

	s := &Settings{
		Enabled:  make(map[string]bool, len(Protocols)),
		Disabled: make(map[string]error),
		Egress:   make(map[string]netLayer.Egress, len(Protocols)),

		ResolvedAt: r.now(),
	}

	if m := get(KeyMasterSecret); m != "" {
		s.Master = []byte(m)
	}

	for _, p := range Protocols {
		if !utils.ParseBool(get(EnabledKey(p))) {
			continue
		}
		if s.Master == nil {
			s.Disabled[p] = utils.ErrInErr{ErrDesc: "protocol disabled", ErrDetail: ErrConfigUnavailable, Data: KeyMasterSecret + " missing"}
			continue
		}
		s.Enabled[p] = true
	}
	if len(s.Disabled) > 0 {
		if ce := utils.CanLogErr("master secret missing, protocols disabled"); ce != nil {
			ce.Write(zap.Int("count", len(s.Disabled)))
		}
	}

	fallback := utils.ParseBool(get(KeyEgressFallbackDirect))
	global := parseEgressList(get(KeyEgressOverrides))
	for _, p := range Protocols {
		list := global
		if own := parseEgressList(get(EgressKey(p))); len(own) > 0 {
			list = own
		}
		s.Egress[p] = netLayer.Egress{Overrides: list, AllowDirect: fallback}
	}

	s.ShadowsocksMethod = strings.ToLower(get(KeyShadowsocksMethod))
	if s.ShadowsocksMethod == "" {
		s.ShadowsocksMethod = DefaultShadowsocksMethod
	}
	s.Socks5AllowNoAuth = utils.ParseBool(get(KeySocks5AllowNoAuth))

	s.CredentialPeriod = parseDuration(KeyCredentialPeriod, get(KeyCredentialPeriod), credential.DefaultPeriod)
	s.CredentialSkew = parseInt(KeyCredentialSkew, get(KeyCredentialSkew), credential.DefaultSkew)
	switch {
	case s.CredentialSkew < 0:
		s.CredentialSkew = 0
	case s.CredentialSkew > credential.MaxSkew:
		if ce := utils.CanLogWarn("credential.skew too large, clamped"); ce != nil {
			ce.Write(zap.Int("given", s.CredentialSkew), zap.Int("used", credential.MaxSkew))
		}
		s.CredentialSkew = credential.MaxSkew
	}

	s.BlockedCIDRs = utils.SplitList(get(KeyBlockedCIDRs))
	s.DNSServer = get(KeyDNSServer)

	s.NodeHost = get(KeyNodeHost)
	s.NodePort = parseInt(KeyNodePort, get(KeyNodePort), DefaultNodePort)
	s.NodeName = get(KeyNodeName)
	if s.NodeName == "" {
		s.NodeName = "edgetunnel"
	}

	s.WSPath = normalizePath(get(KeyWSPath), DefaultWSPath)
	s.XHTTPPath = normalizePath(get(KeyXHTTPPath), DefaultXHTTPPath)

	s.HandshakeTimeout = parseDuration(KeyHandshakeTimeout, get(KeyHandshakeTimeout), DefaultHandshakeTimeout)
	s.IdleTimeout = parseDuration(KeyIdleTimeout, get(KeyIdleTimeout), netLayer.DefaultIdleTimeout)
	s.DialTimeout = parseDuration(KeyDialTimeout, get(KeyDialTimeout), netLayer.DefaultDialTimeout)

	s.AdminPass = get(KeyAdminPass)

	return s, nil
}

// 元素为 host 或 host:port; 不合法的会被忽略并打印警告
func parseEgressList(s string) (list []netLayer.Addr) {
	for _, item := range utils.SplitList(s) {
		a, err := netLayer.NewAddr(item)
		if err == nil && !govalidator.IsHost(a.HostStr()) {
			err = utils.ErrInErr{ErrDesc: "invalid host", ErrDetail: utils.ErrInvalidData, Data: item}
		}
		if err != nil {
			if ce := utils.CanLogWarn("ignore egress override"); ce != nil {
				ce.Write(zap.String("item", item), zap.Error(err))
			}
			continue
		}
		a.Normalize()
		list = append(list, a)
	}
	return
}

// 接受 "5s" "1h" 这种格式, 也接受 纯数字(秒)
func parseDuration(key, s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return def
		}
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		if ce := utils.CanLogWarn("invalid duration, using default"); ce != nil {
			ce.Write(zap.String("key", key), zap.String("value", s))
		}
		return def
	}
	return d
}

func parseInt(key, s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		if ce := utils.CanLogWarn("invalid integer, using default"); ce != nil {
			ce.Write(zap.String("key", key), zap.String("value", s))
		}
		return def
	}
	return n
}

func normalizePath(p, def string) string {
	if p == "" {
		return def
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
