package edgetunnel

import (
	"bufio"
	"context"
	"errors"
	"net"
	"runtime/debug"
	"time"

	"github.com/e1732a364fed/edgetunnel/config"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/proxy"
	"github.com/e1732a364fed/edgetunnel/proxy/shadowsocks"
	"github.com/e1732a364fed/edgetunnel/proxy/socks5"
	"github.com/e1732a364fed/edgetunnel/proxy/trojan"
	"github.com/e1732a364fed/edgetunnel/proxy/vless"
	"github.com/e1732a364fed/edgetunnel/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// handlerSet 是从某一个 Settings 快照 构建出的 全部处理器, 创建后不再修改.
type handlerSet struct {
	settings  *config.Settings
	handlers  map[proxy.Protocol]proxy.Handler
	ssMin     int
	connector *netLayer.Connector
}

func (hs *handlerSet) enabled(p proxy.Protocol) bool {
	_, ok := hs.handlers[p]
	return ok
}

// Dispatcher 识别入站连接的协议, 完成握手, 打开出站连接, 然后转发.
//
// 配置通过 Update 整体替换; 正在进行的会话 继续使用它开始时的那一份.
type Dispatcher struct {
	current atomic.Pointer[handlerSet]

	Metrics *Metrics

	//不为nil时 用于所有出站拨号
	Dial netLayer.DialFunc
}

func NewDispatcher(s *config.Settings, dial netLayer.DialFunc, m *Metrics) (*Dispatcher, error) {
	d := &Dispatcher{Dial: dial, Metrics: m}
	if err := d.Update(s); err != nil {
		return nil, err
	}
	return d, nil
}

// Settings 返回当前使用的配置快照
func (d *Dispatcher) Settings() *config.Settings {
	if hs := d.current.Load(); hs != nil {
		return hs.settings
	}
	return nil
}

// Update 用新的快照构建处理器. 某个协议的处理器无法构建时 该协议被禁用, 不影响其它协议.
func (d *Dispatcher) Update(s *config.Settings) error {
	if s == nil {
		return utils.ErrNilParameter
	}
	hs := &handlerSet{
		settings: s,
		handlers: make(map[proxy.Protocol]proxy.Handler, len(proxy.AllProtocols)),
	}
	der := s.Deriver()

	for _, tag := range s.EnabledProtocols() {
		switch p := proxy.ProtocolFromTag(tag); p {
		case proxy.Vless:
			hs.handlers[p] = vless.NewServer(der)
		case proxy.Trojan:
			hs.handlers[p] = trojan.NewServer(der)
		case proxy.Socks5:
			hs.handlers[p] = socks5.NewServer(der, s.Socks5AllowNoAuth)
		case proxy.Shadowsocks:
			ss, err := shadowsocks.NewServer(der, s.ShadowsocksMethod)
			if err != nil {
				if ce := utils.CanLogErr("shadowsocks disabled"); ce != nil {
					ce.Write(zap.Error(err))
				}
				continue
			}
			hs.handlers[p] = ss
			hs.ssMin = ss.MinLen()
		}
	}

	blocked, err := netLayer.NewBlockRanger(s.BlockedCIDRs)
	if err != nil {
		return utils.ErrInErr{ErrDesc: "invalid " + config.KeyBlockedCIDRs, ErrDetail: err}
	}
	hs.connector = &netLayer.Connector{
		DialTimeout: s.DialTimeout,
		Resolver:    netLayer.NewDNSResolver(s.DNSServer),
		Blocked:     blocked,
		Dial:        d.Dial,
	}

	d.current.Store(hs)

	if ce := utils.CanLogInfo("dispatcher updated"); ce != nil {
		ce.Write(zap.Strings("enabled", s.EnabledProtocols()))
	}
	return nil
}

// Serve 处理一个入站连接, 直到会话结束; 返回时 conn 已经被关闭.
// transport 只用于日志和统计.
func (d *Dispatcher) Serve(ctx context.Context, conn net.Conn, transport string) *Session {
	s := newSession(transport, conn)
	hs := d.current.Load()

	d.Metrics.sessionStarted()

	defer func() {
		if r := recover(); r != nil {
			if ce := utils.CanLogErr("session panic"); ce != nil {
				ce.Write(zap.Uint64("id", s.ID), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			}
			s.fail(utils.ErrInErr{ErrDesc: "panic", Data: r})
		}
		conn.Close()
		if s.State() != StateFailed {
			s.setState(StateClosed)
		}
		d.Metrics.sessionEnded(s)
	}()

	if hs == nil || len(hs.handlers) == 0 {
		s.fail(utils.ErrInErr{ErrDesc: "no protocol enabled", ErrDetail: config.ErrConfigUnavailable})
		logFail(s)
		return s
	}

	result, err := d.handshake(ctx, hs, s, conn)
	if err != nil {
		s.fail(err)
		logFail(s)
		return s
	}

	egress := hs.settings.Egress[s.Protocol.String()]
	remote, err := hs.connector.Connect(ctx, s.Target, egress)
	if err != nil {
		result.Conn.Close()
		s.fail(err)
		logFail(s)
		return s
	}

	s.setState(StateRelaying)
	if ce := utils.CanLogInfo("relaying"); ce != nil {
		ce.Write(zap.Uint64("id", s.ID), zap.String("protocol", s.Protocol.String()),
			zap.String("target", s.Target.String()), zap.String("from", s.remoteStr()))
	}

	up, down := netLayer.Relay(&s.Target, remote, result.Conn, hs.settings.IdleTimeout, &s.Traffic)

	if ce := utils.CanLogDebug("session closed"); ce != nil {
		ce.Write(zap.Uint64("id", s.ID), zap.Int64("up", up), zap.Int64("down", down),
			zap.Duration("duration", time.Since(s.Started)))
	}
	return s
}

// handshake 读取足够的前缀, 依次尝试候选协议. 候选失败且没有消费数据时 尝试下一个.
func (d *Dispatcher) handshake(ctx context.Context, hs *handlerSet, s *Session, conn net.Conn) (result proxy.Result, err error) {
	timeout := hs.settings.HandshakeTimeout
	if timeout <= 0 {
		timeout = config.DefaultHandshakeTimeout
	}
	conn.SetDeadline(time.Now().Add(timeout))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	in := bufio.NewReaderSize(conn, proxy.MaxPeekLen)

	tried := make(map[proxy.Protocol]bool, len(proxy.AllProtocols))
	classified := false

	for {
		prefix, _ := in.Peek(in.Buffered())
		cands, needMore := Classify(prefix, hs.ssMin)

		var candidates []proxy.Protocol
		for _, p := range filterEnabled(cands, hs.enabled) {
			if !tried[p] {
				candidates = append(candidates, p)
			}
		}

		if len(candidates) > 0 {
			if !classified {
				classified = true
				s.setState(StateClassified)
			}

			for _, p := range candidates {
				tried[p] = true
				s.Protocol = p
				s.setState(StateAuthenticating)

				result, err = hs.handlers[p].Handshake(ctx, in, conn)
				if err == nil || !proxy.IsMiss(err) {
					break
				}
				if ce := utils.CanLogDebug("candidate missed"); ce != nil {
					ce.Write(zap.Uint64("id", s.ID), zap.String("protocol", p.String()), zap.Error(err))
				}
			}
			if err == nil {
				break
			}
			if !proxy.IsMiss(err) || !needMore {
				return
			}
			//都没匹配上, 但再多读一些 还可能是 shadowsocks
		} else if !needMore {
			if err == nil {
				err = utils.ErrInErr{ErrDesc: "classify failed", ErrDetail: proxy.ErrClassification, Data: len(prefix)}
			}
			return
		}

		if len(prefix) >= proxy.MaxPeekLen {
			if err == nil {
				err = utils.ErrInErr{ErrDesc: "classify failed", ErrDetail: proxy.ErrClassification, Data: len(prefix)}
			}
			return
		}
		if _, e := in.Peek(len(prefix) + 1); e != nil {
			//之前已经有候选 没匹配上的话, 报告那个错误
			if err == nil {
				err = utils.ErrInErr{ErrDesc: "read prefix", ErrDetail: proxy.ErrTransport, Data: e.Error()}
			}
			return
		}
	}

	s.User = result.User
	s.Target = result.Target
	s.setState(StateAuthenticated)

	conn.SetDeadline(time.Time{})
	return
}

// 读前缀时断开 或者 超时, 多半是扫描器 或者 连上就不说话的客户端, 只在 debug 时打印
func logFail(s *Session) {
	canLog := utils.CanLogWarn
	if netLayer.IsTimeoutErr(s.Err) || errors.Is(s.Err, proxy.ErrTransport) {
		canLog = utils.CanLogDebug
	}
	if ce := canLog("session failed"); ce != nil {
		ce.Write(zap.Uint64("id", s.ID), zap.String("transport", s.Transport),
			zap.String("stage", failureStage(s)), zap.String("protocol", s.Protocol.String()),
			zap.String("from", s.remoteStr()), zap.Error(s.Err))
	}
}
