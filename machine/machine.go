/*
Package machine 把网关运行所需要的一切 包装成一个可以直接运行的机器; 可执行文件只负责解析命令行 然后调用它.

一个 M 只监听一个 http 端口 (明文 http/1.1 与 h2c), tls 由前面的 cdn 或 反代 负责. 在这个端口上:

	GET  ws.path (Upgrade: websocket)  -> ws 传输层 -> Dispatcher
	POST xhttp.path                    -> xhttp 传输层 -> Dispatcher
	GET  /sub                          -> 订阅 (basic auth)
	PUT  /admin/config?key=            -> 写入 store (basic auth)
	GET  /metrics                      -> prometheus (basic auth)
	其它                                -> nginx 404

关键点是不使用任何静态变量，所有变量都放在machine中。
*/
package machine

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/e1732a364fed/edgetunnel"
	"github.com/e1732a364fed/edgetunnel/advLayer"
	"github.com/e1732a364fed/edgetunnel/advLayer/ws"
	"github.com/e1732a364fed/edgetunnel/advLayer/xhttp"
	"github.com/e1732a364fed/edgetunnel/config"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const DefaultRefreshInterval = time.Minute

type M struct {
	Resolver *config.Resolver

	Dispatcher *edgetunnel.Dispatcher
	Registry   *prometheus.Registry

	RefreshInterval time.Duration
	ProxyProtocol   bool

	//不为nil时 用于所有出站拨号, 测试用
	Dial netLayer.DialFunc

	sync.RWMutex
	running  bool
	srv      *http.Server
	ln       net.Listener
	stopChan chan struct{}

	api *apiServer
}

func New(r *config.Resolver) *M {
	return &M{
		Resolver:        r,
		Registry:        prometheus.NewRegistry(),
		RefreshInterval: DefaultRefreshInterval,
	}
}

// Init 解析出第一份配置 并创建 Dispatcher. 必须在 Handler / Start 之前调用.
func (m *M) Init(ctx context.Context) error {
	s, err := m.Resolver.Snapshot(ctx)
	if err != nil {
		return err
	}
	d, err := edgetunnel.NewDispatcher(s, m.Dial, edgetunnel.NewMetrics(m.Registry))
	if err != nil {
		return err
	}
	m.Dispatcher = d
	m.api = newApiServer(m)
	return nil
}

// Refresh 重新解析配置, 新的会话会使用新的配置.
func (m *M) Refresh(ctx context.Context) error {
	s, err := m.Resolver.Snapshot(ctx)
	if err != nil {
		return err
	}
	return m.Dispatcher.Update(s)
}

func (m *M) IsRunning() bool {
	m.RLock()
	defer m.RUnlock()
	return m.running
}

// ServeHTTP 按 路径与方法 把请求分给 ws, xhttp, 或者 管理接口.
func (m *M) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := m.Dispatcher.Settings()

	wsServer := ws.NewServer(s.WSPath, true)
	wsServer.Timeout = s.HandshakeTimeout

	srv := advLayer.Select(r, wsServer, xhttp.NewServer(s.XHTTPPath))
	if srv == nil {
		m.api.ServeHTTP(w, r)
		return
	}

	conn, err := srv.Handshake(w, r)
	if err != nil {
		if ce := utils.CanLogDebug("transport handshake failed"); ce != nil {
			ce.Write(zap.String("transport", srv.Name()), zap.String("remote", r.RemoteAddr), zap.Error(err))
		}
		return
	}

	//ws 的连接已经被 hijack, 不受 r.Context() 控制; xhttp 则在客户端断开时 自然结束
	ctx := r.Context()
	if srv.Name() == ws.Name {
		ctx = context.WithoutCancel(ctx)
	}
	m.Dispatcher.Serve(ctx, conn, srv.Name())
}

// Handler 同时支持 http/1.1 和 h2c.
func (m *M) Handler() http.Handler {
	return h2c.NewHandler(m, &http2.Server{})
}

// Start 开始监听, 非阻塞.
func (m *M) Start(listen string) error {
	m.Lock()
	defer m.Unlock()
	if m.running {
		return nil
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return utils.ErrInErr{ErrDesc: "listen failed", ErrDetail: err, Data: listen}
	}
	if m.ProxyProtocol {
		//前面是 负载均衡 时, 从 PROXY 头中 得到真实的客户端地址
		ln = netLayer.ListenProxyProtocol(ln, netLayer.DefaultProxyProtocolTimeout)
	}

	m.ln = ln
	m.srv = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	m.stopChan = make(chan struct{})
	m.running = true

	go func() {
		err := m.srv.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			if ce := utils.CanLogErr("http server stopped"); ce != nil {
				ce.Write(zap.Error(err))
			}
		}
	}()
	go m.refreshLoop(m.stopChan)

	if ce := utils.CanLogInfo("Listening"); ce != nil {
		ce.Write(zap.String("addr", ln.Addr().String()), zap.Bool("proxy_protocol", m.ProxyProtocol))
	}
	return nil
}

// Addr 返回实际监听的地址, 未运行时为nil
func (m *M) Addr() net.Addr {
	m.RLock()
	defer m.RUnlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Stop 停止监听, 同时关闭 xhttp 的连接. 已经 hijack 的 ws 会话 不受影响.
func (m *M) Stop() {
	m.Lock()
	defer m.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopChan)
	m.srv.Close()
	m.ln = nil
}

func (m *M) refreshLoop(stop chan struct{}) {
	interval := m.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			err := m.Refresh(ctx)
			cancel()
			if err != nil {
				if ce := utils.CanLogWarn("config refresh failed"); ce != nil {
					ce.Write(zap.Error(err))
				}
			}
		}
	}
}
