/*
Package xhttp implements the chunked http duplex transport for advLayer.

客户端发起一个 POST 请求, 请求体 就是 客户端->服务端 的数据流, 响应体 就是 服务端->客户端 的数据流.
响应每次写入后都立即 Flush. http/1.1 下需要 EnableFullDuplex, 否则 net/http 会在我们开始写响应时
关闭请求体; h2/h2c 天然就是全双工的.

http handler 在会话结束之前 不能返回, 见 Conn.Done.
*/
package xhttp

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/e1732a364fed/edgetunnel/advLayer"
	"github.com/e1732a364fed/edgetunnel/utils"
	"go.uber.org/zap"
)

const Name = "xhttp"

type Server struct {
	Thepath string
}

func NewServer(path string) *Server {
	return &Server{Thepath: path}
}

func (*Server) Name() string { return Name }

func (s *Server) Match(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == s.Thepath
}

func (s *Server) Handshake(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	rc := http.NewResponseController(w)

	if r.ProtoMajor == 1 {
		if err := rc.EnableFullDuplex(); err != nil {
			return nil, utils.ErrInErr{ErrDesc: "xhttp full duplex not supported", ErrDetail: err}
		}
	}

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	//先把响应头发出去, 有的客户端要收到响应头 才开始发送数据
	if err := rc.Flush(); err != nil {
		return nil, utils.ErrInErr{ErrDesc: "xhttp flush failed", ErrDetail: err}
	}

	c := &Conn{
		body:  r.Body,
		w:     w,
		rc:    rc,
		done:  make(chan struct{}),
		laddr: advLayer.NewAddr("tcp", r.Host),
		raddr: advLayer.RealRemoteAddr(r),
	}
	if c.raddr == nil {
		c.raddr = advLayer.NewAddr("tcp", r.RemoteAddr)
	}

	if ce := utils.CanLogDebug("xhttp stream opened"); ce != nil {
		ce.Write(zap.String("remote", c.raddr.String()), zap.String("proto", r.Proto))
	}
	return c, nil
}

// Conn 实现 net.Conn. 读 来自请求体, 写 进入响应体.
type Conn struct {
	body io.ReadCloser
	w    http.ResponseWriter
	rc   *http.ResponseController

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}

	//ResponseController 不支持设置 deadline 时, 用定时器模拟
	readTimer *time.Timer

	laddr, raddr net.Addr
}

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.body.Read(p)
	if err != nil && n == 0 {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed && !errors.Is(err, io.EOF) {
			err = net.ErrClosed
		}
	}
	return n, err
}

// Write 写入后立即 Flush. 关闭后写入 返回 net.ErrClosed.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.rc.Flush()
}

// Close 可重复调用. 关闭后 http handler 即可返回.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.readTimer != nil {
			c.readTimer.Stop()
		}
		c.mu.Unlock()

		c.body.Close()
		close(c.done)
	})
	return nil
}

// Done 在 Close 后被关闭.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) LocalAddr() net.Addr  { return c.laddr }
func (c *Conn) RemoteAddr() net.Addr { return c.raddr }

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	err := c.rc.SetReadDeadline(t)
	if err == nil || !errors.Is(err, http.ErrNotSupported) {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
	if t.IsZero() || c.closed {
		return nil
	}
	//模拟的超时 是不可恢复的: 超时即关闭
	c.readTimer = time.AfterFunc(time.Until(t), func() { c.Close() })
	return nil
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	err := c.rc.SetWriteDeadline(t)
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
