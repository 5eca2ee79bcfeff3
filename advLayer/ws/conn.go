package ws

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn 实现 net.Conn.
// 因为 gobwas/ws 不包装conn，在写入和读取二进制时需要使用 较为底层的函数才行，并未被提供标准的Read和Write。
// 因此我们包装一下，统一使用Read和Write函数 来读写 二进制数据。
type Conn struct {
	net.Conn

	state ws.State
	r     *wsutil.Reader

	//gobwas 写一个帧 要分 头部 和 负载 两次写入, 所以锁要覆盖整个帧.
	// 读端回复 pong/close 时 也要拿这个锁
	wmu sync.Mutex

	onControl wsutil.FrameHandlerFunc

	inMessage bool

	earlyData []byte

	closeOnce sync.Once

	realRaddr net.Addr //可从 X-Forwarded-For 读取用户真实ip，用于反代等情况
}

func newConn(underlay net.Conn, state ws.State) *Conn {
	c := &Conn{
		Conn:  underlay,
		state: state,
	}
	if state == ws.StateServerSide {
		c.r = wsutil.NewServerSideReader(underlay)
	} else {
		c.r = wsutil.NewClientSideReader(underlay)
	}
	handle := wsutil.ControlFrameHandler(underlay, state)
	c.onControl = func(h ws.Header, r io.Reader) error {
		c.wmu.Lock()
		defer c.wmu.Unlock()
		return handle(h, r)
	}
	c.r.OnIntermediate = c.onControl
	return c
}

// Read websocket binary frames
func (c *Conn) Read(p []byte) (int, error) {
	if len(c.earlyData) > 0 {
		n := copy(p, c.earlyData)
		c.earlyData = c.earlyData[n:]
		return n, nil
	}

	//websocket 协议中帧长度上限为2^64，超大, 肯定会有多读的情况, 所以我们要分段读，
	// 直接用 wsutil.Reader.Read 即可， 注意 每条消息的第一次Read前 必须要有 NextFrame调用.
	// ( wsutil.ReadServerBinary内部使用了 io.ReadAll, 而ReadAll是会无限增长内存的 )
	//
	// wsutil.Reader.Read 会自己处理分片的消息(OpContinuation), 整条消息读完时返回 EOF,
	// 这是 gobwas 的特性, 我们这里不是真的EOF.
	for {
		for !c.inMessage {
			h, e := c.r.NextFrame()
			if e != nil {
				return 0, e
			}
			if h.OpCode.IsControl() {
				// 分片消息中间的控制帧 在 OnIntermediate 里被处理, 不会到这里; 到这里的要自己处理.
				// 收到 close 帧时 会回复close 并返回 wsutil.ClosedError
				if e := c.onControl(h, c.r); e != nil {
					return 0, e
				}
				continue
			}
			if h.OpCode != ws.OpBinary {
				return 0, utils.ErrInErr{ErrDesc: "ws OpCode not OpBinary", ErrDetail: utils.ErrInvalidData, Data: h.OpCode}
			}
			c.inMessage = true
		}

		n, e := c.r.Read(p)
		if e == io.EOF {
			c.inMessage = false
			if n == 0 {
				continue
			}
			return n, nil
		}
		return n, e
	}
}

// Write websocket binary frames. 不分片, 无需缓存
func (c *Conn) Write(p []byte) (n int, e error) {
	c.wmu.Lock()
	if c.state == ws.StateClientSide {
		e = wsutil.WriteClientBinary(c.Conn, p)
	} else {
		e = wsutil.WriteServerBinary(c.Conn, p)
	}
	c.wmu.Unlock()

	if e == nil {
		n = len(p)
	}
	return
}

// Close 尽量发送一个 close帧, 然后关闭底层连接. 可重复调用.
func (c *Conn) Close() (err error) {
	err = net.ErrClosed
	c.closeOnce.Do(func() {
		c.Conn.SetWriteDeadline(time.Now().Add(time.Second))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		c.wmu.Lock()
		if c.state == ws.StateClientSide {
			wsutil.WriteClientMessage(c.Conn, ws.OpClose, body)
		} else {
			wsutil.WriteServerMessage(c.Conn, ws.OpClose, body)
		}
		c.wmu.Unlock()
		err = c.Conn.Close()
	})
	return
}

func (c *Conn) RemoteAddr() net.Addr {
	if c.realRaddr != nil {
		return c.realRaddr
	}
	return c.Conn.RemoteAddr()
}
