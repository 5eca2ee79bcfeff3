package edgetunnel

import (
	"net"
	"time"

	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/proxy"
	"go.uber.org/atomic"
)

// 会话的生命周期
//
//	AwaitingBytes -> Classified -> Authenticating -> Authenticated -> Relaying -> Closed
//
// 任何一步失败 都进入 Failed.
type State int32

const (
	StateAwaitingBytes State = iota
	StateClassified
	StateAuthenticating
	StateAuthenticated
	StateRelaying
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingBytes:
		return "AWAITING_BYTES"
	case StateClassified:
		return "CLASSIFIED"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateRelaying:
		return "RELAYING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Session 是一个入站连接从握手到转发结束的全部状态. 只被服务它的那个 goroutine 修改,
// state 和 Traffic 可以被其它 goroutine 读取.
type Session struct {
	ID        uint64
	Transport string //"ws" | "xhttp" | "tcp"
	Remote    net.Addr
	Started   time.Time

	Protocol proxy.Protocol
	User     string
	Target   netLayer.Addr

	Traffic netLayer.TrafficCounter

	Err error

	state    atomic.Int32
	failedAt State //进入 Failed 之前所处的状态
}

var sessionID atomic.Uint64

func newSession(transport string, conn net.Conn) *Session {
	return &Session{
		ID:        sessionID.Inc(),
		Transport: transport,
		Remote:    conn.RemoteAddr(),
		Started:   time.Now(),
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) fail(err error) {
	s.Err = err
	s.failedAt = s.State()
	s.setState(StateFailed)
}

func (s *Session) remoteStr() string {
	if s.Remote == nil {
		return ""
	}
	return s.Remote.String()
}
