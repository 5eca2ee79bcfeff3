package vless

import (
	"bufio"
	"context"
	"io"
	"net"

	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/proxy"
	"github.com/e1732a364fed/edgetunnel/utils"
)

type Server struct {
	Deriver *credential.Deriver
}

func NewServer(d *credential.Deriver) *Server {
	return &Server{Deriver: d}
}

func (*Server) Protocol() proxy.Protocol { return proxy.Vless }

// Handshake 先 Peek 出 ver 和 id, id 匹配后 才开始消费数据.
func (s *Server) Handshake(ctx context.Context, in *bufio.Reader, underlay net.Conn) (result proxy.Result, err error) {
	auth, err := in.Peek(authLen)
	if err != nil {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "vless read auth", ErrDetail: proxy.ErrParse, Data: err.Error()}}
		return
	}

	if auth[0] != 0 {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "vless invalid version", ErrDetail: proxy.ErrParse, Data: auth[0]}}
		return
	}

	if !s.Deriver.MatchID(auth[1:authLen]) {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "vless invalid user", ErrDetail: proxy.ErrAuth}}
		return
	}

	//凭证已匹配, 从这里开始的错误 都是终结性的
	in.Discard(authLen)

	addonLen, err := in.ReadByte()
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "vless read addon length", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	if addonLen > 0 {
		//我们不支持任何addon, 直接跳过
		if _, err = in.Discard(int(addonLen)); err != nil {
			err = utils.ErrInErr{ErrDesc: "vless read addons", ErrDetail: proxy.ErrParse, Data: err.Error()}
			return
		}
	}

	cmd, err := in.ReadByte()
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "vless read cmd", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	if cmd != CmdTCP {
		err = utils.ErrInErr{ErrDesc: "vless unsupported cmd", ErrDetail: proxy.ErrParse, Data: cmd}
		return
	}

	target, err := netLayer.ReadV2rayAddr(in)
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "vless read target", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	target.Network = "tcp"

	result = proxy.Result{
		Conn:   &UserConn{Conn: underlay, r: in},
		Target: target,
		User:   Name,
	}
	return
}

// UserConn 读取时先读出握手剩余的数据; 第一次写入时 先写入响应头.
type UserConn struct {
	net.Conn

	r io.Reader

	isntFirstPacket bool
}

func (uc *UserConn) Read(p []byte) (int, error) {
	return uc.r.Read(p)
}

func (uc *UserConn) Write(p []byte) (int, error) {
	if uc.isntFirstPacket {
		return uc.Conn.Write(p)
	}
	uc.isntFirstPacket = true

	buf := utils.GetBytes(len(p) + 2)
	defer utils.PutBytes(buf)

	buf[0] = 0 //version
	buf[1] = 0 //addon length
	copy(buf[2:], p)

	n, err := uc.Conn.Write(buf)
	if n >= 2 {
		n -= 2
	} else {
		n = 0
	}
	return n, err
}
