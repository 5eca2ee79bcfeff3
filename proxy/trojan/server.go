package trojan

import (
	"bufio"
	"context"
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

func (*Server) Protocol() proxy.Protocol { return proxy.Trojan }

func (s *Server) Handshake(ctx context.Context, in *bufio.Reader, underlay net.Conn) (result proxy.Result, err error) {
	auth, err := in.Peek(authLen)
	if err != nil {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "trojan read auth", ErrDetail: proxy.ErrParse, Data: err.Error()}}
		return
	}
	if auth[authLen-2] != crlf[0] || auth[authLen-1] != crlf[1] {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "trojan no crlf after hash", ErrDetail: proxy.ErrParse}}
		return
	}
	if !s.Deriver.MatchTrojanHash(auth[:credential.TrojanHashLen]) {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "trojan hash not match", ErrDetail: proxy.ErrAuth}}
		return
	}

	in.Discard(authLen)

	cmdb, err := in.ReadByte()
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "trojan read cmd", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	if cmdb != CmdConnect {
		err = utils.ErrInErr{ErrDesc: "trojan unsupported cmd", ErrDetail: proxy.ErrParse, Data: cmdb}
		return
	}

	target, err := netLayer.ReadSocksAddr(in)
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "trojan read target", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	target.Network = "tcp"

	var tail [2]byte
	for i := range tail {
		if tail[i], err = in.ReadByte(); err != nil {
			err = utils.ErrInErr{ErrDesc: "trojan read crlf", ErrDetail: proxy.ErrParse, Data: err.Error()}
			return
		}
	}
	if tail[0] != crlf[0] || tail[1] != crlf[1] {
		err = utils.ErrInErr{ErrDesc: "trojan no crlf after target", ErrDetail: proxy.ErrParse}
		return
	}

	result = proxy.Result{
		Conn:   &proxy.BufferedConn{Conn: underlay, R: in},
		Target: target,
		User:   Name,
	}
	return
}
