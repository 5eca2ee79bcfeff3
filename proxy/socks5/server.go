package socks5

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

	//为true时 客户端可以不提供密码
	AllowNoAuth bool
}

func NewServer(d *credential.Deriver, allowNoAuth bool) *Server {
	return &Server{Deriver: d, AllowNoAuth: allowNoAuth}
}

func (*Server) Protocol() proxy.Protocol { return proxy.Socks5 }

// 从 methods 中选出我们接受的方法, 优先使用密码认证
func (s *Server) chooseMethod(methods []byte) byte {
	noauth := false
	for _, m := range methods {
		switch m {
		case AuthPassword:
			return AuthPassword
		case AuthNone:
			noauth = true
		}
	}
	if noauth && s.AllowNoAuth {
		return AuthNone
	}
	return AuthNoAcceptable
}

// Handshake 在回复 greeting 之前的失败 都是 MissError; 一旦回复了 method, 就不能再换协议了.
func (s *Server) Handshake(ctx context.Context, in *bufio.Reader, underlay net.Conn) (result proxy.Result, err error) {
	head, err := in.Peek(2)
	if err != nil {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "socks5 read greeting", ErrDetail: proxy.ErrParse, Data: err.Error()}}
		return
	}
	if head[0] != Version5 || head[1] == 0 {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "socks5 invalid greeting", ErrDetail: proxy.ErrParse, Data: head[0]}}
		return
	}
	greetingLen := 2 + int(head[1])
	greeting, err := in.Peek(greetingLen)
	if err != nil {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "socks5 read methods", ErrDetail: proxy.ErrParse, Data: err.Error()}}
		return
	}

	method := s.chooseMethod(greeting[2:])
	if method == AuthNoAcceptable {
		//不回复 0xff, 直接关闭
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "socks5 no acceptable method", ErrDetail: proxy.ErrAuth}}
		return
	}
	if method == AuthPassword && len(s.Deriver.Master) == 0 {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "socks5 no credential available", ErrDetail: proxy.ErrAuth}}
		return
	}

	in.Discard(greetingLen)

	if _, err = underlay.Write([]byte{Version5, method}); err != nil {
		err = utils.ErrInErr{ErrDesc: "socks5 write method reply", ErrDetail: err}
		return
	}

	user := Name
	if method == AuthPassword {
		if user, err = s.authenticate(in, underlay); err != nil {
			return
		}
	}

	target, err := readRequest(in)
	if err != nil {
		return
	}

	if _, err = underlay.Write(commonTCPHandshakeReply); err != nil {
		err = utils.ErrInErr{ErrDesc: "socks5 write reply", ErrDetail: err}
		return
	}

	result = proxy.Result{
		Conn:   &proxy.BufferedConn{Conn: underlay, R: in},
		Target: target,
		User:   user,
	}
	return
}

// RFC 1929: ver(1) ulen(1) uname plen(1) passwd. 认证失败时 不回复 status
func (s *Server) authenticate(in *bufio.Reader, underlay net.Conn) (user string, err error) {
	ver, err := in.ReadByte()
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "socks5 read auth version", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	if ver != authVersion {
		err = utils.ErrInErr{ErrDesc: "socks5 invalid auth version", ErrDetail: proxy.ErrParse, Data: ver}
		return
	}
	uname, err := readLenPrefixed(in)
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "socks5 read username", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	passwd, err := readLenPrefixed(in)
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "socks5 read password", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}

	if !s.Deriver.MatchPassword(credential.TagSocks5, passwd) {
		err = utils.ErrInErr{ErrDesc: "socks5 password not match", ErrDetail: proxy.ErrAuth, Data: string(uname)}
		return
	}

	if _, err = underlay.Write([]byte{authVersion, 0x00}); err != nil {
		err = utils.ErrInErr{ErrDesc: "socks5 write auth reply", ErrDetail: err}
		return
	}
	user = string(uname)
	return
}

func readLenPrefixed(in *bufio.Reader) ([]byte, error) {
	l, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	bs := make([]byte, l)
	if _, err = io.ReadFull(in, bs); err != nil {
		return nil, err
	}
	return bs, nil
}

// ver(5) cmd rsv(0) addr
func readRequest(in *bufio.Reader) (target netLayer.Addr, err error) {
	var head [3]byte
	if _, err = io.ReadFull(in, head[:]); err != nil {
		err = utils.ErrInErr{ErrDesc: "socks5 read request", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	if head[0] != Version5 {
		err = utils.ErrInErr{ErrDesc: "socks5 invalid request version", ErrDetail: proxy.ErrParse, Data: head[0]}
		return
	}
	if head[1] != CmdConnect {
		//bind 和 udp associate 都不支持
		err = utils.ErrInErr{ErrDesc: "socks5 unsupported command", ErrDetail: proxy.ErrParse, Data: head[1]}
		return
	}

	target, err = netLayer.ReadSocksAddr(in)
	if err != nil {
		err = utils.ErrInErr{ErrDesc: "socks5 read target", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	target.Network = "tcp"
	return
}
