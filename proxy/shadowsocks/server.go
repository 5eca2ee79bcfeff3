package shadowsocks

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/proxy"
	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/shadowsocks/go-shadowsocks2/core"
	"github.com/shadowsocks/go-shadowsocks2/shadowaead"
	"go.uber.org/zap"
)

// 缓存的 cipher 数量上限. 每个窗口只有 2*skew+1 个候选密码, 超过上限说明窗口已经滚动过, 直接清空.
const maxCachedCiphers = 16

type Server struct {
	Deriver *credential.Deriver
	Method  string

	saltSize int

	mu      sync.Mutex
	ciphers map[string]core.Cipher
}

func NewServer(d *credential.Deriver, method string) (*Server, error) {
	method = normMethod(method)
	ss, err := SaltSize(method)
	if err != nil {
		return nil, err
	}
	return &Server{
		Deriver:  d,
		Method:   method,
		saltSize: ss,
		ciphers:  make(map[string]core.Cipher),
	}, nil
}

func (*Server) Protocol() proxy.Protocol { return proxy.Shadowsocks }

func (s *Server) MinLen() int { return s.saltSize + lenChunkSize }

// cipher 从 password 得到 key 要经过 EVP_BytesToKey, 所以缓存起来
func (s *Server) cipher(password string) (core.Cipher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.ciphers[password]; ok {
		return c, nil
	}
	c, _, err := pickCipher(s.Method, password)
	if err != nil {
		return nil, err
	}
	if len(s.ciphers) >= maxCachedCiphers {
		s.ciphers = make(map[string]core.Cipher)
	}
	s.ciphers[password] = c
	return c, nil
}

// Handshake 用每个候选密码 试着解密 第一个长度块. 所有候选都会试一遍.
func (s *Server) Handshake(ctx context.Context, in *bufio.Reader, underlay net.Conn) (result proxy.Result, err error) {
	head, err := in.Peek(s.MinLen())
	if err != nil {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "shadowsocks read salt", ErrDetail: proxy.ErrParse, Data: err.Error()}}
		return
	}
	salt := head[:s.saltSize]
	lenChunk := head[s.saltSize:]

	var matched core.Cipher
	var candidates []string
	if len(s.Deriver.Master) > 0 {
		candidates = s.Deriver.Candidates(credential.TagShadowsocks)
	}
	for _, pw := range candidates {
		c, e := s.cipher(pw)
		if e != nil {
			err = e
			return
		}
		if tryOpen(c, salt, lenChunk) && matched == nil {
			matched = c
		}
	}
	if matched == nil {
		err = proxy.MissError{Err: utils.ErrInErr{ErrDesc: "shadowsocks no password can decrypt", ErrDetail: proxy.ErrAuth}}
		return
	}

	//从这里开始, StreamConn 会自己从 in 中读取 salt 并校验每一个块
	ssConn := matched.StreamConn(&proxy.BufferedConn{Conn: underlay, R: in})
	br := bufio.NewReader(ssConn)

	target, err := netLayer.ReadSocksAddr(br)
	if err != nil {
		if ce := utils.CanLogDebug("shadowsocks read target failed"); ce != nil {
			ce.Write(zap.Error(err))
		}
		err = utils.ErrInErr{ErrDesc: "shadowsocks read target", ErrDetail: proxy.ErrParse, Data: err.Error()}
		return
	}
	target.Network = "tcp"

	result = proxy.Result{
		Conn:   &proxy.BufferedConn{Conn: ssConn, R: br},
		Target: target,
		User:   Name,
	}
	return
}

func tryOpen(c core.Cipher, salt, lenChunk []byte) bool {
	ac, ok := c.(shadowaead.Cipher)
	if !ok {
		return false
	}
	aead, err := ac.Decrypter(salt)
	if err != nil {
		return false
	}
	nonce := make([]byte, aead.NonceSize())
	_, err = aead.Open(nil, nonce, lenChunk, nil)
	return err == nil
}
