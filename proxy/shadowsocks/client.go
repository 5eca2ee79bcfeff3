package shadowsocks

import (
	"crypto/cipher"
	"crypto/rand"
	"io"
	"net"
	"sync"

	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/shadowsocks/go-shadowsocks2/shadowaead"
)

// NewClientConn 返回 shadowsocks AEAD 客户端一侧的连接, 写入的第一段数据 应该是目标地址 (socks5格式).
//
// 与 go-shadowsocks2 的 StreamConn 不同, 它不会把自己的 salt 写入全局过滤器,
// 所以同一个进程中的服务端 也可以接受它 (节点自检 和 测试 都需要这样).
func NewClientConn(underlay net.Conn, method, password string) (net.Conn, error) {
	return NewClientConnWithSalt(underlay, method, password, nil)
}

// NewClientConnWithSalt 使用给定的 salt, salt 为 nil 时 随机生成. salt 不能重复使用.
func NewClientConnWithSalt(underlay net.Conn, method, password string, salt []byte) (net.Conn, error) {
	_, ac, err := pickCipher(method, password)
	if err != nil {
		return nil, err
	}
	if salt != nil && len(salt) != ac.SaltSize() {
		return nil, utils.ErrInErr{ErrDesc: "shadowsocks wrong salt size", ErrDetail: utils.ErrInvalidData, Data: len(salt)}
	}
	return &clientConn{Conn: underlay, ciph: ac, salt: salt}, nil
}

type clientConn struct {
	net.Conn
	ciph shadowaead.Cipher
	salt []byte

	wmu    sync.Mutex
	w      cipher.AEAD
	wNonce []byte

	r      cipher.AEAD
	rNonce []byte
	rbuf   []byte
}

func (c *clientConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	var out []byte
	if c.w == nil {
		salt := c.salt
		if salt == nil {
			salt = make([]byte, c.ciph.SaltSize())
			if _, err := rand.Read(salt); err != nil {
				return 0, err
			}
		}
		aead, err := c.ciph.Encrypter(salt)
		if err != nil {
			return 0, err
		}
		c.w = aead
		c.wNonce = make([]byte, aead.NonceSize())
		out = append(out, salt...)
	}

	n := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > payloadSizeMask {
			chunk = chunk[:payloadSizeMask]
		}
		size := []byte{byte(len(chunk) >> 8), byte(len(chunk))}
		out = c.w.Seal(out, c.wNonce, size, nil)
		increment(c.wNonce)
		out = c.w.Seal(out, c.wNonce, chunk, nil)
		increment(c.wNonce)

		p = p[len(chunk):]
		n += len(chunk)
	}
	if _, err := c.Conn.Write(out); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *clientConn) Read(p []byte) (int, error) {
	if len(c.rbuf) > 0 {
		n := copy(p, c.rbuf)
		c.rbuf = c.rbuf[n:]
		return n, nil
	}

	if c.r == nil {
		salt := make([]byte, c.ciph.SaltSize())
		if _, err := io.ReadFull(c.Conn, salt); err != nil {
			return 0, err
		}
		aead, err := c.ciph.Decrypter(salt)
		if err != nil {
			return 0, err
		}
		c.r = aead
		c.rNonce = make([]byte, aead.NonceSize())
	}

	overhead := c.r.Overhead()
	buf := make([]byte, 2+overhead)
	if _, err := io.ReadFull(c.Conn, buf); err != nil {
		return 0, err
	}
	sizeBs, err := c.r.Open(buf[:0], c.rNonce, buf, nil)
	if err != nil {
		return 0, utils.ErrInErr{ErrDesc: "shadowsocks client open length", ErrDetail: err}
	}
	increment(c.rNonce)

	size := int(sizeBs[0])<<8&payloadSizeMask | int(sizeBs[1])
	buf = make([]byte, size+overhead)
	if _, err := io.ReadFull(c.Conn, buf); err != nil {
		return 0, err
	}
	payload, err := c.r.Open(buf[:0], c.rNonce, buf, nil)
	if err != nil {
		return 0, utils.ErrInErr{ErrDesc: "shadowsocks client open payload", ErrDetail: err}
	}
	increment(c.rNonce)

	n := copy(p, payload)
	c.rbuf = payload[n:]
	return n, nil
}
