/*
Package shadowsocks implements the server side of shadowsocks AEAD (tcp only).

Reference

https://github.com/shadowsocks/shadowsocks-org/wiki/AEAD-Ciphers

一条 shadowsocks 连接 没有任何明文特征, 所以只能 试着用每个候选密码 去解密第一个 长度块.
我们只 Peek 出 salt + 长度块, 解密成功之前 不消费任何数据.

go-shadowsocks2 的 StreamConn 会把 读写到的 salt 加入一个全局的过滤器, 用于防止重放.
*/
package shadowsocks

import (
	"errors"
	"strings"

	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/shadowsocks/go-shadowsocks2/core"
	"github.com/shadowsocks/go-shadowsocks2/shadowaead"
)

const Name = "shadowsocks"

const (
	DefaultMethod = "chacha20-ietf-poly1305"

	tagSize         = 16
	lenChunkSize    = 2 + tagSize
	payloadSizeMask = 0x3FFF
)

var ErrUnsupportedMethod = errors.New("unsupported shadowsocks method")

// 支持的方法 与其 salt 长度
var saltSizes = map[string]int{
	"chacha20-ietf-poly1305": 32,
	"aes-256-gcm":            32,
	"aes-128-gcm":            16,
}

func normMethod(method string) string {
	if method == "" {
		return DefaultMethod
	}
	return strings.ToLower(method)
}

func SaltSize(method string) (int, error) {
	s, ok := saltSizes[normMethod(method)]
	if !ok {
		return 0, utils.ErrInErr{ErrDesc: "shadowsocks", ErrDetail: ErrUnsupportedMethod, Data: method}
	}
	return s, nil
}

// MinLen 是能够进行试解密的最小前缀长度, 即 salt + 加密后的长度块.
// 不支持的 method 返回0.
func MinLen(method string) int {
	s, err := SaltSize(method)
	if err != nil {
		return 0
	}
	return s + lenChunkSize
}

// pickCipher 返回的 core.Cipher 同时也是 shadowaead.Cipher
func pickCipher(method, password string) (core.Cipher, shadowaead.Cipher, error) {
	c, err := core.PickCipher(strings.ToUpper(normMethod(method)), nil, password)
	if err != nil {
		return nil, nil, utils.ErrInErr{ErrDesc: "shadowsocks pick cipher", ErrDetail: err, Data: method}
	}
	ac, ok := c.(shadowaead.Cipher)
	if !ok {
		return nil, nil, utils.ErrInErr{ErrDesc: "shadowsocks", ErrDetail: ErrUnsupportedMethod, Data: method}
	}
	return c, ac, nil
}

// 12字节 小端计数器
func increment(b []byte) {
	for i := range b {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}
