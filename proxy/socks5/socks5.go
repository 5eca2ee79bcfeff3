/*
Package socks5 implements the server side of socks5 CONNECT (RFC 1928), with the
username/password sub-negotiation of RFC 1929.

密码 即 socks5 标签派生出的凭证, 用户名随意. 任何失败都不会回复错误码, 直接关闭连接.
*/
package socks5

//总体而言，vless和vmess协议借鉴了socks5，所以有类似的地方。trojan协议也是一样。

const Name = "socks5"

// Version is socks5 version number.
const Version5 = 0x05

// RFC 1929 子协商的版本号
const authVersion = 0x01

// SOCKS auth type
const (
	AuthNone         = 0x00
	AuthPassword     = 0x02
	AuthNoAcceptable = 0xff
)

// SOCKS request commands as defined in RFC 1928 section 4
const (
	CmdConnect      = 0x01
	CmdBind         = 0x02
	CmdUDPAssociate = 0x03
)

// 解读如下：
// ver（5）, rep（0，表示成功）, rsv（0）, atyp(1, 即ipv4), BND.ADDR （ipv4(0,0,0,0)）, BND.PORT(0, 2字节)
// 这个 BND.ADDR和port 按理说不应该传0的，不过我们不告诉客户端 出口的真实地址
var commonTCPHandshakeReply = []byte{Version5, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// 常见客户端 只会提供一两个认证方法; 超过这个数的 greeting 在可能是 shadowsocks 时 不被认定.
const MaxGreetingMethods = 8

// IsGreeting 判断 bs 是否恰好是一个完整的 greeting: [5, nmethods, methods...].
// possible 表示 bs 还可能 在读到更多数据后 成为一个 greeting.
func IsGreeting(bs []byte) (match, possible bool) {
	if len(bs) == 0 {
		return false, true
	}
	if bs[0] != Version5 {
		return false, false
	}
	if len(bs) == 1 {
		return false, true
	}
	n := int(bs[1])
	if n == 0 {
		return false, false
	}
	switch {
	case len(bs) == 2+n:
		return true, true
	case len(bs) < 2+n:
		return false, true
	}
	return false, false
}
