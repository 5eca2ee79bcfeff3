package proxy

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/netLayer"
)

// 用于探测协议的 最大前缀长度, 也是每个会话的 bufio.Reader 的大小
const MaxPeekLen = 2048

// Protocol 是封闭的协议集合. 零值表示 尚未识别.
type Protocol uint8

const (
	Unknown Protocol = iota
	Vless
	Trojan
	Shadowsocks
	Socks5
)

var AllProtocols = []Protocol{Vless, Trojan, Shadowsocks, Socks5}

// String 返回协议标签, 与 credential 包 以及 配置中使用的相同
func (p Protocol) String() string {
	switch p {
	case Vless:
		return credential.TagVless
	case Trojan:
		return credential.TagTrojan
	case Shadowsocks:
		return credential.TagShadowsocks
	case Socks5:
		return credential.TagSocks5
	}
	return "unknown"
}

func ProtocolFromTag(tag string) Protocol {
	for _, p := range AllProtocols {
		if p.String() == tag {
			return p
		}
	}
	return Unknown
}

var (
	ErrTransport      = errors.New("transport error")
	ErrClassification = errors.New("no protocol signature matched")
	ErrAuth           = errors.New("credential mismatch")
	ErrParse          = errors.New("malformed protocol header")
)

// MissError 表示 在没有消费任何字节, 也没有写入任何字节之前 就失败了, 调用者可以尝试下一个候选协议.
type MissError struct {
	Err error
}

func (e MissError) Error() string { return "candidate miss: " + e.Err.Error() }
func (e MissError) Unwrap() error { return e.Err }

func IsMiss(err error) bool {
	var m MissError
	return errors.As(err, &m)
}

// Result 是握手成功的结果.
//
// Conn 会先读出握手后剩余的数据, 并负责该协议在relay阶段的封装 (比如 shadowsocks 的加解密, vless 的响应头).
type Result struct {
	Conn   net.Conn
	Target netLayer.Addr
	User   string //认证通过的凭证的标签, 只用于日志
}

type Handler interface {
	Protocol() Protocol

	// in 是 underlay 的 bufio.Reader, 里面可能已经有 Classify 时读到的数据.
	Handshake(ctx context.Context, in *bufio.Reader, underlay net.Conn) (Result, error)
}

// BufferedConn 从 R 读取, 其它操作交给 net.Conn; 用于把 bufio.Reader 里剩余的数据 接回连接上.
type BufferedConn struct {
	net.Conn
	R io.Reader
}

func (c *BufferedConn) Read(p []byte) (int, error) {
	return c.R.Read(p)
}
