/*
Package advLayer contains the inbound duplex transports that carry the proxy protocols.

目前有两种: ws (websocket, 通过 http upgrade 得到二进制流) 以及 xhttp (请求体为读端, 响应体为写端的 分块http).

两者最终都被统一成 net.Conn: Read 阻塞直到有数据, Write 保持顺序, Close 可重复调用.
传输层的关闭或错误 一定会体现为 Read/Write 的错误, 不会被吞掉.
*/
package advLayer

import (
	"net"
	"net/http"
	"strings"
)

// Server 在 http 层面 接受一个入站请求, 并将其转化为 net.Conn.
type Server interface {
	Name() string

	//根据 path 和 header 判断该请求是否属于本传输方式
	Match(r *http.Request) bool

	//Handshake 成功后, 协议数据立即开始. 返回的 net.Conn 在 http handler 返回前 都有效.
	Handshake(w http.ResponseWriter, r *http.Request) (net.Conn, error)
}

// Select 返回第一个 Match 的 Server
func Select(r *http.Request, servers ...Server) Server {
	for _, s := range servers {
		if s != nil && s.Match(r) {
			return s
		}
	}
	return nil
}

// 在cdn/反代 后面时, 从 header 中获取真实的客户端ip. 获取不到则返回nil.
func RealRemoteAddr(r *http.Request) net.Addr {
	var ipStr string
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ipStr = strings.TrimSpace(strings.Split(xff, ",")[0])
	} else if v := r.Header.Get("CF-Connecting-IP"); v != "" {
		ipStr = v
	} else if v := r.Header.Get("X-Real-IP"); v != "" {
		ipStr = v
	}
	if ipStr == "" {
		return nil
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil
	}
	return &net.TCPAddr{IP: ip}
}

// addr 实现 net.Addr, 用于 从 http.Request 的字符串地址 构造 net.Addr
type addr struct {
	network, s string
}

func (a addr) Network() string { return a.network }
func (a addr) String() string  { return a.s }

func NewAddr(network, s string) net.Addr {
	return addr{network: network, s: s}
}
