package netLayer

import (
	"net"
	"time"

	"github.com/pires/go-proxyproto"
)

const DefaultProxyProtocolTimeout = time.Second * 5

// 前面是 负载均衡 时, 每个连接都必须带 PROXY 头
var proxyProtocolListenPolicyFunc = func(upstream net.Addr) (proxyproto.Policy, error) { return proxyproto.REQUIRE, nil }

// PROXY protocol。
// Reference： http://www.haproxy.org/download/1.8/doc/proxy-protocol.txt
//
// ListenProxyProtocol 包装 ln, 返回的连接的 RemoteAddr 为 PROXY 头中的 客户端地址. v1 和 v2 都支持.
func ListenProxyProtocol(ln net.Listener, readHeaderTimeout time.Duration) net.Listener {
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = DefaultProxyProtocolTimeout
	}
	return &proxyproto.Listener{
		Listener:          ln,
		Policy:            proxyProtocolListenPolicyFunc,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
