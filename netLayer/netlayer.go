/*
Package netLayer contains definitions in network layer AND transport layer.

本包有 地址解析, dns, 拨号(Connector), relay 等相关功能。

出站连接统一由 Connector 拨号, 它会处理 egress override (即替换出口地址), 被屏蔽的网段 以及 自定义dns.
拨号成功后, 用 Relay 进行双向转发.
*/
package netLayer

import (
	"errors"
	"net"
	"time"
)

const (
	DefaultDialTimeout = time.Second * 8
	DefaultIdleTimeout = time.Minute * 5
)

var (
	ErrOutboundConnect = errors.New("outbound connect failed")
	ErrBlockedTarget   = errors.New("target is in blocked range")
)

// 判断 err 是否是 超时错误
func IsTimeoutErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
