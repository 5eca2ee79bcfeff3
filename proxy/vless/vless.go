// Package vless provides the vless (version 0) server handshake.
//
// 请求格式:
//
//	ver(1)=0 | id(16) | optLen(1) | opts | cmd(1) | port(2) | atyp(1) | addr | payload...
//
// atyp: 1=ipv4, 2=域名(前有一字节长度), 3=ipv6. 服务端在第一次写入数据前 先写入响应头 [0, 0].
package vless

import (
	"github.com/e1732a364fed/edgetunnel/netLayer"
)

const Name = "vless"

// CMD types
const (
	_ byte = iota
	CmdTCP
	CmdUDP
	CmdMux
)

// ver + id
const authLen = 17

// Classify 只需要这么多字节 就能认出 vless: ver + id + optLen
const MinLen = authLen + 1

// ClientRequest 生成 客户端 的请求头 (不含数据). 服务端的测试 以及 健康检查 使用.
func ClientRequest(id [16]byte, target netLayer.Addr) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, 0)
	buf = append(buf, id[:]...)
	buf = append(buf, 0, CmdTCP)
	return append(buf, target.V2rayBytes()...)
}
