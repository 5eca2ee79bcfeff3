// Package trojan implements the trojan server handshake.
//
// See https://trojan-gfw.github.io/trojan/protocol .
//
//	hex(sha224(password))(56) | CRLF | cmd(1) | atyp(1) | addr | port(2) | CRLF | payload...
//
// 没有任何响应, 握手成功与否 体现在 后续的数据 是否被转发.
package trojan

import (
	"bytes"

	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/netLayer"
)

const Name = "trojan"

const (
	CmdConnect      = 0x01
	CmdUDPAssociate = 0x03
)

var crlf = []byte{0x0d, 0x0a}

// hash + crlf
const authLen = credential.TrojanHashLen + 2

// Classify 用: 前56字节是 小写hex, 接着是 CRLF
func IsTrojanPrefix(bs []byte) (match, possible bool) {
	n := len(bs)
	if n > authLen {
		n = authLen
	}
	for i := 0; i < n; i++ {
		b := bs[i]
		if i < credential.TrojanHashLen {
			if !((b >= '0' && b <= '9') || (b >= 'a' && b <= 'f')) {
				return false, false
			}
		} else if b != crlf[i-credential.TrojanHashLen] {
			return false, false
		}
	}
	if len(bs) >= authLen {
		return true, true
	}
	return false, true
}

// ClientRequest 生成 客户端 的请求头 (不含数据). 测试 以及 健康检查 使用.
func ClientRequest(password string, target netLayer.Addr) []byte {
	var buf bytes.Buffer
	buf.Write(credential.TrojanHash(password))
	buf.Write(crlf)
	buf.WriteByte(CmdConnect)
	buf.Write(target.SocksBytes())
	buf.Write(crlf)
	return buf.Bytes()
}
