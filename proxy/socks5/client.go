package socks5

import (
	"io"

	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/utils"
)

// ClientHandshake 在 rw 上完成 socks5 CONNECT 握手. password 为空时 只提供 AuthNone.
func ClientHandshake(rw io.ReadWriter, username, password string, target netLayer.Addr) error {
	var ba [10]byte

	if password == "" {
		_, err := rw.Write([]byte{Version5, 1, AuthNone})
		if err != nil {
			return err
		}
	} else {
		_, err := rw.Write([]byte{Version5, 1, AuthPassword})
		if err != nil {
			return err
		}
	}

	if _, err := io.ReadFull(rw, ba[:2]); err != nil {
		return err
	}
	if ba[0] != Version5 || ba[1] == AuthNoAcceptable {
		return utils.NumErr{Prefix: "socks5 client handshake, method rejected ", N: int(ba[1])}
	}

	if ba[1] == AuthPassword {
		buf := utils.GetBuf()
		defer utils.PutBuf(buf)

		buf.WriteByte(authVersion)
		buf.WriteByte(byte(len(username)))
		buf.WriteString(username)
		buf.WriteByte(byte(len(password)))
		buf.WriteString(password)
		if _, err := rw.Write(buf.Bytes()); err != nil {
			return err
		}
		if _, err := io.ReadFull(rw, ba[:2]); err != nil {
			return err
		}
		if ba[1] != 0 {
			return utils.NumErr{Prefix: "socks5 client auth failed ", N: int(ba[1])}
		}
	}

	req := append([]byte{Version5, CmdConnect, 0}, target.SocksBytes()...)
	if _, err := rw.Write(req); err != nil {
		return err
	}

	if _, err := io.ReadFull(rw, ba[:]); err != nil {
		return err
	}
	if ba[0] != Version5 || ba[1] != 0 {
		return utils.NumErr{Prefix: "socks5 client handshake failed when reading response ", N: int(ba[1])}
	}
	return nil
}
