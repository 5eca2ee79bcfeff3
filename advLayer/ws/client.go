package ws

import (
	"context"
	"encoding/base64"
	"net"

	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Dial 与 服务端 进行 websocket握手，并返回可直接用于读写 websocket 二进制数据的 net.Conn.
// rawurl 形如 ws://host:port/path.
//
// earlyData 不为空时 以 base64url 编码放在 Sec-WebSocket-Protocol 中随握手一起发送 (0-rtt),
// 长度不能超过 MaxEarlyDataLen.
func Dial(ctx context.Context, rawurl string, earlyData []byte) (net.Conn, error) {
	d := ws.Dialer{}
	if len(earlyData) > 0 {
		if len(earlyData) > MaxEarlyDataLen {
			return nil, ErrEarlyDataTooLong
		}
		// 默认不给出Protocols的话, gobwas就不会发送这个header
		d.Protocols = []string{base64.RawURLEncoding.EncodeToString(earlyData)}
	}

	underlay, br, _, err := d.Dial(ctx, rawurl)
	if err != nil {
		return nil, utils.ErrInErr{ErrDesc: "ws dial failed", ErrDetail: err, Data: rawurl}
	}

	theConn := newConn(underlay, ws.StateClientSide)

	//之所以返回值中有br，是因为服务器可能紧接着向我们迅猛地发送数据; 根据 gobwas/ws的代码，在服务器没有返回任何数据时，br为nil
	if br != nil {
		theConn.r = wsutil.NewClientSideReader(br)
		theConn.r.OnIntermediate = theConn.onControl
	}
	return theConn, nil
}
