package ws

import (
	"encoding/base64"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/e1732a364fed/edgetunnel/advLayer"
	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

const headerSecProtocol = "Sec-WebSocket-Protocol"

var ErrEarlyDataTooLong = utils.ErrInErr{ErrDesc: "ws early data too long", ErrDetail: utils.ErrInvalidData}

type Server struct {
	Thepath string

	UseEarlyData bool

	//握手超时. 0 表示不设置
	Timeout time.Duration
}

// 这里默认: 传入的path必须 以 "/" 为前缀. 本函数 不对此进行任何检查.
func NewServer(path string, useEarlyData bool) *Server {
	return &Server{
		Thepath:      path,
		UseEarlyData: useEarlyData,
	}
}

func (*Server) Name() string { return Name }

func (s *Server) Match(r *http.Request) bool {
	return r.Method == http.MethodGet && r.URL.Path == s.Thepath &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// Handshake 用于 websocket的 Server 监听端，建立握手. 用到了 gobwas/ws.HTTPUpgrader.
//
// 返回可直接用于读写 websocket 二进制数据的 net.Conn. 握手失败时 gobwas 已经写好了 http 错误响应.
func (s *Server) Handshake(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	var earlyData []byte

	upgrader := ws.HTTPUpgrader{Timeout: s.Timeout}

	if s.UseEarlyData {
		if ed := r.Header.Get(headerSecProtocol); ed != "" {
			if len(ed) > MaxEarlyDataLen_Base64 {
				return nil, ErrEarlyDataTooLong
			}

			bs, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(ed, "="))
			if err != nil {
				// 传来的并不是base64数据，可能是其它访问我们网站websocket的情况, 我们不回传这个protocol 就行
				if ce := utils.CanLogDebug("ws protocol header is not early data"); ce != nil {
					ce.Write(zap.Error(err))
				}
			} else {
				earlyData = bs

				//gobwas 会把这里选中的 protocol 写入响应
				upgrader.Protocol = func(p string) bool {
					return p == ed
				}
			}
		}
	}

	underlay, rw, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}

	theConn := newConn(underlay, ws.StateServerSide)

	// 客户端可能在握手后立即发送数据, 这些数据可能已经在 rw.Reader 的缓存中了
	if rw != nil && rw.Reader.Buffered() > 0 {
		theConn.r = wsutil.NewServerSideReader(rw.Reader)
		theConn.r.OnIntermediate = theConn.onControl
	}

	theConn.earlyData = earlyData
	if ra := advLayer.RealRemoteAddr(r); ra != nil {
		theConn.realRaddr = ra
	}

	if ce := utils.CanLogDebug("ws upgraded"); ce != nil {
		ce.Write(zap.String("remote", theConn.RemoteAddr().String()), zap.Int("earlydata", len(earlyData)))
	}

	return theConn, nil
}
