package netLayer

import (
	"context"
	"net"
	"time"

	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/yl2chen/cidranger"
	"go.uber.org/zap"
)

// Egress 描述 某协议 的出站方式.
//
// 若 Overrides 不为空, 则按顺序拨号 Overrides 里的地址, 取代客户端请求的目标地址;
// 全部失败后, 只有在 AllowDirect 时才会再尝试直连目标.
type Egress struct {
	Overrides   []Addr //Port 为0 表示沿用目标端口
	AllowDirect bool
}

// Connector 打开出站连接. 零值可用.
type Connector struct {
	DialTimeout time.Duration
	Resolver    *DNSResolver     //可为nil, 此时用系统dns
	Blocked     cidranger.Ranger //可为nil; 只作用于 客户端请求的目标, 不作用于 Overrides
	Dial        DialFunc         //可为nil
}

func (c *Connector) dialFunc() DialFunc {
	if c.Dial != nil {
		return c.Dial
	}
	d := &net.Dialer{Timeout: c.timeout()}
	return d.DialContext
}

func (c *Connector) timeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return DefaultDialTimeout
}

// Connect 打开到 target 的连接, 会应用 egress 里的 Overrides.
// 第一个成功的连接胜出. 失败时返回的错误 Is ErrOutboundConnect.
func (c *Connector) Connect(ctx context.Context, target Addr, egress Egress) (net.Conn, error) {
	var lastErr error

	for i, o := range egress.Overrides {
		if o.Port == 0 {
			o.Port = target.Port
		}
		conn, err := c.dialOnce(ctx, o)
		if err == nil {
			if ce := utils.CanLogDebug("egress override connected"); ce != nil {
				ce.Write(zap.String("target", target.String()), zap.String("override", o.String()), zap.Int("index", i))
			}
			return conn, nil
		}
		lastErr = err
		if ce := utils.CanLogInfo("egress override failed"); ce != nil {
			ce.Write(zap.String("override", o.String()), zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	if len(egress.Overrides) == 0 || egress.AllowDirect {
		conn, err := c.connectDirect(ctx, target)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	return nil, utils.ErrInErr{ErrDesc: "connect " + target.String(), ErrDetail: ErrOutboundConnect, Data: lastErr}
}

func (c *Connector) connectDirect(ctx context.Context, target Addr) (net.Conn, error) {
	if c.Blocked != nil {
		resolved, err := target.Resolve(ctx, c.Resolver)
		if err != nil {
			return nil, err
		}
		resolved.Normalize()
		if blocked, _ := c.Blocked.Contains(resolved.IP); blocked {
			return nil, utils.ErrInErr{ErrDesc: "refuse to dial", ErrDetail: ErrBlockedTarget, Data: resolved.IP.String()}
		}
		return c.dialOnce(ctx, resolved)
	}

	if c.Resolver != nil && target.IP == nil {
		resolved, err := target.Resolve(ctx, c.Resolver)
		if err != nil {
			return nil, err
		}
		target = resolved
	}
	return c.dialOnce(ctx, target)
}

func (c *Connector) dialOnce(ctx context.Context, a Addr) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	return a.DialContext(ctx, c.dialFunc())
}
