package netLayer

import (
	"io"
	"time"

	"github.com/e1732a364fed/edgetunnel/utils"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// TrafficCounter 记录一个会话两个方向的字节数, 以及最后一次有数据的时间.
// Up 为 客户端->目标, Down 为 目标->客户端.
type TrafficCounter struct {
	Up, Down   atomic.Int64
	lastActive atomic.Int64 //unix nano
}

func (tc *TrafficCounter) touch() {
	tc.lastActive.Store(time.Now().UnixNano())
}

// 距离最后一次有数据过了多久
func (tc *TrafficCounter) IdleFor() time.Duration {
	return time.Since(time.Unix(0, tc.lastActive.Load()))
}

// 从 readConn 读取数据并写入 writeConn, 直到错误发生。buf 决定了这个方向最多缓存多少,
// writeConn 写不进去的时候 我们也不会再读.
func copyCounting(writeConn io.Writer, readConn io.Reader, counter *atomic.Int64, tc *TrafficCounter) (allnum int64, err error) {
	buf := utils.GetPacket()
	defer utils.PutPacket(buf)

	for {
		n, re := readConn.Read(buf)
		if n > 0 {
			tc.touch()
			wn, we := writeConn.Write(buf[:n])
			allnum += int64(wn)
			counter.Add(int64(wn))
			if we != nil {
				err = we
				return
			}
			if wn != n {
				err = io.ErrShortWrite
				return
			}
		}
		if re != nil {
			if re != io.EOF {
				err = re
			}
			return
		}
	}
}

// Relay 从 wlc 读取 写入到 wrc，并同时从 wrc 读取写入 wlc. 阻塞, 两个方向都结束后才返回.
//
// 任一方向结束(对端关闭或出错), 立即关闭双方连接, 不会留下半开的连接.
// idleTimeout >0 时, 两个方向都超过 idleTimeout 没有数据, 也会关闭双方连接.
//
// wrc 为 远程(目标) 连接, wlc 为 本地(客户端) 连接. tc 可为nil.
func Relay(realTargetAddr *Addr, wrc, wlc io.ReadWriteCloser, idleTimeout time.Duration, tc *TrafficCounter) (up, down int64) {
	if tc == nil {
		tc = new(TrafficCounter)
	}
	tc.touch()

	closeBoth := func() {
		wlc.Close()
		wrc.Close()
	}

	done := make(chan struct{})

	if idleTimeout > 0 {
		go func() {
			t := time.NewTimer(idleTimeout)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-t.C:
					idle := tc.IdleFor()
					if idle >= idleTimeout {
						if ce := utils.CanLogDebug("relay idle timeout"); ce != nil {
							ce.Write(zap.String("target", realTargetAddr.String()), zap.Duration("idle", idle))
						}
						closeBoth()
						return
					}
					t.Reset(idleTimeout - idle)
				}
			}
		}()
	}

	upChan := make(chan int64, 1)

	go func() {
		n, e := copyCounting(wrc, wlc, &tc.Up, tc)
		if ce := utils.CanLogDebug("转发结束"); ce != nil {
			ce.Write(zap.String("direction", "本地->远程"),
				zap.String("target", realTargetAddr.String()),
				zap.Int64("copied bytes", n),
				zap.Error(e),
			)
		}
		closeBoth()
		upChan <- n
	}()

	down, e := copyCounting(wlc, wrc, &tc.Down, tc)
	if ce := utils.CanLogDebug("转发结束"); ce != nil {
		ce.Write(zap.String("direction", "远程->本地"),
			zap.String("target", realTargetAddr.String()),
			zap.Int64("copied bytes", down),
			zap.Error(e),
		)
	}
	closeBoth()

	up = <-upChan
	close(done)
	return
}
