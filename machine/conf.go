package machine

import (
	"io"
	"time"

	"github.com/e1732a364fed/edgetunnel/config"
	"github.com/e1732a364fed/edgetunnel/utils"
	"go.uber.org/zap"
)

// SetupApp 应用 [app] 中的日志设置. 命令行中显式给出的 -ll / -lf 优先.
func SetupApp(ac config.AppConf) {
	if ac.LogLevel != nil && !utils.IsFlagGiven("ll") {
		utils.LogLevel = *ac.LogLevel
	}
	if ac.LogFile != nil && !utils.IsFlagGiven("lf") {
		utils.LogOutFileName = *ac.LogFile
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// NewResolver 按照配置文件 组装 Resolver. 给出 redis_addr 时使用 RedisStore, 否则使用内存store;
// 返回的 io.Closer 用于关闭 store 的连接, 可能为nil.
func NewResolver(fc config.FileConf) (*config.Resolver, io.Closer, error) {
	r := &config.Resolver{
		Defaults:  config.NewStaticDefaults(fc.Defaults),
		CacheTTL:  config.DefaultCacheTTL,
		RemoteTTL: config.DefaultRemoteTTL,
	}
	if d := seconds(fc.App.CacheTTL); d > 0 {
		r.CacheTTL = d
	}
	if d := seconds(fc.App.RemoteTTL); d > 0 {
		r.RemoteTTL = d
	}

	var closer io.Closer

	if fc.App.RedisAddr != "" {
		rs := config.NewRedisStore(fc.App.RedisAddr, fc.App.RedisPassword, fc.App.RedisDB)
		r.Store = rs
		closer = rs

		if ce := utils.CanLogInfo("using redis store"); ce != nil {
			ce.Write(zap.String("addr", fc.App.RedisAddr), zap.Int("db", fc.App.RedisDB))
		}
	} else {
		r.Store = config.NewMemStore(nil)

		if ce := utils.CanLogWarn("no redis_addr given, admin writes will not survive a restart"); ce != nil {
			ce.Write()
		}
	}
	return r, closer, nil
}

// NewFromConf 由配置文件 创建 M, 还需调用 Init.
func NewFromConf(fc config.FileConf) (*M, io.Closer, error) {
	r, closer, err := NewResolver(fc)
	if err != nil {
		return nil, nil, err
	}
	m := New(r)
	m.ProxyProtocol = fc.App.ProxyProtocol
	if d := seconds(fc.App.RefreshInterval); d > 0 {
		m.RefreshInterval = d
	}
	return m, closer, nil
}

// ListenAddr 返回配置的监听地址, 未给出时 使用 config.DefaultListen
func ListenAddr(ac config.AppConf) string {
	if ac.Listen == "" {
		return config.DefaultListen
	}
	return ac.Listen
}
