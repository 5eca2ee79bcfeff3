package edgetunnel

import (
	"github.com/e1732a364fed/edgetunnel/proxy"
	"github.com/e1732a364fed/edgetunnel/proxy/socks5"
	"github.com/e1732a364fed/edgetunnel/proxy/trojan"
	"github.com/e1732a364fed/edgetunnel/proxy/vless"
)

// Classify 根据 已经读到的前缀 给出候选协议, 按优先级排列. 不进行任何io.
//
// ssMin 为 shadowsocks 试解密 所需的最小长度, 为0表示不考虑 shadowsocks.
//
// 优先级: trojan > socks5 > vless > shadowsocks. shadowsocks 没有明文特征, 是剩下的那一类;
// 由于 salt 是随机的, 它的第一个字节 可能恰好是 socks5 或 vless 的标志, 所以在长度足够时
// shadowsocks 会作为第二候选 跟在 socks5 和 vless 后面.
//
// 返回非空 candidates 且 needMore 为 true 时, 表示 这些候选都不匹配的话, 再多读一些 还可能是 shadowsocks.
// 客户端经常把 salt 单独写一次, 所以 还不够 ssMin 时 不能就此认定.
//
// 返回空的 candidates 且 needMore 为 false 时, 说明不可能识别出来了.
func Classify(prefix []byte, ssMin int) (candidates []proxy.Protocol, needMore bool) {
	n := len(prefix)
	if n == 0 {
		return nil, true
	}
	ssReady := ssMin > 0 && n >= ssMin
	ssLater := ssMin > 0 && n < ssMin

	withSS := func(p proxy.Protocol) []proxy.Protocol {
		if ssReady {
			return []proxy.Protocol{p, proxy.Shadowsocks}
		}
		return []proxy.Protocol{p}
	}

	trojanMatch, trojanPossible := trojan.IsTrojanPrefix(prefix)
	if trojanMatch {
		return []proxy.Protocol{proxy.Trojan}, false
	}

	socksMatch, socksPossible := socks5.IsGreeting(prefix)
	if socksMatch {
		//socks5 一旦选定了认证方法 就无法回头了. 方法多得不像真的客户端时, 多半是单独发来的 salt
		if ssLater && int(prefix[1]) > socks5.MaxGreetingMethods {
			return nil, true
		}
		return withSS(proxy.Socks5), false
	}

	if prefix[0] == 0 {
		if n >= vless.MinLen {
			return withSS(proxy.Vless), ssLater
		}
		return nil, true
	}

	if trojanPossible {
		return nil, true
	}

	if ssReady {
		return []proxy.Protocol{proxy.Shadowsocks}, false
	}

	//socks5 greeting 还没读完, 或者 还不够 shadowsocks 的长度
	return nil, socksPossible || ssMin > 0
}

// 去掉未启用的协议
func filterEnabled(candidates []proxy.Protocol, enabled func(proxy.Protocol) bool) []proxy.Protocol {
	r := candidates[:0:0]
	for _, p := range candidates {
		if enabled(p) {
			r = append(r, p)
		}
	}
	return r
}
