package netLayer

import (
	"context"
	"net"
	"strconv"

	"github.com/yl2chen/cidranger"
)

// DialFunc 与 net.Dialer.DialContext 签名相同, 测试时可替换.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// 解析出IP, 以便判断 blocked 网段; 若 r 为nil则使用系统 dns.
func (a Addr) Resolve(ctx context.Context, r *DNSResolver) (Addr, error) {
	if a.IP != nil || a.Name == "" {
		return a, nil
	}

	var ip net.IP
	if r != nil {
		var err error
		ip, err = r.LookupIP(ctx, a.Name)
		if err != nil {
			return a, err
		}
	} else {
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, a.Name)
		if err != nil {
			return a, err
		}
		if len(ips) == 0 {
			return a, &net.DNSError{Err: "no such host", Name: a.Name, IsNotFound: true}
		}
		ip = ips[0].IP
		for _, ipa := range ips {
			if ipa.IP.To4() != nil { //优先ipv4
				ip = ipa.IP
				break
			}
		}
	}
	result := a
	result.IP = ip
	return result, nil
}

// DialContext 拨号 tcp. a 必须带端口.
func (a Addr) DialContext(ctx context.Context, dial DialFunc) (net.Conn, error) {
	network := a.Network
	if network == "" {
		network = "tcp"
	}
	return dial(ctx, network, net.JoinHostPort(a.HostStr(), strconv.Itoa(a.Port)))
}

// 生成用于屏蔽出站目标的 ranger. 元素可以是 cidr, 也可以是单个ip.
func NewBlockRanger(list []string) (cidranger.Ranger, error) {
	if len(list) == 0 {
		return nil, nil
	}
	ranger := cidranger.NewPCTrieRanger()
	for _, s := range list {
		if ip := net.ParseIP(s); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			s = ip.String() + "/" + strconv.Itoa(bits)
		}
		_, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return nil, err
		}
		if err := ranger.Insert(cidranger.NewBasicRangerEntry(*ipnet)); err != nil {
			return nil, err
		}
	}
	return ranger, nil
}
