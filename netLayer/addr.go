package netLayer

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/e1732a364fed/edgetunnel/utils"
)

// Atyp, for vless; 注意与 trojan和socks5的区别，trojan和socks5的相同含义的值是1，3，4
const (
	AtypIP4    byte = 1
	AtypDomain byte = 2
	AtypIP6    byte = 3
)

// Atyp for socks5, trojan and shadowsocks
const (
	ATypIP4    byte = 0x1
	ATypDomain byte = 0x3
	ATypIP6    byte = 0x4
)

var ErrZeroPort = errors.New("port is zero")

// 默认netLayer的 AType (AtypIP4,AtypIP6,AtypDomain) 遵循v2ray标准的定义;
// 如果需要符合 socks5/trojan标准, 需要用本函数转换一下。
// 即从 123 转换到 134
func ATypeToSocks5Standard(atype byte) byte {
	if atype == 1 {
		return 1
	}
	return atype + 1
}

// Addr represents a address that you want to access by proxy. Either Name or IP is used exclusively.
type Addr struct {
	Network string
	Name    string // domain name
	IP      net.IP
	Port    int
}

// addrStr格式一般为 host:port ；如果不含冒号，将直接认为该字符串是域名, port为0.
// 如果host是 [ipv6] 的形式也能正常处理.
func NewAddr(addrStr string) (Addr, error) {
	if !strings.Contains(addrStr, ":") || (strings.HasPrefix(addrStr, "[") && strings.HasSuffix(addrStr, "]")) {
		host := strings.TrimSuffix(strings.TrimPrefix(addrStr, "["), "]")
		if ip := net.ParseIP(host); ip != nil {
			return Addr{IP: ip}, nil
		}
		return Addr{Name: host}, nil
	}
	if ip := net.ParseIP(addrStr); ip != nil { //没有中括号的 ipv6
		return Addr{IP: ip}, nil
	}

	return NewAddrByHostPort(addrStr)
}

// hostPortStr格式 必须为 host:port
func NewAddrByHostPort(hostPortStr string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostPortStr)
	if err != nil {
		return Addr{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Addr{}, err
	}
	if port < 0 || port > 65535 {
		return Addr{}, utils.ErrInErr{ErrDesc: "port out of range", ErrDetail: utils.ErrInvalidData, Data: port}
	}

	a := Addr{Port: port}
	if ip := net.ParseIP(host); ip != nil {
		a.IP = ip
	} else {
		a.Name = host
	}
	return a, nil
}

func NewAddrFromTCPAddr(addr *net.TCPAddr) Addr {
	return Addr{
		IP:      addr.IP,
		Port:    addr.Port,
		Network: "tcp",
	}
}

func (a *Addr) String() string {
	port := strconv.Itoa(a.Port)
	return net.JoinHostPort(a.HostStr(), port)
}

func (a *Addr) HostStr() string {
	if a.IP == nil {
		return a.Name
	}
	return a.IP.String()
}

func (a *Addr) IsEmpty() bool {
	return a.Name == "" && len(a.IP) == 0 && a.Port == 0
}

func (a *Addr) IsIpv6() bool {
	return a.IP != nil && a.IP.To4() == nil
}

// 域名形式的ip (比如浏览器把一切都当作域名传给socks5) 会被转成 IP
func (a *Addr) Normalize() {
	if a.IP == nil && a.Name != "" {
		if ip := net.ParseIP(a.Name); ip != nil {
			a.IP = ip
			a.Name = ""
		}
	}
	if ip4 := a.IP.To4(); ip4 != nil {
		a.IP = ip4
	}
}

// 返回 v2ray标准(123) 的 atyp 以及 地址的bytes (域名的话不含长度头)
func (a *Addr) AddressBytes() (addr []byte, atyp byte) {
	if a.IP != nil {
		if ip4 := a.IP.To4(); ip4 != nil {
			return ip4, AtypIP4
		}
		return a.IP.To16(), AtypIP6
	}
	return []byte(a.Name), AtypDomain
}

// socks5/trojan/shadowsocks 格式: atyp(134) | addr | port
func (a *Addr) SocksBytes() []byte {
	addr, atyp := a.AddressBytes()
	buf := make([]byte, 0, 1+1+len(addr)+2)
	buf = append(buf, ATypeToSocks5Standard(atyp))
	if atyp == AtypDomain {
		buf = append(buf, byte(len(addr)))
	}
	buf = append(buf, addr...)
	return append(buf, byte(a.Port>>8), byte(a.Port))
}

// vless 格式: port | atyp(123) | addr
func (a *Addr) V2rayBytes() []byte {
	addr, atyp := a.AddressBytes()
	buf := make([]byte, 0, 2+1+1+len(addr))
	buf = append(buf, byte(a.Port>>8), byte(a.Port), atyp)
	if atyp == AtypDomain {
		buf = append(buf, byte(len(addr)))
	}
	return append(buf, addr...)
}

// 依照 socks5 的格式读取 地址的域名、ip、port信息. trojan 和 shadowsocks 也是这个格式.
func ReadSocksAddr(buf utils.ByteReader) (addr Addr, err error) {
	var b1 byte
	b1, err = buf.ReadByte()
	if err != nil {
		return
	}

	switch b1 {
	case ATypDomain:
		addr.Name, err = readDomain(buf)
	case ATypIP4:
		addr.IP, err = readIP(buf, net.IPv4len)
	case ATypIP6:
		addr.IP, err = readIP(buf, net.IPv6len)
	default:
		err = utils.ErrInErr{ErrDesc: "unknown socks address type", ErrDetail: utils.ErrInvalidData, Data: b1}
	}
	if err != nil {
		return
	}

	addr.Port, err = readPort(buf)
	return
}

// 依照 vless 的格式读取 port 以及 地址的域名、ip 信息
func ReadV2rayAddr(buf utils.ByteReader) (addr Addr, err error) {
	addr.Port, err = readPort(buf)
	if err != nil {
		return
	}

	var b1 byte

	b1, err = buf.ReadByte()
	if err != nil {
		return
	}

	switch b1 {
	case AtypDomain:
		addr.Name, err = readDomain(buf)
	case AtypIP4:
		addr.IP, err = readIP(buf, net.IPv4len)
	case AtypIP6:
		addr.IP, err = readIP(buf, net.IPv6len)
	default:
		err = utils.ErrInErr{ErrDesc: "unknown v2ray address type", ErrDetail: utils.ErrInvalidData, Data: b1}
	}

	return
}

func readPort(buf utils.ByteReader) (int, error) {
	pb1, err := buf.ReadByte()
	if err != nil {
		return 0, err
	}
	pb2, err := buf.ReadByte()
	if err != nil {
		return 0, err
	}

	port := uint16(pb1)<<8 + uint16(pb2)
	if port == 0 {
		return 0, ErrZeroPort
	}
	return int(port), nil
}

func readDomain(buf utils.ByteReader) (string, error) {
	b2, err := buf.ReadByte()
	if err != nil {
		return "", err
	}
	if b2 == 0 {
		return "", errors.New("got ATypDomain but domain lenth is marked to be 0")
	}
	var bs [255]byte
	if _, err = io.ReadFull(buf, bs[:b2]); err != nil {
		return "", utils.ErrInErr{ErrDesc: "read domain", ErrDetail: utils.ErrShortRead, Data: err}
	}
	return string(bs[:b2]), nil
}

func readIP(buf utils.ByteReader, l int) (net.IP, error) {
	ip := make(net.IP, l)
	if _, err := io.ReadFull(buf, ip); err != nil {
		return nil, utils.ErrInErr{ErrDesc: "read ip", ErrDetail: utils.ErrShortRead, Data: err}
	}
	return ip, nil
}
