/*
Package credential derives the per-window protocol credentials from one long-lived master secret.

派生出来的凭证从不储存, 每次校验都重新计算. 同样的 (master, tag, window) 永远得到同样的结果,
而从派生出的凭证 无法反推出 master (HKDF-SHA256).

vless 得到的是一个 16字节的 uuid (带有 v4 的 version/variant 位); trojan, shadowsocks, socks5
得到的是 24字节随机数的 base64url 编码, 即 32个字符的密码.

校验时 检查 当前窗口 以及前后 Skew 个窗口, 以容忍时钟偏差.
*/
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	TagVless       = "vless"
	TagTrojan      = "trojan"
	TagShadowsocks = "shadowsocks"
	TagSocks5      = "socks5"
)

const (
	DefaultPeriod = time.Hour
	DefaultSkew   = 1

	//每次握手要派生 2*Skew+1 份凭证, shadowsocks 还要 逐个试解密
	MaxSkew = 8

	passwordRawLen = 24

	TrojanHashLen = 56
)

// Window 即 floor(unix / period)
func Window(t time.Time, period time.Duration) int64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	sec := int64(period / time.Second)
	if sec <= 0 {
		sec = 1
	}
	u := t.Unix()
	w := u / sec
	if u < 0 && u%sec != 0 {
		w--
	}
	return w
}

// Derive 返回 n 字节的派生结果.
func Derive(master []byte, tag string, window int64, n int) []byte {
	info := "edgetunnel/" + tag + "/" + strconv.FormatInt(window, 10)
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		//hkdf 最多能输出 255*32 字节, 我们远远用不到
		panic(err)
	}
	return out
}

// DeriveID 给出 vless 用的 uuid
func DeriveID(master []byte, window int64) uuid.UUID {
	var id uuid.UUID
	copy(id[:], Derive(master, TagVless, window, 16))
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// DerivePassword 给出 trojan/shadowsocks/socks5 用的密码
func DerivePassword(master []byte, tag string, window int64) string {
	return base64.RawURLEncoding.EncodeToString(Derive(master, tag, window, passwordRawLen))
}

// TrojanHash 即 hex(sha224(password)), 小写
func TrojanHash(password string) []byte {
	sum := sha256.Sum224([]byte(password))
	out := make([]byte, TrojanHashLen)
	hex.Encode(out, sum[:])
	return out
}

// Deriver 绑定了 master secret 以及窗口参数. Period 为0时使用 DefaultPeriod, Now 可为nil.
//
// Deriver 是只读的, 可以被任意多个 goroutine 同时使用.
type Deriver struct {
	Master []byte
	Period time.Duration
	Skew   int
	Now    func() time.Time
}

func New(master []byte) *Deriver {
	return &Deriver{Master: master, Period: DefaultPeriod, Skew: DefaultSkew}
}

func (d *Deriver) period() time.Duration {
	if d.Period <= 0 {
		return DefaultPeriod
	}
	return d.Period
}

func (d *Deriver) skew() int {
	switch {
	case d.Skew < 0:
		return 0
	case d.Skew > MaxSkew:
		return MaxSkew
	}
	return d.Skew
}

func (d *Deriver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// 当前窗口
func (d *Deriver) Window() int64 {
	return Window(d.now(), d.period())
}

// 按 当前, w-1, w+1, w-2, w+2 ... 的顺序给出所有被接受的窗口
func (d *Deriver) Windows() []int64 {
	w := d.Window()
	s := d.skew()
	ws := make([]int64, 0, 2*s+1)
	ws = append(ws, w)
	for i := 1; i <= s; i++ {
		ws = append(ws, w-int64(i), w+int64(i))
	}
	return ws
}

// 当前窗口的 vless id
func (d *Deriver) CurrentID() uuid.UUID {
	return DeriveID(d.Master, d.Window())
}

// 当前窗口的密码
func (d *Deriver) Current(tag string) string {
	return DerivePassword(d.Master, tag, d.Window())
}

// Candidates 给出所有被接受的密码, 当前窗口的排第一
func (d *Deriver) Candidates(tag string) []string {
	ws := d.Windows()
	r := make([]string, len(ws))
	for i, w := range ws {
		r[i] = DerivePassword(d.Master, tag, w)
	}
	return r
}

func (d *Deriver) CandidateIDs() []uuid.UUID {
	ws := d.Windows()
	r := make([]uuid.UUID, len(ws))
	for i, w := range ws {
		r[i] = DeriveID(d.Master, w)
	}
	return r
}

// MatchID 常数时间比较; 所有候选都会比较一遍, 不会因为提前匹配而提前返回.
func (d *Deriver) MatchID(id []byte) bool {
	if len(d.Master) == 0 || len(id) != 16 {
		return false
	}
	matched := 0
	for _, c := range d.CandidateIDs() {
		matched |= subtle.ConstantTimeCompare(c[:], id)
	}
	return matched == 1
}

func (d *Deriver) MatchPassword(tag string, pw []byte) bool {
	if len(d.Master) == 0 {
		return false
	}
	matched := 0
	for _, c := range d.Candidates(tag) {
		matched |= subtle.ConstantTimeCompare([]byte(c), pw)
	}
	return matched == 1
}

// MatchTrojanHash 检查 56字节的 hex(sha224(password))
func (d *Deriver) MatchTrojanHash(hash []byte) bool {
	if len(d.Master) == 0 || len(hash) != TrojanHashLen {
		return false
	}
	matched := 0
	for _, c := range d.Candidates(TagTrojan) {
		matched |= subtle.ConstantTimeCompare(TrojanHash(c), hash)
	}
	return matched == 1
}
