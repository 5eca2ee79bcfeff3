package shadowsocks_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/e1732a364fed/edgetunnel/credential"
	"github.com/e1732a364fed/edgetunnel/netLayer"
	"github.com/e1732a364fed/edgetunnel/proxy"
	"github.com/e1732a364fed/edgetunnel/proxy/shadowsocks"
)

// 注意, 客户端不能使用 go-shadowsocks2 的 StreamConn: 它写入salt后 会把salt保存到全局过滤器中,
// 同一进程的服务端 读到这个salt时 就会报 repeated salt detected. 所以这里用 NewClientConn.

var fixedNow = time.Unix(1_700_000_000, 0)

func testDeriver() *credential.Deriver {
	d := credential.New([]byte("ss test master"))
	d.Now = func() time.Time { return fixedNow }
	return d
}

// recordConn 只记录写入的数据
type recordConn struct {
	net.Conn
	buf     bytes.Buffer
	writes  int
	corrupt int //第几次写入需要篡改最后一个字节, 从1开始
}

func (c *recordConn) Write(p []byte) (int, error) {
	c.writes++
	bs := append([]byte(nil), p...)
	if c.writes == c.corrupt {
		bs[len(bs)-1] ^= 0xff
	}
	return c.buf.Write(bs)
}

func clientBytes(t *testing.T, method, password string, corrupt int, msgs ...[]byte) []byte {
	rc := &recordConn{corrupt: corrupt}
	cc, err := shadowsocks.NewClientConn(rc, method, password)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if _, err := cc.Write(m); err != nil {
			t.Fatal(err)
		}
	}
	return rc.buf.Bytes()
}

func TestMinLen(t *testing.T) {
	if shadowsocks.MinLen("chacha20-ietf-poly1305") != 50 || shadowsocks.MinLen("AES-128-GCM") != 34 || shadowsocks.MinLen("") != 50 {
		t.FailNow()
	}
	if shadowsocks.MinLen("rc4-md5") != 0 {
		t.FailNow()
	}
	if _, err := shadowsocks.NewServer(testDeriver(), "rc4-md5"); err == nil {
		t.FailNow()
	}
}

func TestHandshake(t *testing.T) {
	for _, method := range []string{"chacha20-ietf-poly1305", "aes-256-gcm", "aes-128-gcm"} {
		t.Run(method, func(t *testing.T) {
			d := testDeriver()
			s, err := shadowsocks.NewServer(d, method)
			if err != nil {
				t.Fatal(err)
			}

			target, _ := netLayer.NewAddr("example.com:443")
			pw := d.Current(credential.TagShadowsocks)
			data := clientBytes(t, method, pw, 0, target.SocksBytes(), []byte("hello"))

			serverSide, clientSide := net.Pipe()
			defer serverSide.Close()
			defer clientSide.Close()

			in := bufio.NewReaderSize(bytes.NewReader(data), proxy.MaxPeekLen)
			r, err := s.Handshake(context.Background(), in, serverSide)
			if err != nil {
				t.Fatal(err)
			}
			if r.Target.Name != "example.com" || r.Target.Port != 443 {
				t.Log(r.Target.String())
				t.FailNow()
			}

			got := make([]byte, 5)
			if _, err := io.ReadFull(r.Conn, got); err != nil || string(got) != "hello" {
				t.Log(err, string(got))
				t.FailNow()
			}

			//服务端写回的数据 客户端可以解密
			cc, _ := shadowsocks.NewClientConn(clientSide, method, pw)
			go r.Conn.Write([]byte("world"))
			if _, err := io.ReadFull(cc, got); err != nil || string(got) != "world" {
				t.Log(err, string(got))
				t.FailNow()
			}
		})
	}
}

// 上一个窗口的密码 在 skew=1 时依然有效
func TestHandshakePreviousWindow(t *testing.T) {
	d := testDeriver()
	s, _ := shadowsocks.NewServer(d, "")

	w := d.Window()
	pw := credential.DerivePassword(d.Master, credential.TagShadowsocks, w-1)
	target, _ := netLayer.NewAddr("1.2.3.4:80")
	data := clientBytes(t, "", pw, 0, target.SocksBytes())

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	r, err := s.Handshake(context.Background(), bufio.NewReaderSize(bytes.NewReader(data), proxy.MaxPeekLen), c1)
	if err != nil {
		t.Fatal(err)
	}
	if r.Target.String() != "1.2.3.4:80" {
		t.Log(r.Target.String())
		t.FailNow()
	}
}

func TestWrongPasswordIsMiss(t *testing.T) {
	d := testDeriver()
	s, _ := shadowsocks.NewServer(d, "")

	target, _ := netLayer.NewAddr("example.com:443")
	data := clientBytes(t, "", "not the derived password", 0, target.SocksBytes())

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	in := bufio.NewReaderSize(bytes.NewReader(data), proxy.MaxPeekLen)
	_, err := s.Handshake(context.Background(), in, c1)
	if !proxy.IsMiss(err) {
		t.Log(err)
		t.FailNow()
	}

	//没有消费任何数据
	head, _ := in.Peek(len(data))
	if !bytes.Equal(head, data) {
		t.FailNow()
	}
}

// 长度块正确 但负载被篡改: 已经确定了密码, 所以是终结性的错误
func TestTamperedPayload(t *testing.T) {
	d := testDeriver()
	s, _ := shadowsocks.NewServer(d, "")

	target, _ := netLayer.NewAddr("example.com:443")
	data := clientBytes(t, "", d.Current(credential.TagShadowsocks), 1, append(target.SocksBytes(), "secret"...))

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	_, err := s.Handshake(context.Background(), bufio.NewReaderSize(bytes.NewReader(data), proxy.MaxPeekLen), c1)
	if err == nil || proxy.IsMiss(err) {
		t.Log(err)
		t.FailNow()
	}
}

// 第二个块被篡改时, 第一个块的数据可以读到, 被篡改的块 一个字节也读不到
func TestTamperedLaterChunk(t *testing.T) {
	d := testDeriver()
	s, _ := shadowsocks.NewServer(d, "")

	target, _ := netLayer.NewAddr("example.com:443")
	data := clientBytes(t, "", d.Current(credential.TagShadowsocks), 2, append(target.SocksBytes(), "first"...), []byte("second"))

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	r, err := s.Handshake(context.Background(), bufio.NewReaderSize(bytes.NewReader(data), proxy.MaxPeekLen), c1)
	if err != nil {
		t.Fatal(err)
	}
	all, err := io.ReadAll(r.Conn)
	if err == nil || string(all) != "first" {
		t.Log(err, string(all))
		t.FailNow()
	}
}
