package xhttp

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/e1732a364fed/edgetunnel/utils"
)

// Dial 发起一个 POST 请求, 返回的 net.Conn 写入请求体, 读取响应体. client 为nil时使用 http.DefaultClient.
func Dial(ctx context.Context, client *http.Client, rawurl string) (net.Conn, error) {
	if client == nil {
		client = http.DefaultClient
	}
	pr, pw := io.Pipe()

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawurl, pr)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		pw.Close()
		return nil, utils.ErrInErr{ErrDesc: "xhttp dial failed", ErrDetail: err, Data: rawurl}
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		pw.Close()
		resp.Body.Close()
		return nil, utils.NumErr{N: resp.StatusCode, Prefix: "xhttp dial got status "}
	}

	return &clientConn{pw: pw, body: resp.Body, cancel: cancel}, nil
}

type clientConn struct {
	pw     *io.PipeWriter
	body   io.ReadCloser
	cancel context.CancelFunc

	closeOnce sync.Once
}

func (c *clientConn) Read(p []byte) (int, error)  { return c.body.Read(p) }
func (c *clientConn) Write(p []byte) (int, error) { return c.pw.Write(p) }

func (c *clientConn) Close() error {
	c.closeOnce.Do(func() {
		c.pw.Close()
		c.body.Close()
		c.cancel()
	})
	return nil
}

func (c *clientConn) LocalAddr() net.Addr                { return nil }
func (c *clientConn) RemoteAddr() net.Addr               { return nil }
func (c *clientConn) SetDeadline(t time.Time) error      { return nil }
func (c *clientConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *clientConn) SetWriteDeadline(t time.Time) error { return nil }
