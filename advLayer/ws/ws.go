/*
Package ws implements the websocket transport for advLayer.

# Reference

websocket rfc: https://datatracker.ietf.org/doc/html/rfc6455/

Below is a real websocket handshake progress:

Request

	GET /chat HTTP/1.1
	    Host: server.example.com
	    Upgrade: websocket
	    Connection: Upgrade
	    Sec-WebSocket-Key: x3JJHMbDL1EzLkh9GBhXDw==
	    Sec-WebSocket-Protocol: chat, superchat
	    Sec-WebSocket-Version: 13
	    Origin: http://example.com

Response

	HTTP/1.1 101 Switching Protocols
	    Upgrade: websocket
	    Connection: Upgrade
	    Sec-WebSocket-Accept: HSmrc0sMlYUkAGmm5OPpG2HaGWk=
	    Sec-WebSocket-Protocol: chat

We use gobwas/ws. gobwas包只支持http1.1, 所以如果使用nginx前置，确保 proxy_http_version 1.1;

# Early data

websocket标准是没有定义 0-rtt的方法的. xray/v2ray 以及 各种边缘worker 的客户端 把首包数据 用 base64url
编码后 放在 Sec-WebSocket-Protocol 中, 我们为了兼容同样用此字段. 服务端会原样回传该字段, 否则浏览器类的客户端会握手失败.
*/
package ws

// 2048 /3 = 682.6666...  (682 又 三分之二),
// 683 * 4 = 2732, 你若不信，运行 ws_test.go中的 TestBase64Len
const (
	MaxEarlyDataLen_Base64 = 2732
	MaxEarlyDataLen        = 2048
)

const Name = "ws"
