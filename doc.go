/*
Package edgetunnel 是一个多协议的隧道网关: 在 ws 或 xhttp 的字节流上 识别并处理 vless, trojan, shadowsocks, socks5 四种协议, 然后转发到目标.

# Structure 本项目结构

utils -> netLayer -> credential -> config -> httpLayer -> advLayer -> proxy -> edgetunnel -> nodeinfo -> machine -> cmd/edgetunnel

根项目 edgetunnel 只研究一个会话的 识别与转发过程. 关于 各协议的握手 请参考 proxy 子包的文档.

# Chain

一个会话的调用链是 Dispatcher.Serve -> handshake -> { Classify -> Handler.Handshake (未命中则 试下一个候选) }
-> Connector.Connect -> netLayer.Relay

会话的状态 只能前进: AWAITING_BYTES -> CLASSIFIED -> AUTHENTICATED -> CONNECTING -> RELAYING -> CLOSED,
任何一步失败 都会进入 FAILED.

# Credentials

所有协议的凭证 都由一个 master secret 按时间窗口 派生, 见 credential 包. 当前窗口 与 之前 skew 个窗口的凭证 都被接受.

# Config

配置按 store > 远程json文档 > 静态默认值(环境变量, toml) 的顺序解析, 见 config 包. Dispatcher.Update 之后 新的会话使用新配置,
进行中的会话不受影响.
*/
package edgetunnel
