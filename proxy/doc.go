/*
Package proxy 定义了 协议处理器 所需的公共部分: 协议标签, Handler 接口, 握手结果 以及 错误分类.

# Layer Definition

一个入站会话由四个部分组成: 基础连接(tcp, tls在我们前面被终止), http, 高级层(ws 或 xhttp), 具体协议(vless, trojan, shadowsocks, socks5).

	4 ｜ tcp data
	--------------------
	3 ｜ vless/trojan/shadowsocks/socks5
	--------------------
	2 ｜ ws/xhttp
	--------------------
	1 ｜ http (h1 / h2c)

高级层 见 advLayer 包; 本包的子包 实现第三层.

# Handshake

协议集合是封闭的, 由根包的 Classify 根据首包前缀 选出候选协议, 再依次交给对应的 Handler.

Handler 在凭证匹配之前 只能 Peek, 不能消费任何字节, 也不能写入任何字节; 这样凭证不匹配时 (MissError)
还可以交给下一个候选协议. 凭证匹配之后 出现的任何错误 都是终结性的.

所有失败都 静默关闭连接, 不返回任何能区分失败阶段的信息.
*/
package proxy
