/*
Package httpLayer makes the plain http responses of our listener look like a stock nginx.

所有 既不是 ws 也不是 xhttp, 也不是 管理接口 的请求, 都得到 nginx 的 404 页面. 认证失败 也是一样,
不给探测者任何提示.
*/
package httpLayer

import (
	"net/http"
	"time"
)

const (
	//符合 nginx返回的时间格式，且符合 golang对时间格式字符串的 "123456"的约定 的字符串。
	Nginx_timeFormatStr = "02 Jan 2006 15:04:05 MST"

	NginxServer = "nginx/1.21.5"

	// real nginx response body, to generate it,  curl -iv --raw 127.0.0.1/not_exist_path > response
	Nginx404_html = "<html>\r\n<head><title>404 Not Found</title></head>\r\n<body>\r\n<center><h1>404 Not Found</h1></center>\r\n<hr><center>nginx/1.21.5</center>\r\n</body>\r\n</html>\r\n"

	Nginx400_html = "<html>\r\n<head><title>400 Bad Request</title></head>\r\n<body>\r\n<center><h1>400 Bad Request</h1></center>\r\n<hr><center>nginx/1.21.5</center>\r\n</body>\r\n</html>\r\n"

	//备注
	// 1. vim中， "\r" 显示为 ^M, 输入它是用 ctrl + V + M
	// 2. vim 在显示 末尾 有 \n 的文件 时， 会 直接省略这个 \n
)

var nginxTimezone = time.FixedZone("GMT", 0)

func nginxDate() string {
	t := time.Now().UTC().In(nginxTimezone)
	return t.Weekday().String()[:3] + ", " + t.Format(Nginx_timeFormatStr)
}

func setNginxResponse(rw http.ResponseWriter, code int, body string) {
	//header 要在 WriteHeader 之前设置
	h := rw.Header()
	h.Set("Server", NginxServer)
	h.Set("Content-Type", "text/html")
	h.Set("Date", nginxDate())
	rw.WriteHeader(code)
	rw.Write([]byte(body))
}

func SetNginx404Response(rw http.ResponseWriter) {
	setNginxResponse(rw, http.StatusNotFound, Nginx404_html)
}

func SetNginx400Response(rw http.ResponseWriter) {
	setNginxResponse(rw, http.StatusBadRequest, Nginx400_html)
}

// NotFound 可以直接作为 http.Handler 使用
var NotFound = http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
	SetNginx404Response(rw)
})
