package machine

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/e1732a364fed/edgetunnel/config"
	"github.com/e1732a364fed/edgetunnel/httpLayer"
	"github.com/e1732a364fed/edgetunnel/nodeinfo"
	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

/*
curl -u admin:pass http://127.0.0.1:8080/sub?format=base64
curl -u admin:pass -X PUT --data true "http://127.0.0.1:8080/admin/config?key=trojan.enabled"
*/

const (
	adminUser = "admin"

	maxConfigValueLen = 64 << 10
)

const eIllegalParameter = "illegal parameter"

type apiServer struct {
	m   *M
	mux *http.ServeMux
}

func newApiServer(m *M) *apiServer {
	ser := &apiServer{m: m, mux: http.NewServeMux()}

	metrics := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})

	ser.addServerHandle("/sub", http.MethodGet, ser.sub)
	ser.addServerHandle("/admin/config", http.MethodPut, ser.putConfig)
	ser.addServerHandle("/metrics", http.MethodGet, metrics.ServeHTTP)

	ser.mux.Handle("/", httpLayer.NotFound)
	return ser
}

func (ser *apiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ser.mux.ServeHTTP(w, r)
}

// 方法不对时 也返回 404, 不泄露 路径的存在
func (ser *apiServer) addServerHandle(path, method string, f http.HandlerFunc) {
	authed := ser.basicAuth(f)
	ser.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			httpLayer.SetNginx404Response(w)
			return
		}
		authed(w, r)
	})
}

// basicAuth 每次都从当前配置中取 admin_pass; 没有设置 admin_pass 时, 管理接口 全部表现为 404.
func (ser *apiServer) basicAuth(realfunc http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pass := ser.m.Dispatcher.Settings().AdminPass
		if pass == "" {
			httpLayer.SetNginx404Response(w)
			return
		}

		thisun, thispass, ok := r.BasicAuth()
		if ok {
			expectedUsernameHash := sha256.Sum256([]byte(adminUser))
			expectedPasswordHash := sha256.Sum256([]byte(pass))
			usernameHash := sha256.Sum256([]byte(thisun))
			passwordHash := sha256.Sum256([]byte(thispass))

			usernameMatch := (subtle.ConstantTimeCompare(usernameHash[:], expectedUsernameHash[:]) == 1)
			passwordMatch := (subtle.ConstantTimeCompare(passwordHash[:], expectedPasswordHash[:]) == 1)

			if usernameMatch && passwordMatch {
				if ce := utils.CanLogInfo("api server got new request"); ce != nil {
					ce.Write(
						zap.String("method", r.Method),
						zap.String("requestURL", r.RequestURI),
					)
				}
				realfunc.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func failBadRequest(e error, eInfo string, w http.ResponseWriter) {
	if ce := utils.CanLogWarn(eInfo); ce != nil {
		ce.Write(zap.Error(e))
	}
	http.Error(w, eIllegalParameter, http.StatusBadRequest)
}

func (ser *apiServer) sub(w http.ResponseWriter, r *http.Request) {
	links := nodeinfo.Generate(ser.m.Dispatcher.Settings(), nil, r.Host)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if r.URL.Query().Get("format") == "base64" {
		w.Write([]byte(nodeinfo.Subscription(links)))
		return
	}
	w.Write([]byte(nodeinfo.Plain(links)))
}

func isKnownKey(key string) bool {
	for _, k := range config.KnownKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// putConfig 写入 store, 然后立即刷新配置
func (ser *apiServer) putConfig(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if !isKnownKey(key) {
		failBadRequest(utils.ErrInErr{ErrDesc: "unknown key", ErrDetail: utils.ErrInvalidData, Data: key}, "api server put config failed", w)
		return
	}

	bs, err := io.ReadAll(io.LimitReader(r.Body, maxConfigValueLen))
	if err != nil {
		failBadRequest(err, "api server read body failed", w)
		return
	}

	if err := ser.m.Resolver.Put(r.Context(), key, strings.TrimSpace(string(bs))); err != nil {
		if ce := utils.CanLogErr("api server put config failed"); ce != nil {
			ce.Write(zap.String("key", key), zap.Error(err))
		}
		code := http.StatusInternalServerError
		if errors.Is(err, config.ErrConfigUnavailable) {
			code = http.StatusServiceUnavailable
		}
		http.Error(w, http.StatusText(code), code)
		return
	}

	if err := ser.m.Refresh(r.Context()); err != nil {
		if ce := utils.CanLogWarn("refresh after put failed"); ce != nil {
			ce.Write(zap.Error(err))
		}
	}

	if ce := utils.CanLogInfo("config key updated"); ce != nil {
		ce.Write(zap.String("key", key))
	}
	w.WriteHeader(http.StatusNoContent)
}
