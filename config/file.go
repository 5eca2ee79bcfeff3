package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileConf 是 toml 配置文件的格式, 由 [app] 和 [defaults] 两部分组成.
//
//	[app]
//	listen = "0.0.0.0:8080"
//	loglevel = 1
//
//	[defaults]
//	vless.enabled = true
//	master_secret = "..."
type FileConf struct {
	App      AppConf        `toml:"app"`
	Defaults map[string]any `toml:"defaults"`
}

// AppConf 配置App级别的配置, 这些配置不走 Resolver, 只在启动时读取一次.
type AppConf struct {
	LogLevel *int    `toml:"loglevel"` //需要为指针, 否则无法判断0到底是未给出的默认值还是 显式声明的0
	LogFile  *string `toml:"logfile"`

	Listen        string `toml:"listen"`
	ProxyProtocol bool   `toml:"proxy_protocol"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	RefreshInterval int `toml:"refresh_interval"` //秒
	CacheTTL        int `toml:"cache_ttl"`        //秒
	RemoteTTL       int `toml:"remote_ttl"`       //秒
}

const DefaultListen = "0.0.0.0:8080"

func LoadFileConf(fn string) (fc FileConf, err error) {
	bs, err := os.ReadFile(fn)
	if err != nil {
		return
	}
	return LoadFileConfFromBs(bs)
}

func LoadFileConfFromBs(bs []byte) (fc FileConf, err error) {
	err = toml.Unmarshal(bs, &fc)
	return
}

// StaticDefaults 是最低一层. 环境变量优先于 toml文件里的值.
// key 与 环境变量名 的对应关系: vless.enabled <-> VLESS_ENABLED
type StaticDefaults struct {
	Values map[string]string

	//为nil时使用 os.LookupEnv
	Env func(string) (string, bool)
}

func NewStaticDefaults(fileDefaults map[string]any) *StaticDefaults {
	sd := &StaticDefaults{Values: make(map[string]string)}
	flatten("", fileDefaults, sd.Values)
	return sd
}

func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

func (sd *StaticDefaults) Lookup(key string) (string, bool) {
	if sd == nil {
		return "", false
	}
	env := sd.Env
	if env == nil {
		env = os.LookupEnv
	}
	if v, ok := env(EnvKey(key)); ok && v != "" {
		return v, true
	}
	v, ok := sd.Values[key]
	if ok && v != "" {
		return v, true
	}
	return "", false
}

// toml 中的 a.b = 1 会被解析为嵌套的表, 我们把它展开回 "a.b"
func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(k, sub, out)
			continue
		}
		out[k] = valueString(v)
	}
}

// valueString 把 toml/json 里解析出的值转成 我们统一使用的字符串形式. 列表用逗号连接.
func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		ss := make([]string, 0, len(x))
		for _, e := range x {
			ss = append(ss, valueString(e))
		}
		return strings.Join(ss, ",")
	case map[string]any:
		flat := make(map[string]string)
		flatten("", x, flat)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ss := make([]string, 0, len(keys))
		for _, k := range keys {
			ss = append(ss, k+"="+flat[k])
		}
		return strings.Join(ss, ",")
	default:
		return fmt.Sprint(x)
	}
}
