package registry

import (
	"strconv"
	"strings"
	"time"

	"github.com/ceyewan/shenyu-register/xerrors"
)

// 属性键，大小写不敏感
const (
	PropID                = "id"
	PropName              = "name"
	PropTags              = "tags"
	PropPort              = "port"
	PropHostname          = "hostname"
	PropEnableTagOverride = "enable_tag_override"
	PropNamespace         = "namespace"
	PropSessionTimeout    = "session_timeout"
	PropConnectionTimeout = "connection_timeout"
	PropBaseSleepTime     = "base_sleep_time"
	PropMaxRetry          = "max_retry"
	PropMaxSleepTime      = "max_sleep_time"
	PropUsername          = "username"
	PropPassword          = "password"
	PropReplayQPS         = "replay_qps"
)

const (
	defaultSessionTimeout    = 3000 * time.Millisecond
	defaultConnectionTimeout = 3000 * time.Millisecond
	defaultOperatingTimeout  = 1000 * time.Millisecond
	defaultMaxRetry          = 3
	defaultHostname          = "localhost"
)

// Config 注册中心配置
//
//	registry:
//	  server_lists: ["127.0.0.1:2181"]
//	  root: /shenyu
//	  props:
//	    id: order-1
//	    port: "8080"
//	    session_timeout: "3000"
type Config struct {
	// ServerLists 注册中心地址列表，必填
	ServerLists []string `mapstructure:"server_lists" json:"server_lists" yaml:"server_lists"`

	// Props 属性表：实例标识、端口、标签、超时（毫秒）、凭据等
	Props map[string]string `mapstructure:"props" json:"-" yaml:"props"`

	// Root 路径根，默认 "/shenyu"
	Root string `mapstructure:"root" json:"root" yaml:"root"`
}

// connectionKey 连接标识，作为健康状态的 key
func (c *Config) connectionKey() string {
	return strings.Join(c.ServerLists, ",")
}

func (c *Config) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "config is nil")
	}
	endpoints := make([]string, 0, len(c.ServerLists))
	for _, ep := range c.ServerLists {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return xerrors.Wrap(ErrConfig, "server_lists is required")
	}
	c.ServerLists = endpoints
	return nil
}

// Prop 读取属性，key 大小写不敏感，值去除首尾空白
func (c *Config) Prop(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	if v, ok := c.Props[key]; ok {
		return strings.TrimSpace(v), true
	}
	for k, v := range c.Props {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (c *Config) propString(key, def string) string {
	if v, ok := c.Prop(key); ok && v != "" {
		return v
	}
	return def
}

func (c *Config) propInt(key string, def int) (int, error) {
	v, ok := c.Prop(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, xerrors.Wrapf(ErrConfig, "prop %s must be an integer, got %q", key, v)
	}
	return n, nil
}

func (c *Config) propBool(key string, def bool) (bool, error) {
	v, ok := c.Prop(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, xerrors.Wrapf(ErrConfig, "prop %s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// propMillis 以毫秒解析时长，未设置或非正数时返回 def
func (c *Config) propMillis(key string, def time.Duration) (time.Duration, error) {
	n, err := c.propInt(key, 0)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return def, nil
	}
	return time.Duration(n) * time.Millisecond, nil
}

func (c *Config) propFloat(key string, def float64) (float64, error) {
	v, ok := c.Prop(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, xerrors.Wrapf(ErrConfig, "prop %s must be a non-negative number, got %q", key, v)
	}
	return f, nil
}

// splitTags 逗号分隔，忽略空项
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// port 读取必填的实例端口
func (c *Config) port() (int, error) {
	raw, ok := c.Prop(PropPort)
	if !ok || raw == "" {
		return 0, xerrors.Wrap(ErrConfig, "Port can not be null.")
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return 0, xerrors.Wrapf(ErrConfig, "prop port must be a valid port, got %q", raw)
	}
	return port, nil
}
