package connector

import (
	"strings"
	"time"

	"github.com/ceyewan/shenyu-register/xerrors"
)

// EtcdConfig etcd 连接配置
type EtcdConfig struct {
	Name      string   `mapstructure:"name"`      // 连接器名称 (默认: 逗号连接的 Endpoints)
	Endpoints []string `mapstructure:"endpoints"` // [必填] 连接地址列表
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`

	DialTimeout      time.Duration `mapstructure:"dial_timeout"`       // 默认 5s
	KeepAliveTime    time.Duration `mapstructure:"keep_alive_time"`    // 默认 10s
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout"` // 默认 3s
}

func (c *EtcdConfig) setDefaults() {
	if c.Name == "" {
		c.Name = strings.Join(c.Endpoints, ",")
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeepAliveTime <= 0 {
		c.KeepAliveTime = 10 * time.Second
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = 3 * time.Second
	}
}

func (c *EtcdConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "etcd config is nil")
	}
	c.setDefaults()
	if len(c.Endpoints) == 0 {
		return xerrors.Wrap(ErrConfig, "etcd endpoints are required")
	}
	return nil
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name     string `mapstructure:"name"` // 连接器名称 (默认: Addr)
	Addr     string `mapstructure:"addr"` // [必填] 如 "127.0.0.1:6379"
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`     // 默认 10
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`  // 默认 5s
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 默认 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 默认 3s
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = c.Addr
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	c.setDefaults()
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "redis addr is required")
	}
	if c.DB < 0 {
		return xerrors.Wrapf(ErrConfig, "redis db must not be negative, got %d", c.DB)
	}
	return nil
}

// ConsulConfig Consul 连接配置
type ConsulConfig struct {
	Name     string `mapstructure:"name"`    // 连接器名称 (默认: Address)
	Address  string `mapstructure:"address"` // [必填] 如 "127.0.0.1:8500"
	Scheme   string `mapstructure:"scheme"`  // 默认 http
	Token    string `mapstructure:"token"`   // ACL token
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	WaitTime time.Duration `mapstructure:"wait_time"` // 默认 3s
}

func (c *ConsulConfig) setDefaults() {
	if c.Name == "" {
		c.Name = c.Address
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.WaitTime <= 0 {
		c.WaitTime = 3 * time.Second
	}
}

func (c *ConsulConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "consul config is nil")
	}
	c.setDefaults()
	if c.Address == "" {
		return xerrors.Wrap(ErrConfig, "consul address is required")
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return xerrors.Wrapf(ErrConfig, "consul scheme must be http or https, got %q", c.Scheme)
	}
	return nil
}
