package main

import (
	"net"
	"strconv"

	"github.com/google/uuid"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/config"
	"github.com/ceyewan/shenyu-register/metrics"
	"github.com/ceyewan/shenyu-register/registry"
	"github.com/ceyewan/shenyu-register/trace"
	"github.com/ceyewan/shenyu-register/xerrors"
)

const serviceName = "shenyu-agent"

// AgentConfig agent.yaml 的完整结构
type AgentConfig struct {
	// Kind 注册中心类型：zookeeper、etcd、consul、redis
	Kind     string                    `mapstructure:"kind"`
	Registry registry.Config           `mapstructure:"registry"`
	Instance registry.URIRecord        `mapstructure:"instance"`
	Metadata []registry.MetaDataRecord `mapstructure:"metadata"`
	HTTP     HTTPConfig                `mapstructure:"http"`
	Log      clog.Config               `mapstructure:"log"`
	Metrics  metrics.Config            `mapstructure:"metrics"`
	Trace    trace.Config              `mapstructure:"trace"`
}

// HTTPConfig 健康检查与指标端口
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

func loadAgentConfig(loader config.Loader) (*AgentConfig, error) {
	cfg := &AgentConfig{
		HTTP:  HTTPConfig{Addr: ":9195"},
		Log:   *clog.NewProdDefaultConfig(),
		Trace: *trace.DefaultConfig(serviceName),
	}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, xerrors.Wrap(err, "unmarshal agent config")
	}
	if err := cfg.complete(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// complete 填充实例相关的默认值：未配置 id 时生成一个，port 与 hostname 取实例地址
func (c *AgentConfig) complete() error {
	if c.Kind == "" {
		return xerrors.Wrap(config.ErrValidationFailed, "kind is required")
	}
	if c.Instance.Port <= 0 {
		return xerrors.Wrap(config.ErrValidationFailed, "instance.port is required")
	}
	if c.Instance.Host == "" {
		c.Instance.Host = localIP()
	}
	if c.Instance.RPCType == "" {
		c.Instance.RPCType = registry.RPCTypeHTTP
	}
	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = serviceName
	}
	if c.Trace.ServiceName == "" {
		c.Trace.ServiceName = serviceName
	}

	if c.Registry.Props == nil {
		c.Registry.Props = make(map[string]string)
	}
	setDefaultProp(&c.Registry, registry.PropID, serviceName+"-"+uuid.New().String()[:8])
	setDefaultProp(&c.Registry, registry.PropPort, strconv.Itoa(c.Instance.Port))
	setDefaultProp(&c.Registry, registry.PropHostname, c.Instance.Host)
	return nil
}

func setDefaultProp(cfg *registry.Config, key, value string) {
	if v, ok := cfg.Prop(key); ok && v != "" {
		return
	}
	cfg.Props[key] = value
}

// localIP 第一个非回环的 IPv4 地址，找不到时返回 127.0.0.1
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "127.0.0.1"
}
