package connector

import (
	"context"
	"sync"

	"github.com/hashicorp/consul/api"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/xerrors"
)

type consulConnector struct {
	cfg    *ConsulConfig
	client *api.Client
	probe  *probe
	once   sync.Once
}

// NewConsul 创建 Consul 连接器，Token 优先于 Basic Auth
func NewConsul(cfg *ConsulConfig, opts ...Option) (ConsulConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p, err := newProbe("consul", cfg.Name, applyOptions(opts))
	if err != nil {
		return nil, xerrors.Wrap(err, "create consul connector metrics")
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address
	apiCfg.Scheme = cfg.Scheme
	apiCfg.WaitTime = cfg.WaitTime
	if cfg.Token != "" {
		apiCfg.Token = cfg.Token
	} else if cfg.Username != "" {
		apiCfg.HttpAuth = &api.HttpBasicAuth{Username: cfg.Username, Password: cfg.Password}
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, xerrors.Wrapf(ErrConnection, "consul connector[%s]: %v", cfg.Name, err)
	}

	return &consulConnector{cfg: cfg, client: client, probe: p}, nil
}

func (c *consulConnector) Connect(ctx context.Context) error {
	c.probe.logger.Info("attempting to connect to consul", clog.String("address", c.cfg.Address))
	if err := c.ping(ctx); err != nil {
		c.probe.logger.Error("failed to connect to consul", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "consul connector[%s]: %v", c.cfg.Name, err)
	}
	c.probe.logger.Info("successfully connected to consul")
	return nil
}

func (c *consulConnector) HealthCheck(ctx context.Context) error {
	if err := c.ping(ctx); err != nil {
		c.probe.logger.Warn("consul health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "consul connector[%s]: %v", c.cfg.Name, err)
	}
	return nil
}

func (c *consulConnector) ping(ctx context.Context) error {
	_, err := c.client.Status().LeaderWithQueryOptions((&api.QueryOptions{}).WithContext(ctx))
	return c.probe.observe(ctx, err)
}

// Close Consul 客户端基于 HTTP，没有需要释放的长连接
func (c *consulConnector) Close() error {
	c.once.Do(func() {
		c.probe.healthy.Store(false)
		c.probe.logger.Info("closing consul connector")
	})
	return nil
}

func (c *consulConnector) IsHealthy() bool {
	return c.probe.healthy.Load()
}

func (c *consulConnector) Name() string {
	return c.cfg.Name
}

func (c *consulConnector) GetClient() *api.Client {
	return c.client
}
