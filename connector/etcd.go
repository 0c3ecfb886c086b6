package connector

import (
	"context"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/trace"
	"github.com/ceyewan/shenyu-register/xerrors"
)

const etcdProbeKey = "/shenyu/health-check"

type etcdConnector struct {
	cfg    *EtcdConfig
	client *clientv3.Client
	probe  *probe
	once   sync.Once
}

// NewEtcd 创建 etcd 连接器，gRPC 调用通过 otelgrpc 记录链路
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p, err := newProbe("etcd", cfg.Name, applyOptions(opts))
	if err != nil {
		return nil, xerrors.Wrap(err, "create etcd connector metrics")
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:            cfg.Endpoints,
		Username:             cfg.Username,
		Password:             cfg.Password,
		DialTimeout:          cfg.DialTimeout,
		DialKeepAliveTime:    cfg.KeepAliveTime,
		DialKeepAliveTimeout: cfg.KeepAliveTimeout,
		DialOptions: []grpc.DialOption{
			grpc.WithStatsHandler(trace.GRPCClientStatsHandler()),
		},
	})
	if err != nil {
		return nil, xerrors.Wrapf(ErrConnection, "etcd connector[%s]: %v", cfg.Name, err)
	}

	return &etcdConnector{cfg: cfg, client: client, probe: p}, nil
}

func (c *etcdConnector) Connect(ctx context.Context) error {
	c.probe.logger.Info("attempting to connect to etcd", clog.Strings("endpoints", c.cfg.Endpoints))
	if err := c.ping(ctx); err != nil {
		c.probe.logger.Error("failed to connect to etcd", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "etcd connector[%s]: %v", c.cfg.Name, err)
	}
	c.probe.logger.Info("successfully connected to etcd")
	return nil
}

func (c *etcdConnector) HealthCheck(ctx context.Context) error {
	if err := c.ping(ctx); err != nil {
		c.probe.logger.Warn("etcd health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "etcd connector[%s]: %v", c.cfg.Name, err)
	}
	return nil
}

func (c *etcdConnector) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	_, err := c.client.Get(pingCtx, etcdProbeKey, clientv3.WithCountOnly())
	return c.probe.observe(ctx, err)
}

func (c *etcdConnector) Close() error {
	var err error
	c.once.Do(func() {
		c.probe.healthy.Store(false)
		c.probe.logger.Info("closing etcd connection")
		err = c.client.Close()
	})
	return err
}

func (c *etcdConnector) IsHealthy() bool {
	return c.probe.healthy.Load()
}

func (c *etcdConnector) Name() string {
	return c.cfg.Name
}

func (c *etcdConnector) GetClient() *clientv3.Client {
	return c.client
}
