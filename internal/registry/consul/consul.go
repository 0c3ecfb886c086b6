// Package consul 基于 Consul KV 与 Agent 服务注册实现键值型注册中心客户端。
package consul

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/consul/api"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/connector"
	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/xerrors"
)

// Client Consul 客户端
type Client struct {
	conn   connector.ConsulConnector
	owned  bool
	client *api.Client
	logger clog.Logger
	once   sync.Once
}

// Dial 连接第一个地址上的 Consul agent；配置了用户名时使用 Basic Auth，否则把密码作为 ACL token
func Dial(ctx context.Context, opts types.KVOptions) (types.KVClient, error) {
	if len(opts.Endpoints) == 0 {
		return nil, xerrors.Wrap(connector.ErrConfig, "consul address is required")
	}
	cfg := &connector.ConsulConfig{Address: opts.Endpoints[0]}
	if opts.Username != "" {
		cfg.Username = opts.Username
		cfg.Password = opts.Password.Reveal()
	} else {
		cfg.Token = opts.Password.Reveal()
	}

	conn, err := connector.NewConsul(cfg, connector.WithLogger(opts.Logger), connector.WithMeter(opts.Meter))
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", err, types.ErrConnectionLost)
	}

	c := New(conn, opts.Logger)
	c.owned = true
	if len(opts.Endpoints) > 1 {
		c.logger.Warn("consul registers through a single agent, extra addresses ignored",
			clog.Strings("ignored", opts.Endpoints[1:]))
	}
	return c, nil
}

// New 使用已连接的连接器，连接器由调用方释放
func New(conn connector.ConsulConnector, logger clog.Logger) *Client {
	if logger == nil {
		logger = clog.Discard()
	}
	return &Client{
		conn:   conn,
		client: conn.GetClient(),
		logger: logger.WithNamespace("consul"),
	}
}

// kvKey Consul KV 的键不能以 '/' 开头
func kvKey(path string) string {
	return strings.TrimLeft(path, "/")
}

func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	pair := &api.KVPair{Key: kvKey(key), Value: value}
	_, err := c.client.KV().Put(pair, (&api.WriteOptions{}).WithContext(ctx))
	return mapError(err)
}

func (c *Client) RegisterService(ctx context.Context, svc *types.ServiceDescriptor) error {
	reg := &api.AgentServiceRegistration{
		ID:                svc.ID,
		Name:              svc.Name,
		Tags:              svc.Tags,
		Port:              svc.Port,
		Address:           svc.Address,
		EnableTagOverride: svc.EnableTagOverride,
		Meta:              svc.Meta,
	}
	err := c.client.Agent().ServiceRegisterOpts(reg, api.ServiceRegisterOpts{}.WithContext(ctx))
	return mapError(err)
}

func (c *Client) DeregisterService(ctx context.Context, id string) error {
	err := c.client.Agent().ServiceDeregisterOpts(id, (&api.QueryOptions{}).WithContext(ctx))
	return mapError(err)
}

func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		if c.owned {
			err = c.conn.Close()
		}
	})
	return err
}

// mapError 网络错误与 5xx 视为连接中断，401/403 视为认证失败
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusUnauthorized, statusErr.Code == http.StatusForbidden:
			return fmt.Errorf("consul: %w: %w", err, types.ErrAuthFailed)
		case statusErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("consul: %w: %w", err, types.ErrConnectionLost)
		}
		return xerrors.Wrap(err, "consul")
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("consul: %w: %w", err, types.ErrConnectionLost)
	}
	return xerrors.Wrap(err, "consul")
}
