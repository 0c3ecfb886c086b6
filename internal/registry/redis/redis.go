// Package redis 基于 Redis 实现键值型注册中心客户端。
//
// 元数据以字符串写入，键即注册路径；服务描述写入哈希 "{ns}:service:{id}"，
// 并把 id 加入集合 "{ns}:services:{name}" 供网关按服务名列出实例。
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/connector"
	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/xerrors"
)

// 服务哈希的字段
const (
	FieldID                = "id"
	FieldName              = "name"
	FieldAddress           = "address"
	FieldPort              = "port"
	FieldTags              = "tags"
	FieldEnableTagOverride = "enable_tag_override"
	FieldMetaPrefix        = "meta."
)

const defaultNamespace = "shenyu"

// Client Redis 客户端
type Client struct {
	conn      connector.RedisConnector
	owned     bool
	client    *redis.Client
	namespace string
	logger    clog.Logger
	once      sync.Once
}

// Dial 连接第一个地址
func Dial(ctx context.Context, opts types.KVOptions) (types.KVClient, error) {
	if len(opts.Endpoints) == 0 {
		return nil, xerrors.Wrap(connector.ErrConfig, "redis addr is required")
	}
	conn, err := connector.NewRedis(&connector.RedisConfig{
		Addr:     opts.Endpoints[0],
		Username: opts.Username,
		Password: opts.Password.Reveal(),
	}, connector.WithLogger(opts.Logger), connector.WithMeter(opts.Meter))
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", err, types.ErrConnectionLost)
	}

	c := New(conn, opts.Namespace, opts.Logger)
	c.owned = true
	return c, nil
}

// New 使用已连接的连接器，连接器由调用方释放
func New(conn connector.RedisConnector, namespace string, logger clog.Logger) *Client {
	if logger == nil {
		logger = clog.Discard()
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Client{
		conn:      conn,
		client:    conn.GetClient(),
		namespace: namespace,
		logger:    logger.WithNamespace("redis"),
	}
}

func (c *Client) serviceKey(id string) string {
	return c.namespace + ":service:" + id
}

func (c *Client) servicesKey(name string) string {
	return c.namespace + ":services:" + name
}

func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	return mapError(c.client.Set(ctx, key, value, 0).Err())
}

// RegisterService 整体替换服务哈希，旧的 Meta 字段不会残留
func (c *Client) RegisterService(ctx context.Context, svc *types.ServiceDescriptor) error {
	fields := map[string]any{
		FieldID:                svc.ID,
		FieldName:              svc.Name,
		FieldAddress:           svc.Address,
		FieldPort:              strconv.Itoa(svc.Port),
		FieldTags:              strings.Join(svc.Tags, ","),
		FieldEnableTagOverride: strconv.FormatBool(svc.EnableTagOverride),
	}
	for k, v := range svc.Meta {
		fields[FieldMetaPrefix+k] = v
	}

	key := c.serviceKey(svc.ID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, c.servicesKey(svc.Name), svc.ID)
		return nil
	})
	return mapError(err)
}

// DeregisterService 服务不存在时返回 nil
func (c *Client) DeregisterService(ctx context.Context, id string) error {
	key := c.serviceKey(id)
	name, err := c.client.HGet(ctx, key, FieldName).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return mapError(err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, c.servicesKey(name), id)
		return nil
	})
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

var (
	authPrefixes      = []string{"NOAUTH", "WRONGPASS", "NOPERM"}
	transientPrefixes = []string{"LOADING", "READONLY", "MASTERDOWN", "CLUSTERDOWN", "TRYAGAIN"}
)

// mapError 网络错误与服务端暂不可用视为连接中断
func mapError(err error) error {
	if err == nil {
		return nil
	}
	for _, p := range authPrefixes {
		if redis.HasErrorPrefix(err, p) {
			return fmt.Errorf("redis: %w: %w", err, types.ErrAuthFailed)
		}
	}
	for _, p := range transientPrefixes {
		if redis.HasErrorPrefix(err, p) {
			return fmt.Errorf("redis: %w: %w", err, types.ErrConnectionLost)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, redis.ErrPoolTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("redis: %w: %w", err, types.ErrConnectionLost)
	}
	return xerrors.Wrap(err, "redis")
}
