package connector

import (
	"context"
	"sync"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/xerrors"
)

type redisConnector struct {
	cfg    *RedisConfig
	client *redis.Client
	probe  *probe
	once   sync.Once
}

// NewRedis 创建 Redis 连接器，命令通过 redisotel 记录链路
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p, err := newProbe("redis", cfg.Name, applyOptions(opts))
	if err != nil {
		return nil, xerrors.Wrap(err, "create redis connector metrics")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(err, "instrument redis tracing")
	}

	return &redisConnector{cfg: cfg, client: client, probe: p}, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	c.probe.logger.Info("attempting to connect to redis", clog.String("addr", c.cfg.Addr))
	if err := c.probe.observe(ctx, c.client.Ping(ctx).Err()); err != nil {
		c.probe.logger.Error("failed to connect to redis", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "redis connector[%s]: %v", c.cfg.Name, err)
	}
	c.probe.logger.Info("successfully connected to redis")
	return nil
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	if err := c.probe.observe(ctx, c.client.Ping(ctx).Err()); err != nil {
		c.probe.logger.Warn("redis health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "redis connector[%s]: %v", c.cfg.Name, err)
	}
	return nil
}

func (c *redisConnector) Close() error {
	var err error
	c.once.Do(func() {
		c.probe.healthy.Store(false)
		c.probe.logger.Info("closing redis connection")
		err = c.client.Close()
	})
	return err
}

func (c *redisConnector) IsHealthy() bool {
	return c.probe.healthy.Load()
}

func (c *redisConnector) Name() string {
	return c.cfg.Name
}

func (c *redisConnector) GetClient() *redis.Client {
	return c.client
}
