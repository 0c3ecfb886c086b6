// Package connector 管理注册中心后端的客户端连接。
//
// 连接器只负责连接的创建、探活与释放，注册语义由 internal/registry 下的适配器实现。
// 遵循"谁创建，谁负责释放"：适配器通过 Connect 建立连接，Close 时释放。
//
//	conn, err := connector.NewEtcd(&connector.EtcdConfig{
//		Endpoints: []string{"127.0.0.1:2379"},
//	}, connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	client := conn.GetClient()
package connector

import (
	"context"

	"github.com/hashicorp/consul/api"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Connector 所有连接器的通用行为，方法均为并发安全
type Connector interface {
	// Connect 探测连接是否可用，可重复调用
	Connect(ctx context.Context) error

	// Close 释放底层客户端，可重复调用
	Close() error

	// HealthCheck 发送一次探测请求并更新缓存的健康状态
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最近一次探测的结果
	IsHealthy() bool

	// Name 连接实例名称，用于日志与指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector
	GetClient() T
}

// EtcdConnector etcd 连接器
type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// ConsulConnector Consul 连接器
type ConsulConnector interface {
	TypedConnector[*api.Client]
}
