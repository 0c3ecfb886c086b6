// Package types 定义注册组件与后端客户端之间的能力接口。
//
// registry 包只依赖这里的接口；internal/registry 下的适配器负责把
// ZooKeeper、etcd、Consul、Redis 客户端翻译为这些能力。
package types

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConnectionLost 会话或网络暂时不可用，写入可在重连后重放
	ErrConnectionLost = errors.New("registry: connection lost")

	// ErrAuthFailed 认证失败，需要外部修正凭据
	ErrAuthFailed = errors.New("registry: auth failed")
)

// ConnState 会话连接状态
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateExpired
	StateAuthFailed
	StateSyncConnected
	StateReadOnlyConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateExpired:
		return "Expired"
	case StateAuthFailed:
		return "AuthFailed"
	case StateSyncConnected:
		return "SyncConnected"
	case StateReadOnlyConnected:
		return "ReadOnlyConnected"
	default:
		return "Unknown"
	}
}

// Connected 是否为可写入的已连接状态
func (s ConnState) Connected() bool {
	return s == StateSyncConnected || s == StateReadOnlyConnected
}

// CreateMode 节点持久化模式
type CreateMode int

const (
	Persistent CreateMode = iota
	Ephemeral
)

func (m CreateMode) String() string {
	if m == Ephemeral {
		return "ephemeral"
	}
	return "persistent"
}

// SessionClient 会话型注册中心（ZooKeeper、etcd）的能力
//
// 临时节点的生命周期与会话绑定，会话结束后由注册中心删除。
type SessionClient interface {
	// Exists 判断节点是否存在
	Exists(ctx context.Context, path string) (bool, error)

	// CreateWithParent 创建节点并以持久模式补齐缺失的父节点，节点已存在时不报错
	CreateWithParent(ctx context.Context, path string, data []byte, mode CreateMode) error

	// CreateOrUpdate 节点存在时覆盖数据，否则按 mode 创建
	CreateOrUpdate(ctx context.Context, path string, data []byte, mode CreateMode) error

	// SubscribeStatusChange 注册状态回调，回调在客户端自己的 goroutine 中触发
	SubscribeStatusChange(fn func(ConnState))

	// WaitForState 阻塞至多 timeout 等待进入 state，超时返回 false
	WaitForState(ctx context.Context, state ConnState, timeout time.Duration) bool

	// Close 结束会话
	Close() error
}

// ServiceDescriptor 键值型注册中心中代表一个客户端实例的服务描述
type ServiceDescriptor struct {
	ID                string
	Name              string
	Tags              []string
	Port              int
	Address           string
	EnableTagOverride bool
	Meta              map[string]string
}

// KVClient 键值型注册中心（Consul、Redis）的能力
type KVClient interface {
	Put(ctx context.Context, key string, value []byte) error
	RegisterService(ctx context.Context, svc *ServiceDescriptor) error
	DeregisterService(ctx context.Context, id string) error
	Close() error
}
