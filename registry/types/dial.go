package types

import (
	"context"
	"time"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/metrics"
)

// SessionOptions 建立会话型连接所需的参数
type SessionOptions struct {
	Endpoints         []string
	SessionTimeout    time.Duration
	ConnectionTimeout time.Duration
	OperatingTimeout  time.Duration
	MaxRetry          int
	MaxSleepTime      time.Duration
	Username          string
	Password          Secret
	Logger            clog.Logger
	Meter             metrics.Meter
}

// KVOptions 建立键值型连接所需的参数
type KVOptions struct {
	Endpoints []string
	Username  string
	Password  Secret
	Namespace string
	Logger    clog.Logger
	Meter     metrics.Meter
}

// SessionDialer 创建会话型客户端
type SessionDialer func(ctx context.Context, opts SessionOptions) (SessionClient, error)

// KVDialer 创建键值型客户端
type KVDialer func(ctx context.Context, opts KVOptions) (KVClient, error)
