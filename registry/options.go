package registry

import (
	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/metrics"
	"github.com/ceyewan/shenyu-register/registry/types"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger        clog.Logger
	meter         metrics.Meter
	health        *HealthTracker
	sessionDialer types.SessionDialer
	kvDialer      types.KVDialer
}

func defaultOptions() *options {
	return &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
}

// WithLogger 注入日志记录器，组件内部会自动追加 "registry" namespace
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("registry")
		}
	}
}

// WithMeter 注入指标收集器
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithHealthTracker 与其他 Registrar 共享健康状态表，默认每个 Registrar 独占一个
func WithHealthTracker(h *HealthTracker) Option {
	return func(o *options) {
		if h != nil {
			o.health = h
		}
	}
}

// WithSessionDialer 替换会话型后端的连接方式，主要用于测试
func WithSessionDialer(d types.SessionDialer) Option {
	return func(o *options) {
		o.sessionDialer = d
	}
}

// WithKVDialer 替换键值型后端的连接方式，主要用于测试
func WithKVDialer(d types.KVDialer) Option {
	return func(o *options) {
		o.kvDialer = d
	}
}
