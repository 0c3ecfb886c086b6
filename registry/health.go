package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/shenyu-register/xerrors"
)

// HealthKind 健康状态类别
type HealthKind int

const (
	HealthKindHealthy HealthKind = iota
	HealthKindDisconnected
	HealthKindAuthFailed
)

func (k HealthKind) String() string {
	switch k {
	case HealthKindHealthy:
		return "Healthy"
	case HealthKindDisconnected:
		return "Disconnected"
	case HealthKindAuthFailed:
		return "AuthFailed"
	default:
		return "Unknown"
	}
}

func (k HealthKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *HealthKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Healthy":
		*k = HealthKindHealthy
	case "Disconnected":
		*k = HealthKindDisconnected
	case "AuthFailed":
		*k = HealthKindAuthFailed
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown health kind %q", text)
	}
	return nil
}

// 不健康原因
const (
	ReasonSessionDisconnected = "Connection session disconnected"
	ReasonAuthFailed          = "AuthFailed"
	ReasonCircuitOpen         = "registry circuit open"
)

// Health 一个注册中心连接的健康状态
type Health struct {
	Healthy   bool       `json:"healthy"`
	Kind      HealthKind `json:"kind"`
	Reason    string     `json:"reason,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// HealthEntry 单个连接的健康状态，后写覆盖先写
type HealthEntry struct {
	v atomic.Pointer[Health]
}

func newHealthEntry() *HealthEntry {
	e := &HealthEntry{}
	e.SetHealthy()
	return e
}

// SetHealthy 标记为健康
func (e *HealthEntry) SetHealthy() {
	e.v.Store(&Health{Healthy: true, Kind: HealthKindHealthy, UpdatedAt: time.Now()})
}

// SetUnhealthy 标记为不健康
func (e *HealthEntry) SetUnhealthy(kind HealthKind, reason string) {
	e.v.Store(&Health{Healthy: false, Kind: kind, Reason: reason, UpdatedAt: time.Now()})
}

// Load 读取当前状态
func (e *HealthEntry) Load() Health {
	return *e.v.Load()
}

// HealthTracker 按连接标识保存健康状态，并发安全
//
// 默认每个 Registrar 独占一个；需要在多个 Registrar 之间共享时通过 WithHealthTracker 注入。
type HealthTracker struct {
	entries sync.Map // key -> *HealthEntry
}

// NewHealthTracker 创建空的健康状态表
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{}
}

// Entry 获取或创建 key 对应的条目，新条目初始为健康
func (t *HealthTracker) Entry(key string) *HealthEntry {
	if v, ok := t.entries.Load(key); ok {
		return v.(*HealthEntry)
	}
	v, _ := t.entries.LoadOrStore(key, newHealthEntry())
	return v.(*HealthEntry)
}

// Get 读取 key 的健康状态
func (t *HealthTracker) Get(key string) (Health, bool) {
	v, ok := t.entries.Load(key)
	if !ok {
		return Health{}, false
	}
	return v.(*HealthEntry).Load(), true
}

// Snapshot 返回所有连接的健康状态副本
func (t *HealthTracker) Snapshot() map[string]Health {
	out := make(map[string]Health)
	t.entries.Range(func(k, v any) bool {
		out[k.(string)] = v.(*HealthEntry).Load()
		return true
	})
	return out
}
