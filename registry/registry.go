// Package registry 把服务的元数据与网络地址发布到 ShenYu 网关使用的注册中心，
// 并在会话中断后恢复已发布的临时节点。
//
// 支持两类后端：
//   - 会话型（zookeeper、etcd）：元数据为持久节点，URI 为随会话消失的临时节点，
//     由重连监听器在会话恢复后重放
//   - 键值型（consul、redis）：元数据逐条写入，URI 以每实例一个服务描述的形式注册
//
// 基本使用：
//
//	r, err := registry.New(registry.KindZookeeper, registry.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := r.Init(ctx, &registry.Config{ServerLists: []string{"127.0.0.1:2181"}}); err != nil {
//		return err
//	}
//	defer r.Close()
//
//	err = r.PersistURI(ctx, &registry.URIRecord{
//		RPCType: "http", ContextPath: "/order", Host: "10.0.0.5", Port: 8080,
//	})
package registry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/internal/registry/consul"
	"github.com/ceyewan/shenyu-register/internal/registry/etcd"
	"github.com/ceyewan/shenyu-register/internal/registry/redis"
	"github.com/ceyewan/shenyu-register/internal/registry/zookeeper"
	"github.com/ceyewan/shenyu-register/metrics"
	"github.com/ceyewan/shenyu-register/xerrors"
)

// Registrar 注册客户端
//
// Close 是终态操作，不能与进行中的 Persist 调用并发。
type Registrar interface {
	// Init 校验配置并建立连接，只能调用一次
	Init(ctx context.Context, cfg *Config) error

	// PersistInterface 写入（或覆盖）一条方法元数据
	PersistInterface(ctx context.Context, rec *MetaDataRecord) error

	// PersistURI 发布本实例的网络地址
	PersistURI(ctx context.Context, rec *URIRecord) error

	// Health 当前连接的健康状态
	Health() Health

	// Close 注销并释放连接，重复调用无副作用
	Close() error
}

// Kind 注册中心类型
type Kind string

const (
	KindZookeeper Kind = "zookeeper"
	KindEtcd      Kind = "etcd"
	KindConsul    Kind = "consul"
	KindRedis     Kind = "redis"
)

// ParseKind 解析注册中心类型，大小写不敏感
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindZookeeper, KindEtcd, KindConsul, KindRedis:
		return k, nil
	default:
		return "", xerrors.Wrapf(ErrUnknownKind, "%q", s)
	}
}

// SessionBound 是否为会话型后端
func (k Kind) SessionBound() bool {
	return k == KindZookeeper || k == KindEtcd
}

// New 创建指定类型的 Registrar，连接在 Init 时建立
func New(kind Kind, opts ...Option) (Registrar, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.health == nil {
		o.health = NewHealthTracker()
	}

	b, err := newBase(kind, o)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindZookeeper:
		if o.sessionDialer == nil {
			o.sessionDialer = zookeeper.Dial
		}
		return newSessionRegistrar(b, o.sessionDialer), nil
	case KindEtcd:
		if o.sessionDialer == nil {
			o.sessionDialer = etcd.Dial
		}
		return newSessionRegistrar(b, o.sessionDialer), nil
	case KindConsul:
		if o.kvDialer == nil {
			o.kvDialer = consul.Dial
		}
		return newKVRegistrar(b, o.kvDialer), nil
	case KindRedis:
		if o.kvDialer == nil {
			o.kvDialer = redis.Dial
		}
		return newKVRegistrar(b, o.kvDialer), nil
	default:
		return nil, xerrors.Wrapf(ErrUnknownKind, "%q", kind)
	}
}

const (
	stateNew int32 = iota
	stateReady
	stateClosed
)

// base 两类 Registrar 共用的生命周期、路径、健康与指标
type base struct {
	kind    Kind
	logger  clog.Logger
	meter   metrics.Meter
	tracker *HealthTracker
	inst    *instruments
	paths   PathBuilder
	replay  replayMap

	writeMu sync.Mutex // 串行化写入与重放，重放总是基于最新记录
	mu      sync.Mutex // 保护 Init/Close 的状态转换
	state   atomic.Int32
	health  *healthReporter
}

func newBase(kind Kind, o *options) (*base, error) {
	inst, err := newInstruments(o.meter)
	if err != nil {
		return nil, xerrors.Wrap(err, "create registry metrics")
	}
	return &base{
		kind:    kind,
		logger:  o.logger.With(clog.String("kind", string(kind))),
		meter:   o.meter,
		tracker: o.health,
		inst:    inst,
	}, nil
}

// beginInit 校验状态与配置，成功返回时持有 b.mu，由调用方释放
func (b *base) beginInit(cfg *Config) error {
	b.mu.Lock()
	switch b.state.Load() {
	case stateReady:
		b.mu.Unlock()
		return ErrAlreadyInitialized
	case stateClosed:
		b.mu.Unlock()
		return ErrRegistrarClosed
	}
	if err := cfg.validate(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.paths = PathBuilder{Root: cfg.Root}
	return nil
}

// bind 连接建立后绑定健康条目，需在持有 b.mu 时调用
func (b *base) bind(cfg *Config) {
	key := cfg.connectionKey()
	b.health = &healthReporter{
		key:   key,
		entry: b.tracker.Entry(key),
		gauge: b.inst.healthy,
	}
	b.logger = b.logger.With(clog.String("connection", key))
}

// ready Persist 调用前的状态检查
func (b *base) ready() error {
	switch b.state.Load() {
	case stateReady:
		return nil
	case stateClosed:
		return ErrRegistrarClosed
	default:
		return ErrNotInitialized
	}
}

// beginClose 返回 false 表示已关闭或从未初始化，调用方直接返回 nil
func (b *base) beginClose() (wasReady bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state.Swap(stateClosed)
	return prev == stateReady
}

func (b *base) Health() Health {
	if b.state.Load() != stateNew && b.health != nil {
		return b.health.load()
	}
	return Health{Kind: HealthKindDisconnected, Reason: "registrar not initialized"}
}

// healthReporter 更新健康条目并同步到指标
type healthReporter struct {
	key   string
	entry *HealthEntry
	gauge metrics.Gauge
}

func (h *healthReporter) healthy(ctx context.Context) {
	h.entry.SetHealthy()
	h.gauge.Set(ctx, 1, metrics.L(metrics.LabelConnection, h.key))
}

func (h *healthReporter) unhealthy(ctx context.Context, kind HealthKind, reason string) {
	h.entry.SetUnhealthy(kind, reason)
	h.gauge.Set(ctx, 0, metrics.L(metrics.LabelConnection, h.key))
}

func (h *healthReporter) load() Health {
	return h.entry.Load()
}

// 操作名，用于指标标签
const (
	opInit      = "init"
	opInterface = "interface"
	opURI       = "uri"
	opClose     = "close"
)

type instruments struct {
	persist  metrics.Counter
	duration metrics.Histogram
	replay   metrics.Counter
	healthy  metrics.Gauge
}

func newInstruments(m metrics.Meter) (*instruments, error) {
	persist, err := m.Counter(metrics.MetricPersistTotal, "Registry write operations")
	if err != nil {
		return nil, err
	}
	duration, err := m.Histogram(metrics.MetricPersistDuration, "Registry write latency",
		metrics.WithUnit("s"),
		metrics.WithBuckets(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3),
	)
	if err != nil {
		return nil, err
	}
	replay, err := m.Counter(metrics.MetricReplayTotal, "Replayed registry entries")
	if err != nil {
		return nil, err
	}
	healthy, err := m.Gauge(metrics.MetricHealthy, "Registry connection health (1 healthy, 0 unhealthy)")
	if err != nil {
		return nil, err
	}
	return &instruments{persist: persist, duration: duration, replay: replay, healthy: healthy}, nil
}

func (i *instruments) observe(ctx context.Context, kind Kind, op, outcome string, start time.Time) {
	labels := []metrics.Label{
		metrics.L(metrics.LabelKind, string(kind)),
		metrics.L(metrics.LabelOperation, op),
	}
	i.duration.Record(ctx, time.Since(start).Seconds(), labels...)
	i.persist.Inc(ctx, append(labels, metrics.L(metrics.LabelOutcome, outcome))...)
}

func (i *instruments) replayed(ctx context.Context, outcome string) {
	i.replay.Inc(ctx, metrics.L(metrics.LabelOutcome, outcome))
}
