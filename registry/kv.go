package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/metrics"
	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/trace"
	"github.com/ceyewan/shenyu-register/xerrors"
)

const (
	// MetaKeyURI 服务描述中承载 URI 记录的 Meta 键
	MetaKeyURI = "uri"

	breakerFailures  = 3
	kvCloseTimeout   = 5 * time.Second
	defaultNamespace = "shenyu"
)

// breakerOpenTimeout 熔断器打开后进入半开状态前的等待时间
var breakerOpenTimeout = 5 * time.Second

// kvRegistrar 键值型后端：元数据逐条 Put，URI 写入每实例唯一的服务描述
//
// 写入经过熔断器，熔断器状态驱动健康状态。连接中断导致的失败记录为待重放，
// 熔断器恢复闭合后由后台 goroutine 补写。
type kvRegistrar struct {
	*base
	dial   types.KVDialer
	client types.KVClient
	cb     *gobreaker.CircuitBreaker[any]

	descMu     sync.Mutex
	descriptor types.ServiceDescriptor

	// 以下两项只在 writeMu 内修改
	pending        replayMap   // 中断期间未写入的元数据
	pendingService atomic.Bool // 中断期间服务描述未写入
	recovered      chan struct{}
	stopRecover    chan struct{}
	recoverDone    chan struct{}
}

func newKVRegistrar(b *base, dial types.KVDialer) *kvRegistrar {
	return &kvRegistrar{base: b, dial: dial}
}

func (k *kvRegistrar) Init(ctx context.Context, cfg *Config) (err error) {
	start := time.Now()
	ctx, span := trace.Start(ctx, trace.OperationInit, string(k.kind))
	defer func() {
		k.inst.observe(ctx, k.kind, opInit, metrics.Outcome(err), start)
		trace.End(span, err)
	}()

	if err := k.beginInit(cfg); err != nil {
		return err
	}
	defer k.mu.Unlock()

	desc, err := descriptorFromConfig(cfg)
	if err != nil {
		return err
	}

	client, err := k.dial(ctx, types.KVOptions{
		Endpoints: cfg.ServerLists,
		Username:  cfg.propString(PropUsername, ""),
		Password:  types.NewSecret(cfg.propString(PropPassword, "")),
		Namespace: cfg.propString(PropNamespace, defaultNamespace),
		Logger:    k.logger,
		Meter:     k.meter,
	})
	if err != nil {
		return xerrors.Wrapf(err, "connect %s %v", k.kind, cfg.ServerLists)
	}

	k.client = client
	k.descriptor = desc
	k.bind(cfg)
	k.cb = gobreaker.NewCircuitBreaker[any](k.breakerSettings(cfg.connectionKey()))
	k.recovered = make(chan struct{}, 1)
	k.stopRecover = make(chan struct{})
	k.recoverDone = make(chan struct{})
	go k.recoverLoop()
	k.state.Store(stateReady)

	k.logger.Info("registry initialized",
		clog.String("service_id", desc.ID),
		clog.String("service_name", desc.Name),
		clog.Int("port", desc.Port),
	)
	return nil
}

// descriptorFromConfig 构造服务描述，id 与 port 必填，id/name 需通过名称规范化
func descriptorFromConfig(cfg *Config) (types.ServiceDescriptor, error) {
	var desc types.ServiceDescriptor

	rawID, ok := cfg.Prop(PropID)
	if !ok || rawID == "" {
		return desc, xerrors.Wrap(ErrConfig, "prop id is required")
	}
	port, err := cfg.port()
	if err != nil {
		return desc, err
	}

	id, err := NormalizeForDNS(rawID)
	if err != nil {
		return desc, err
	}
	name, err := NormalizeForDNS(cfg.propString(PropName, rawID))
	if err != nil {
		return desc, err
	}
	override, err := cfg.propBool(PropEnableTagOverride, false)
	if err != nil {
		return desc, err
	}

	return types.ServiceDescriptor{
		ID:                id,
		Name:              name,
		Tags:              splitTags(cfg.propString(PropTags, "")),
		Port:              port,
		Address:           cfg.propString(PropHostname, defaultHostname),
		EnableTagOverride: override,
		Meta:              map[string]string{},
	}, nil
}

func (k *kvRegistrar) breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        string(k.kind) + "@" + name,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			k.logger.Info("circuit breaker state changed",
				clog.String("breaker", name),
				clog.String("from", from.String()),
				clog.String("to", to.String()),
			)
			switch to {
			case gobreaker.StateOpen:
				k.health.unhealthy(context.Background(), HealthKindDisconnected, ReasonCircuitOpen)
			case gobreaker.StateClosed:
				k.health.healthy(context.Background())
				select {
				case k.recovered <- struct{}{}:
				default:
				}
			}
		},
		// 只有连接中断计入失败，业务错误不影响熔断
		IsSuccessful: func(err error) bool {
			return err == nil || !xerrors.Is(err, types.ErrConnectionLost)
		},
	}
}

func (k *kvRegistrar) execute(fn func() error) error {
	_, err := k.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// disrupted 连接中断或熔断器拒绝
func disrupted(err error) bool {
	return xerrors.Is(err, types.ErrConnectionLost) ||
		xerrors.Is(err, gobreaker.ErrOpenState) ||
		xerrors.Is(err, gobreaker.ErrTooManyRequests)
}

func (k *kvRegistrar) PersistInterface(ctx context.Context, rec *MetaDataRecord) (err error) {
	if err := k.ready(); err != nil {
		return err
	}
	if rec == nil {
		return ErrInvalidRecord
	}

	start := time.Now()
	key := k.paths.MetadataPath(rec)
	ctx, span := trace.Start(ctx, trace.OperationInterface, string(k.kind),
		attribute.String(trace.AttrRegisterPath, key),
		attribute.String(trace.AttrRegisterRPCType, rec.RPCType),
	)
	outcome := metrics.OutcomeSuccess
	defer func() {
		if err != nil {
			outcome = metrics.OutcomeError
		}
		k.inst.observe(ctx, k.kind, opInterface, outcome, start)
		trace.End(span, err)
	}()

	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	writeErr := k.execute(func() error { return k.client.Put(ctx, key, data) })
	if writeErr != nil && disrupted(writeErr) {
		k.pending.store(RegisteredEntry{Path: key, Payload: data, Mode: types.Persistent})
		k.logger.Warn("metadata write deferred until registry recovers", clog.String("key", key), clog.Error(writeErr))
		outcome = metrics.OutcomeDeferred
		return nil
	}
	if writeErr != nil {
		return xerrors.Wrapf(writeErr, "put metadata %s", key)
	}
	k.pending.delete(key)

	k.logger.Debug("metadata registered", clog.String("key", key))
	return nil
}

func (k *kvRegistrar) PersistURI(ctx context.Context, rec *URIRecord) (err error) {
	if err := k.ready(); err != nil {
		return err
	}
	if rec == nil {
		return ErrInvalidRecord
	}

	start := time.Now()
	path := k.paths.URIPath(rec)
	ctx, span := trace.Start(ctx, trace.OperationURI, string(k.kind),
		attribute.String(trace.AttrRegisterPath, path),
		attribute.String(trace.AttrRegisterRPCType, rec.RPCType),
	)
	outcome := metrics.OutcomeSuccess
	defer func() {
		if err != nil {
			outcome = metrics.OutcomeError
		}
		k.inst.observe(ctx, k.kind, opURI, outcome, start)
		trace.End(span, err)
	}()

	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	desc := k.setURIMeta(string(data))
	writeErr := k.execute(func() error { return k.client.RegisterService(ctx, &desc) })
	if writeErr != nil && disrupted(writeErr) {
		k.pendingService.Store(true)
		k.logger.Warn("service registration deferred until registry recovers", clog.String("service_id", desc.ID), clog.Error(writeErr))
		outcome = metrics.OutcomeDeferred
		return nil
	}
	if writeErr != nil {
		return xerrors.Wrapf(writeErr, "register service %s", desc.ID)
	}
	k.pendingService.Store(false)

	k.logger.Info("service registered", clog.String("service_id", desc.ID), clog.String("uri", path))
	return nil
}

// setURIMeta 更新描述中的 URI 并返回一份副本
func (k *kvRegistrar) setURIMeta(uri string) types.ServiceDescriptor {
	k.descMu.Lock()
	defer k.descMu.Unlock()
	k.descriptor.Meta[MetaKeyURI] = uri
	return k.snapshotLocked()
}

func (k *kvRegistrar) snapshot() types.ServiceDescriptor {
	k.descMu.Lock()
	defer k.descMu.Unlock()
	return k.snapshotLocked()
}

func (k *kvRegistrar) snapshotLocked() types.ServiceDescriptor {
	desc := k.descriptor
	desc.Tags = append([]string(nil), k.descriptor.Tags...)
	desc.Meta = make(map[string]string, len(k.descriptor.Meta))
	for mk, mv := range k.descriptor.Meta {
		desc.Meta[mk] = mv
	}
	return desc
}

// recoverLoop 熔断器闭合后补写中断期间失败的写入
//
// 有待补写的条目时按 breakerOpenTimeout 周期探测，熔断器半开时的探测写入成功即闭合。
func (k *kvRegistrar) recoverLoop() {
	defer close(k.recoverDone)
	ticker := time.NewTicker(breakerOpenTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-k.stopRecover:
			return
		case <-k.recovered:
			k.flushPending()
		case <-ticker.C:
			if k.hasPending() {
				k.flushPending()
			}
		}
	}
}

func (k *kvRegistrar) hasPending() bool {
	return k.pendingService.Load() || len(k.pending.paths()) > 0
}

func (k *kvRegistrar) flushPending() {
	ctx, cancel := context.WithTimeout(context.Background(), kvCloseTimeout)
	defer cancel()

	for _, key := range k.pending.paths() {
		if err := k.flushMetadata(ctx, key); err != nil {
			k.logger.Warn("replay metadata failed", clog.String("key", key), clog.Error(err))
			return
		}
	}
	if err := k.flushService(ctx); err != nil {
		k.logger.Warn("replay service registration failed", clog.Error(err))
	}
}

// flushMetadata 在 writeMu 内补写键的最新待写数据，期间到达的新写入不会被旧数据覆盖
func (k *kvRegistrar) flushMetadata(ctx context.Context, key string) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()

	e, ok := k.pending.load(key)
	if !ok {
		return nil
	}
	err := k.execute(func() error { return k.client.Put(ctx, e.Path, e.Payload) })
	k.inst.replayed(ctx, metrics.Outcome(err))
	if err != nil {
		return err
	}
	k.pending.delete(key)
	return nil
}

func (k *kvRegistrar) flushService(ctx context.Context) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()

	if !k.pendingService.Load() {
		return nil
	}
	desc := k.snapshot()
	err := k.execute(func() error { return k.client.RegisterService(ctx, &desc) })
	k.inst.replayed(ctx, metrics.Outcome(err))
	if err != nil {
		return err
	}
	k.pendingService.Store(false)
	k.logger.Info("service registration replayed", clog.String("service_id", desc.ID))
	return nil
}

// Close 注销服务描述并关闭客户端，注销只会发生一次
func (k *kvRegistrar) Close() (err error) {
	if !k.beginClose() {
		return nil
	}

	start := time.Now()
	ctx, span := trace.Start(context.Background(), trace.OperationClose, string(k.kind))
	defer func() {
		k.inst.observe(ctx, k.kind, opClose, metrics.Outcome(err), start)
		trace.End(span, err)
	}()

	close(k.stopRecover)
	<-k.recoverDone

	ctx, cancel := context.WithTimeout(ctx, kvCloseTimeout)
	defer cancel()

	id := k.snapshot().ID
	deregErr := k.client.DeregisterService(ctx, id)
	if deregErr != nil {
		k.logger.Error("deregister service failed", clog.String("service_id", id), clog.Error(deregErr))
		deregErr = xerrors.Wrapf(deregErr, "deregister service %s", id)
	} else {
		k.logger.Info("service deregistered", clog.String("service_id", id))
	}

	closeErr := k.client.Close()
	if closeErr != nil {
		closeErr = xerrors.Wrapf(closeErr, "close %s client", k.kind)
	}
	return xerrors.Combine(deregErr, closeErr)
}
