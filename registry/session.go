package registry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/metrics"
	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/trace"
	"github.com/ceyewan/shenyu-register/xerrors"
)

// sessionRegistrar 会话型后端：元数据写持久节点，URI 写临时节点并记录以便重放
type sessionRegistrar struct {
	*base
	dial    types.SessionDialer
	client  types.SessionClient
	watcher *watcher
}

func newSessionRegistrar(b *base, dial types.SessionDialer) *sessionRegistrar {
	return &sessionRegistrar{base: b, dial: dial}
}

func (s *sessionRegistrar) Init(ctx context.Context, cfg *Config) (err error) {
	start := time.Now()
	ctx, span := trace.Start(ctx, trace.OperationInit, string(s.kind))
	defer func() {
		s.inst.observe(ctx, s.kind, opInit, metrics.Outcome(err), start)
		trace.End(span, err)
	}()

	if err := s.beginInit(cfg); err != nil {
		return err
	}
	defer s.mu.Unlock()

	opts, replayQPS, err := sessionOptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = s.logger
	opts.Meter = s.meter

	client, err := s.dial(ctx, opts)
	if err != nil {
		return xerrors.Wrapf(err, "connect %s %v", s.kind, cfg.ServerLists)
	}

	s.client = client
	s.bind(cfg)
	s.watcher = newWatcher(s.base, client, opts.OperatingTimeout, replayQPS)
	s.watcher.start()
	s.state.Store(stateReady)

	s.logger.Info("registry initialized",
		clog.Duration("session_timeout", opts.SessionTimeout),
		clog.Duration("operating_timeout", opts.OperatingTimeout),
	)
	return nil
}

func sessionOptionsFromConfig(cfg *Config) (types.SessionOptions, float64, error) {
	var (
		opts types.SessionOptions
		err  error
	)
	opts.Endpoints = cfg.ServerLists
	if _, err = cfg.port(); err != nil {
		return opts, 0, err
	}
	if opts.SessionTimeout, err = cfg.propMillis(PropSessionTimeout, defaultSessionTimeout); err != nil {
		return opts, 0, err
	}
	if opts.ConnectionTimeout, err = cfg.propMillis(PropConnectionTimeout, defaultConnectionTimeout); err != nil {
		return opts, 0, err
	}
	if opts.OperatingTimeout, err = cfg.propMillis(PropBaseSleepTime, defaultOperatingTimeout); err != nil {
		return opts, 0, err
	}
	if opts.MaxSleepTime, err = cfg.propMillis(PropMaxSleepTime, 0); err != nil {
		return opts, 0, err
	}
	if opts.MaxRetry, err = cfg.propInt(PropMaxRetry, defaultMaxRetry); err != nil {
		return opts, 0, err
	}
	opts.Username = cfg.propString(PropUsername, "")
	opts.Password = types.NewSecret(cfg.propString(PropPassword, ""))

	qps, err := cfg.propFloat(PropReplayQPS, 0)
	if err != nil {
		return opts, 0, err
	}
	return opts, qps, nil
}

func (s *sessionRegistrar) PersistInterface(ctx context.Context, rec *MetaDataRecord) (err error) {
	if err := s.ready(); err != nil {
		return err
	}
	if rec == nil {
		return ErrInvalidRecord
	}

	start := time.Now()
	node := s.paths.MetadataPath(rec)
	ctx, span := trace.Start(ctx, trace.OperationInterface, string(s.kind),
		attribute.String(trace.AttrRegisterPath, node),
		attribute.String(trace.AttrRegisterRPCType, rec.RPCType),
	)
	outcome := metrics.OutcomeSuccess
	defer func() {
		if err != nil {
			outcome = metrics.OutcomeError
		}
		s.inst.observe(ctx, s.kind, opInterface, outcome, start)
		trace.End(span, err)
	}()

	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	entry := RegisteredEntry{Path: node, Payload: data, Mode: types.Persistent}
	parent := s.paths.MetadataParent(rec.RPCType, RealNode(rec.ContextPath, rec.AppName))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	writeErr := s.client.CreateWithParent(ctx, parent, nil, types.Persistent)
	if writeErr == nil {
		writeErr = s.client.CreateOrUpdate(ctx, node, data, types.Persistent)
	}
	if s.deferred(ctx, entry, writeErr) {
		outcome = metrics.OutcomeDeferred
		return nil
	}
	if writeErr != nil {
		return xerrors.Wrapf(writeErr, "persist metadata %s", node)
	}
	// 新数据已落地，之前中断时留下的待重放记录作废
	if _, ok := s.replay.load(node); ok {
		s.replay.store(entry)
	}

	s.logger.Debug("metadata registered", clog.String("path", node))
	return nil
}

func (s *sessionRegistrar) PersistURI(ctx context.Context, rec *URIRecord) (err error) {
	if err := s.ready(); err != nil {
		return err
	}
	if rec == nil {
		return ErrInvalidRecord
	}

	start := time.Now()
	node := s.paths.URIPath(rec)
	ctx, span := trace.Start(ctx, trace.OperationURI, string(s.kind),
		attribute.String(trace.AttrRegisterPath, node),
		attribute.String(trace.AttrRegisterRPCType, rec.RPCType),
	)
	outcome := metrics.OutcomeSuccess
	defer func() {
		if err != nil {
			outcome = metrics.OutcomeError
		}
		s.inst.observe(ctx, s.kind, opURI, outcome, start)
		trace.End(span, err)
	}()

	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	entry := RegisteredEntry{Path: node, Payload: data, Mode: types.Ephemeral}
	parent := s.paths.URIParent(rec.RPCType, RealNode(rec.ContextPath, rec.AppName))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.replay.store(entry)
	writeErr := s.client.CreateWithParent(ctx, parent, nil, types.Persistent)
	if writeErr == nil {
		writeErr = s.client.CreateOrUpdate(ctx, node, data, types.Ephemeral)
	}
	if s.deferred(ctx, entry, writeErr) {
		outcome = metrics.OutcomeDeferred
		return nil
	}
	if writeErr != nil {
		return xerrors.Wrapf(writeErr, "persist uri %s", node)
	}

	s.logger.Info("uri registered", clog.String("path", node))
	return nil
}

// deferred 连接中断导致的写入失败不返回给调用方：记录待重放并更新健康状态
//
// 调用方持有 writeMu。
func (s *sessionRegistrar) deferred(ctx context.Context, entry RegisteredEntry, err error) bool {
	if err == nil || !xerrors.Is(err, types.ErrConnectionLost) {
		return false
	}
	entry.Pending = true
	s.replay.store(entry)
	s.health.unhealthy(ctx, HealthKindDisconnected, ReasonSessionDisconnected)
	s.logger.Warn("registry write deferred until reconnect",
		clog.String("path", entry.Path),
		clog.String("mode", entry.Mode.String()),
		clog.Error(err),
	)
	return true
}

func (s *sessionRegistrar) Close() (err error) {
	if !s.beginClose() {
		return nil
	}

	start := time.Now()
	ctx, span := trace.Start(context.Background(), trace.OperationClose, string(s.kind))
	defer func() {
		s.inst.observe(ctx, s.kind, opClose, metrics.Outcome(err), start)
		trace.End(span, err)
	}()

	s.watcher.stop()
	if err = s.client.Close(); err != nil {
		s.logger.Error("close registry session failed", clog.Error(err))
		return xerrors.Wrapf(err, "close %s session", s.kind)
	}
	s.logger.Info("registry session closed")
	return nil
}
