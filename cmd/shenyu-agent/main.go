// shenyu-agent 把一个服务实例及其方法元数据注册到 ShenYu 网关的注册中心，
// 并提供 /healthz 与 /metrics。
//
//	shenyu-agent                    # 读取 ./agent.yaml 或 ./config/agent.yaml
//	SHENYU_ENV=prod shenyu-agent    # 叠加 agent.prod.yaml
//	SHENYU_KIND=etcd shenyu-agent   # 环境变量覆盖配置项
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/config"
	"github.com/ceyewan/shenyu-register/metrics"
	"github.com/ceyewan/shenyu-register/registry"
	"github.com/ceyewan/shenyu-register/trace"
	"github.com/ceyewan/shenyu-register/xerrors"
)

const (
	initTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shenyu-agent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 配置
	loader, err := config.New(
		config.WithConfigName("agent"),
		config.WithConfigPaths(".", "./config", "/etc/shenyu"),
		config.WithEnvPrefix("SHENYU"),
	)
	if err != nil {
		return err
	}
	if err := loader.Load(ctx); err != nil {
		return xerrors.Wrap(err, "load config")
	}
	cfg, err := loadAgentConfig(loader)
	if err != nil {
		return err
	}

	// 2. 日志、指标、链路
	logger, err := clog.New(&cfg.Log, clog.WithNamespace(serviceName), clog.WithStandardContext())
	if err != nil {
		return xerrors.Wrap(err, "create logger")
	}
	defer logger.Flush()

	meter, err := metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		return xerrors.Wrap(err, "create meter")
	}
	defer shutdown(logger, "meter", meter.Shutdown)

	shutdownTrace, err := initTrace(&cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "init trace")
	}
	defer shutdown(logger, "tracer", shutdownTrace)

	// 3. 注册
	kind, err := registry.ParseKind(cfg.Kind)
	if err != nil {
		return err
	}
	tracker := registry.NewHealthTracker()
	reg, err := registry.New(kind,
		registry.WithLogger(logger),
		registry.WithMeter(meter),
		registry.WithHealthTracker(tracker),
	)
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	err = reg.Init(initCtx, &cfg.Registry)
	cancel()
	if err != nil {
		return xerrors.Wrap(err, "init registrar")
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Error("close registrar failed", clog.Error(err))
		}
	}()

	if err := publish(ctx, reg, cfg); err != nil {
		return err
	}

	// 4. HTTP
	requests, err := meter.Counter(metrics.MetricHTTPServerRequestTotal, "HTTP requests served by the agent")
	if err != nil {
		return xerrors.Wrap(err, "create http metrics")
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(tracker, requests),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", clog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	go watchLogLevel(ctx, loader, logger)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		logger.Error("http server failed", clog.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", clog.Error(err))
	}
	return nil
}

func initTrace(cfg *trace.Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return trace.Discard(cfg.ServiceName)
	}
	return trace.Init(cfg)
}

// publish 先写元数据再发布实例地址，网关看到地址时路由规则已就绪
func publish(ctx context.Context, reg registry.Registrar, cfg *AgentConfig) error {
	for i := range cfg.Metadata {
		rec := &cfg.Metadata[i]
		if rec.AppName == "" {
			rec.AppName = cfg.Instance.AppName
		}
		if rec.ContextPath == "" {
			rec.ContextPath = cfg.Instance.ContextPath
		}
		if rec.RPCType == "" {
			rec.RPCType = cfg.Instance.RPCType
		}
		if err := reg.PersistInterface(ctx, rec); err != nil {
			return xerrors.Wrapf(err, "publish metadata %s", registry.MetadataNodeName(rec))
		}
	}
	if err := reg.PersistURI(ctx, &cfg.Instance); err != nil {
		return xerrors.Wrap(err, "publish uri")
	}
	return nil
}

// watchLogLevel 配置文件中的 log.level 变化时调整日志级别
func watchLogLevel(ctx context.Context, loader config.Loader, logger clog.Logger) {
	events, err := loader.Watch(ctx, "log.level")
	if err != nil {
		logger.Warn("watch log level failed", clog.Error(err))
		return
	}
	for ev := range events {
		raw, _ := ev.Value.(string)
		level, err := clog.ParseLevel(raw)
		if err != nil {
			logger.Warn("ignore invalid log level", clog.String("level", raw))
			continue
		}
		if err := logger.SetLevel(level); err != nil {
			logger.Warn("set log level failed", clog.Error(err))
			continue
		}
		logger.Info("log level changed", clog.String("level", level.String()))
	}
}

func shutdown(logger clog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("shutdown failed", clog.String("component", name), clog.Error(err))
	}
}
