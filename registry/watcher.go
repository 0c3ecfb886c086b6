package registry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/metrics"
	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/trace"
)

// watcher 消费会话状态事件，维护健康状态并在重连后重放已记录的节点
//
// 客户端回调只把事件追加到无界队列，由单个 goroutine 顺序处理，
// 因此回调永远不会阻塞客户端的事件 goroutine，重放也不会并发执行。
type watcher struct {
	kind      Kind
	client    types.SessionClient
	health    *healthReporter
	replay    *replayMap
	writeMu   *sync.Mutex
	inst      *instruments
	logger    clog.Logger
	opTimeout time.Duration
	limiter   *rate.Limiter // nil 表示不限速

	mu     sync.Mutex
	queue  []types.ConnState
	notify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newWatcher(b *base, client types.SessionClient, opTimeout time.Duration, replayQPS float64) *watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{
		kind:      b.kind,
		client:    client,
		health:    b.health,
		replay:    &b.replay,
		writeMu:   &b.writeMu,
		inst:      b.inst,
		logger:    b.logger.WithNamespace("watcher"),
		opTimeout: opTimeout,
		notify:    make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if replayQPS > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(replayQPS), 1)
	}
	return w
}

func (w *watcher) start() {
	go w.run()
	w.client.SubscribeStatusChange(w.enqueue)
}

// stop 取消进行中的等待与重放，并等待消费者退出
func (w *watcher) stop() {
	w.cancel()
	<-w.done
}

func (w *watcher) enqueue(state types.ConnState) {
	w.mu.Lock()
	w.queue = append(w.queue, state)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *watcher) pop() (types.ConnState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return 0, false
	}
	state := w.queue[0]
	w.queue = w.queue[1:]
	return state, true
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.notify:
		}
		for {
			state, ok := w.pop()
			if !ok {
				break
			}
			if w.ctx.Err() != nil {
				return
			}
			w.handle(state)
		}
	}
}

func (w *watcher) handle(state types.ConnState) {
	w.logger.Debug("session state changed", clog.String("state", state.String()))

	switch state {
	case types.StateDisconnected, types.StateExpired:
		prev := w.health.load()
		if w.client.WaitForState(w.ctx, types.StateSyncConnected, w.opTimeout) {
			if prev.Kind == HealthKindDisconnected {
				w.logger.Info("registry session recovered", clog.String("from", state.String()))
			}
			w.health.healthy(w.ctx)
			return
		}
		if w.ctx.Err() != nil {
			return
		}
		w.health.unhealthy(w.ctx, HealthKindDisconnected, ReasonSessionDisconnected)
		w.logger.Warn("registry session disconnected",
			clog.String("state", state.String()),
			clog.Duration("timeout", w.opTimeout),
		)

	case types.StateAuthFailed:
		w.health.unhealthy(w.ctx, HealthKindAuthFailed, ReasonAuthFailed)
		w.logger.Error("registry authentication failed, check credentials")

	case types.StateSyncConnected, types.StateReadOnlyConnected:
		w.health.healthy(w.ctx)
		w.replayAll()
	}
}

// replayAll 重放已记录的节点：中断时未落地的覆盖写入，其余只重建已不存在的节点
func (w *watcher) replayAll() {
	paths := w.replay.paths()
	if len(paths) == 0 {
		return
	}

	ctx, span := trace.Start(w.ctx, trace.OperationReplay, string(w.kind),
		attribute.Int(trace.AttrRegisterReplay, len(paths)))
	var created, skipped, failed int
	defer func() {
		span.SetAttributes(
			attribute.Int("replay.created", created),
			attribute.Int("replay.skipped", skipped),
			attribute.Int("replay.failed", failed),
		)
		trace.End(span, nil)
	}()

	for _, path := range paths {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
		}

		outcome, e, err := w.replayEntry(ctx, path)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			failed++
			w.logger.Warn("replay entry failed", clog.String("path", path), clog.Error(err))
		case outcome == metrics.OutcomeSkipped:
			skipped++
		default:
			created++
			w.logger.Info("replayed registry entry",
				clog.String("path", path),
				clog.String("mode", e.Mode.String()),
				clog.Bool("pending", e.Pending),
			)
		}
		w.inst.replayed(ctx, outcome)
	}
}

// replayEntry 在 writeMu 内读取路径的最新记录并重放，避免旧快照覆盖并发写入的新数据
func (w *watcher) replayEntry(ctx context.Context, path string) (string, RegisteredEntry, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	e, ok := w.replay.load(path)
	if !ok {
		return metrics.OutcomeSkipped, e, nil
	}

	if e.Pending {
		if err := w.client.CreateOrUpdate(ctx, e.Path, e.Payload, e.Mode); err != nil {
			return metrics.OutcomeError, e, err
		}
		applied := e
		applied.Pending = false
		w.replay.store(applied)
		return metrics.OutcomeSuccess, e, nil
	}

	exists, err := w.client.Exists(ctx, e.Path)
	if err != nil {
		return metrics.OutcomeError, e, err
	}
	if exists {
		return metrics.OutcomeSkipped, e, nil
	}
	if err := w.client.CreateWithParent(ctx, e.Path, e.Payload, e.Mode); err != nil {
		return metrics.OutcomeError, e, err
	}
	return metrics.OutcomeSuccess, e, nil
}
