// Package zookeeper 基于 go-zookeeper 实现会话型注册中心客户端。
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/internal/registry/session"
	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/xerrors"
)

const digestScheme = "digest"

// Client ZooKeeper 会话
type Client struct {
	conn    *zk.Conn
	tracker *session.Tracker
	policy  session.RetryPolicy
	acl     []zk.ACL
	logger  clog.Logger
	once    sync.Once
}

// Dial 建立会话并等待会话建立，超过 ConnectionTimeout 返回 ErrConnectionLost
func Dial(ctx context.Context, opts types.SessionOptions) (types.SessionClient, error) {
	logger := opts.Logger
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.WithNamespace("zookeeper")

	c := &Client{
		tracker: session.NewTracker(types.StateDisconnected),
		policy:  session.PolicyFrom(opts),
		acl:     zk.WorldACL(zk.PermAll),
		logger:  logger,
	}

	dialTimeout := opts.ConnectionTimeout
	conn, _, err := zk.Connect(opts.Endpoints, opts.SessionTimeout,
		zk.WithLogger(zkLogger{logger}),
		zk.WithEventCallback(c.onEvent),
		zk.WithDialer(func(network, address string, _ time.Duration) (net.Conn, error) {
			return net.DialTimeout(network, address, dialTimeout)
		}),
	)
	if err != nil {
		return nil, xerrors.Wrapf(types.ErrConnectionLost, "zookeeper connect %v: %v", opts.Endpoints, err)
	}
	c.conn = conn

	if opts.Username != "" {
		auth := opts.Username + ":" + opts.Password.Reveal()
		if err := conn.AddAuth(digestScheme, []byte(auth)); err != nil {
			conn.Close()
			return nil, xerrors.Wrapf(types.ErrAuthFailed, "zookeeper add auth: %v", err)
		}
		c.acl = zk.DigestACL(zk.PermAll, opts.Username, opts.Password.Reveal())
	}

	if !c.tracker.Wait(ctx, types.StateSyncConnected, dialTimeout) {
		state := c.tracker.State()
		conn.Close()
		if state == types.StateAuthFailed {
			return nil, xerrors.Wrapf(types.ErrAuthFailed, "zookeeper %v", opts.Endpoints)
		}
		return nil, xerrors.Wrapf(types.ErrConnectionLost, "zookeeper %v: session not established within %s", opts.Endpoints, dialTimeout)
	}

	logger.Info("zookeeper session established",
		clog.Strings("endpoints", opts.Endpoints),
		clog.Int64("session_id", conn.SessionID()),
	)
	return c, nil
}

// onEvent 在 go-zookeeper 的事件 goroutine 上执行
func (c *Client) onEvent(ev zk.Event) {
	if ev.Type != zk.EventSession {
		return
	}
	if state, ok := mapState(ev.State); ok {
		c.tracker.Set(state)
	}
}

// mapState 只关心会话级状态，TCP 建连等中间状态忽略
func mapState(s zk.State) (types.ConnState, bool) {
	switch s {
	case zk.StateHasSession:
		return types.StateSyncConnected, true
	case zk.StateConnectedReadOnly:
		return types.StateReadOnlyConnected, true
	case zk.StateDisconnected:
		return types.StateDisconnected, true
	case zk.StateExpired:
		return types.StateExpired, true
	case zk.StateAuthFailed:
		return types.StateAuthFailed, true
	default:
		return 0, false
	}
}

func flags(mode types.CreateMode) int32 {
	if mode == types.Ephemeral {
		return zk.FlagEphemeral
	}
	return 0
}

func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := session.Retry(ctx, c.policy, func() error {
		ok, _, err := c.conn.Exists(path)
		exists = ok
		return mapError(err)
	})
	return exists, err
}

// CreateWithParent 节点已存在时保持原数据不变
func (c *Client) CreateWithParent(ctx context.Context, path string, data []byte, mode types.CreateMode) error {
	return session.Retry(ctx, c.policy, func() error {
		err := c.create(path, data, mode)
		if errors.Is(err, zk.ErrNodeExists) {
			return nil
		}
		return mapError(err)
	})
}

func (c *Client) CreateOrUpdate(ctx context.Context, path string, data []byte, mode types.CreateMode) error {
	return session.Retry(ctx, c.policy, func() error {
		err := c.create(path, data, mode)
		if errors.Is(err, zk.ErrNodeExists) {
			_, err = c.conn.Set(path, data, -1)
		}
		return mapError(err)
	})
}

// create 父节点缺失时以持久模式逐级补齐后重试
func (c *Client) create(path string, data []byte, mode types.CreateMode) error {
	_, err := c.conn.Create(path, data, flags(mode), c.acl)
	if !errors.Is(err, zk.ErrNoNode) {
		return err
	}
	if err := c.ensureParents(path); err != nil {
		return err
	}
	_, err = c.conn.Create(path, data, flags(mode), c.acl)
	return err
}

func (c *Client) ensureParents(path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, p := range parts[:len(parts)-1] {
		cur += "/" + p
		_, err := c.conn.Create(cur, nil, 0, c.acl)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return err
		}
	}
	return nil
}

func (c *Client) SubscribeStatusChange(fn func(types.ConnState)) {
	c.tracker.Subscribe(fn)
}

func (c *Client) WaitForState(ctx context.Context, state types.ConnState, timeout time.Duration) bool {
	return c.tracker.Wait(ctx, state, timeout)
}

// Close 关闭会话，服务端随即删除本会话的临时节点
func (c *Client) Close() error {
	c.once.Do(func() {
		c.conn.Close()
		c.logger.Info("zookeeper session closed")
	})
	return nil
}

// mapError 把 go-zookeeper 错误归类为连接中断或认证失败
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, zk.ErrConnectionClosed),
		errors.Is(err, zk.ErrNoServer),
		errors.Is(err, zk.ErrSessionExpired),
		errors.Is(err, zk.ErrSessionMoved),
		errors.Is(err, zk.ErrClosing):
		return fmt.Errorf("zookeeper: %w: %w", err, types.ErrConnectionLost)
	case errors.Is(err, zk.ErrNoAuth), errors.Is(err, zk.ErrAuthFailed):
		return fmt.Errorf("zookeeper: %w: %w", err, types.ErrAuthFailed)
	default:
		return xerrors.Wrap(err, "zookeeper")
	}
}

// zkLogger 把 go-zookeeper 的日志转到 clog，级别为 debug
type zkLogger struct {
	l clog.Logger
}

func (z zkLogger) Printf(format string, args ...any) {
	z.l.Debug(fmt.Sprintf(format, args...))
}
