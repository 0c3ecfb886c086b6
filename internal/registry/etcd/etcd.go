// Package etcd 基于 etcd 租约实现会话型注册中心客户端。
//
// 临时节点挂在会话租约上，租约失效即视为会话过期，客户端在后台重新申请租约。
// etcd 的键空间是扁平的，不存在目录节点。
package etcd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/connector"
	"github.com/ceyewan/shenyu-register/internal/registry/session"
	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/xerrors"
)

const defaultOpTimeout = 3 * time.Second

// Client etcd 会话
type Client struct {
	conn      connector.EtcdConnector
	owned     bool
	client    *clientv3.Client
	tracker   *session.Tracker
	policy    session.RetryPolicy
	ttl       int64
	opTimeout time.Duration
	logger    clog.Logger

	mu        sync.Mutex // 保护 sess、connReady 与状态发布
	sess      *concurrency.Session
	connReady bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Dial 创建连接器并建立会话，Close 时一并释放连接器
func Dial(ctx context.Context, opts types.SessionOptions) (types.SessionClient, error) {
	conn, err := connector.NewEtcd(&connector.EtcdConfig{
		Endpoints:   opts.Endpoints,
		Username:    opts.Username,
		Password:    opts.Password.Reveal(),
		DialTimeout: opts.ConnectionTimeout,
	}, connector.WithLogger(opts.Logger), connector.WithMeter(opts.Meter))
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", err, types.ErrConnectionLost)
	}

	c, err := New(ctx, conn, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// New 在已连接的连接器上申请会话租约，连接器由调用方释放
func New(ctx context.Context, conn connector.EtcdConnector, opts types.SessionOptions) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = clog.Discard()
	}

	lifeCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:      conn,
		client:    conn.GetClient(),
		tracker:   session.NewTracker(types.StateSyncConnected),
		policy:    session.PolicyFrom(opts),
		ttl:       leaseTTL(opts.SessionTimeout),
		opTimeout: opts.ConnectionTimeout,
		logger:    logger.WithNamespace("etcd"),
		connReady: true,
		ctx:       lifeCtx,
		cancel:    cancel,
	}
	if c.opTimeout <= 0 {
		c.opTimeout = defaultOpTimeout
	}

	sess, err := c.newSession(ctx)
	if err != nil {
		cancel()
		return nil, xerrors.Wrap(err, "etcd grant session lease")
	}
	c.sess = sess

	c.wg.Add(2)
	go c.watchSession()
	go c.watchConn()

	c.logger.Info("etcd session established",
		clog.Int64("lease", int64(sess.Lease())),
		clog.Int64("ttl_seconds", c.ttl),
	)
	return c, nil
}

// leaseTTL 会话超时向上取整到秒，至少 1 秒
func leaseTTL(d time.Duration) int64 {
	ttl := int64(math.Ceil(d.Seconds()))
	if ttl < 1 {
		return 1
	}
	return ttl
}

func (c *Client) newSession(ctx context.Context) (*concurrency.Session, error) {
	grantCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	lease, err := c.client.Grant(grantCtx, c.ttl)
	if err != nil {
		return nil, mapError(err)
	}
	// 续约跟随客户端生命周期，不能绑定调用方的 ctx
	sess, err := concurrency.NewSession(c.client, concurrency.WithLease(lease.ID), concurrency.WithContext(c.ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return sess, nil
}

func (c *Client) currentSession() *concurrency.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// publishLocked 由会话与连接状态推导对外状态，需持有 c.mu
func (c *Client) publishLocked() {
	switch {
	case c.sess == nil:
		c.tracker.Set(types.StateExpired)
	case !c.connReady:
		c.tracker.Set(types.StateDisconnected)
	default:
		c.tracker.Set(types.StateSyncConnected)
	}
}

func (c *Client) setSession(sess *concurrency.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = sess
	c.publishLocked()
}

func (c *Client) setConnReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connReady = ready
	c.publishLocked()
}

// watchSession 租约失效后持续重新申请，直到成功或客户端关闭
func (c *Client) watchSession() {
	defer c.wg.Done()
	forever := c.policy
	forever.MaxRetry = -1

	for {
		sess := c.currentSession()
		select {
		case <-c.ctx.Done():
			return
		case <-sess.Done():
		}
		if c.ctx.Err() != nil {
			return
		}

		c.logger.Warn("etcd session lease expired", clog.Int64("lease", int64(sess.Lease())))
		c.setSession(nil)

		var next *concurrency.Session
		err := session.Retry(c.ctx, forever, func() error {
			s, err := c.newSession(c.ctx)
			if err != nil {
				if errors.Is(err, types.ErrAuthFailed) {
					c.tracker.Set(types.StateAuthFailed)
				}
				c.logger.Warn("renew etcd session failed", clog.Error(err))
				return fmt.Errorf("%w: %w", err, types.ErrConnectionLost)
			}
			next = s
			return nil
		})
		if err != nil {
			return
		}
		c.logger.Info("etcd session renewed", clog.Int64("lease", int64(next.Lease())))
		c.setSession(next)
	}
}

// watchConn 跟随 gRPC 连接状态，Idle 与 Connecting 不改变当前判断
func (c *Client) watchConn() {
	defer c.wg.Done()
	cc := c.client.ActiveConnection()
	state := cc.GetState()
	for {
		switch state {
		case connectivity.Ready:
			c.setConnReady(true)
		case connectivity.TransientFailure:
			c.setConnReady(false)
		case connectivity.Shutdown:
			return
		}
		if !cc.WaitForStateChange(c.ctx, state) {
			return
		}
		state = cc.GetState()
	}
}

// leaseOption 临时节点挂到当前会话租约，会话已失效时返回 ErrConnectionLost
func (c *Client) leaseOption(mode types.CreateMode) ([]clientv3.OpOption, error) {
	if mode != types.Ephemeral {
		return nil, nil
	}
	sess := c.currentSession()
	if sess == nil {
		return nil, xerrors.Wrap(types.ErrConnectionLost, "etcd session expired")
	}
	return []clientv3.OpOption{clientv3.WithLease(sess.Lease())}, nil
}

func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := session.Retry(ctx, c.policy, func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		resp, err := c.client.Get(opCtx, path, clientv3.WithCountOnly())
		if err != nil {
			return c.mapError(err)
		}
		exists = resp.Count > 0
		return nil
	})
	return exists, err
}

// CreateWithParent 键不存在时写入；空数据的持久节点视为目录，不写入
func (c *Client) CreateWithParent(ctx context.Context, path string, data []byte, mode types.CreateMode) error {
	if len(data) == 0 && mode == types.Persistent {
		return nil
	}
	return session.Retry(ctx, c.policy, func() error {
		opts, err := c.leaseOption(mode)
		if err != nil {
			return err
		}
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		_, err = c.client.Txn(opCtx).
			If(clientv3.Compare(clientv3.CreateRevision(path), "=", 0)).
			Then(clientv3.OpPut(path, string(data), opts...)).
			Commit()
		return c.mapError(err)
	})
}

func (c *Client) CreateOrUpdate(ctx context.Context, path string, data []byte, mode types.CreateMode) error {
	return session.Retry(ctx, c.policy, func() error {
		opts, err := c.leaseOption(mode)
		if err != nil {
			return err
		}
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		_, err = c.client.Put(opCtx, path, string(data), opts...)
		return c.mapError(err)
	})
}

func (c *Client) SubscribeStatusChange(fn func(types.ConnState)) {
	c.tracker.Subscribe(fn)
}

func (c *Client) WaitForState(ctx context.Context, state types.ConnState, timeout time.Duration) bool {
	return c.tracker.Wait(ctx, state, timeout)
}

// Close 停止后台任务并撤销租约，挂在租约上的临时节点随之删除
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()

		if sess := c.currentSession(); sess != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
			_, revokeErr := c.client.Revoke(ctx, sess.Lease())
			cancel()
			if revokeErr != nil {
				c.logger.Warn("revoke etcd session lease failed", clog.Error(revokeErr))
			}
		}
		if c.owned {
			err = c.conn.Close()
		}
		c.logger.Info("etcd session closed")
	})
	return err
}

// mapError 归类错误，认证失败同时更新会话状态
func (c *Client) mapError(err error) error {
	err = mapError(err)
	if errors.Is(err, types.ErrAuthFailed) {
		c.tracker.Set(types.StateAuthFailed)
	}
	return err
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rpctypes.ErrAuthFailed),
		errors.Is(err, rpctypes.ErrPermissionDenied),
		errors.Is(err, rpctypes.ErrInvalidAuthToken),
		errors.Is(err, rpctypes.ErrAuthOldRevision):
		return fmt.Errorf("etcd: %w: %w", err, types.ErrAuthFailed)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, rpctypes.ErrNoLeader),
		errors.Is(err, rpctypes.ErrTimeout),
		errors.Is(err, rpctypes.ErrLeaseNotFound),
		errors.Is(err, clientv3.ErrNoAvailableEndpoints),
		status.Code(err) == codes.Unavailable:
		return fmt.Errorf("etcd: %w: %w", err, types.ErrConnectionLost)
	default:
		return xerrors.Wrap(err, "etcd")
	}
}
