package etcd

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/testkit"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"认证失败", rpctypes.ErrAuthFailed, types.ErrAuthFailed},
		{"权限不足", rpctypes.ErrPermissionDenied, types.ErrAuthFailed},
		{"没有 leader", rpctypes.ErrNoLeader, types.ErrConnectionLost},
		{"租约不存在", rpctypes.ErrLeaseNotFound, types.ErrConnectionLost},
		{"超时", context.DeadlineExceeded, types.ErrConnectionLost},
		{"不可用", status.Error(codes.Unavailable, "connection refused"), types.ErrConnectionLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, mapError(nil))
	err := mapError(rpctypes.ErrCompacted)
	assert.NotErrorIs(t, err, types.ErrConnectionLost)
	assert.NotErrorIs(t, err, types.ErrAuthFailed)
}

func TestLeaseTTL(t *testing.T) {
	assert.Equal(t, int64(1), leaseTTL(0))
	assert.Equal(t, int64(1), leaseTTL(200*time.Millisecond))
	assert.Equal(t, int64(3), leaseTTL(3*time.Second))
	assert.Equal(t, int64(4), leaseTTL(3500*time.Millisecond))
}

func TestClient_Integration(t *testing.T) {
	conn := testkit.GetEtcdConnector(t)
	ctx := testkit.NewContext(t, 20*time.Second)
	raw := conn.GetClient()
	prefix := fmt.Sprintf("/shenyu-test-%s", testkit.NewID())
	t.Cleanup(func() {
		_, _ = raw.Delete(context.Background(), prefix, clientv3.WithPrefix())
	})

	c, err := New(ctx, conn, types.SessionOptions{
		SessionTimeout:    5 * time.Second,
		ConnectionTimeout: 3 * time.Second,
		OperatingTimeout:  50 * time.Millisecond,
		MaxRetry:          2,
		Logger:            testkit.NewLogger(),
	})
	require.NoError(t, err)

	uri := prefix + "/register/uri/http/order/127.0.0.1:8080"
	meta := prefix + "/register/metadata/http/order/order.find"

	t.Run("目录节点不写入", func(t *testing.T) {
		require.NoError(t, c.CreateWithParent(ctx, prefix+"/register/uri/http/order", nil, types.Persistent))
		ok, err := c.Exists(ctx, prefix+"/register/uri/http/order")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("临时节点挂在会话租约上", func(t *testing.T) {
		require.NoError(t, c.CreateWithParent(ctx, uri, []byte("v1"), types.Ephemeral))
		resp, err := raw.Get(ctx, uri)
		require.NoError(t, err)
		require.Len(t, resp.Kvs, 1)
		assert.Equal(t, "v1", string(resp.Kvs[0].Value))
		assert.Equal(t, int64(c.currentSession().Lease()), resp.Kvs[0].Lease)
	})

	t.Run("已存在时不覆盖", func(t *testing.T) {
		require.NoError(t, c.CreateWithParent(ctx, uri, []byte("v2"), types.Ephemeral))
		resp, err := raw.Get(ctx, uri)
		require.NoError(t, err)
		assert.Equal(t, "v1", string(resp.Kvs[0].Value))
	})

	t.Run("持久节点覆盖写入", func(t *testing.T) {
		require.NoError(t, c.CreateOrUpdate(ctx, meta, []byte("a"), types.Persistent))
		require.NoError(t, c.CreateOrUpdate(ctx, meta, []byte("b"), types.Persistent))
		resp, err := raw.Get(ctx, meta)
		require.NoError(t, err)
		assert.Equal(t, "b", string(resp.Kvs[0].Value))
		assert.Zero(t, resp.Kvs[0].Lease)
	})

	t.Run("租约被撤销后重建会话", func(t *testing.T) {
		var states []types.ConnState
		ch := make(chan types.ConnState, 8)
		c.SubscribeStatusChange(func(s types.ConnState) { ch <- s })

		old := c.currentSession().Lease()
		_, err := raw.Revoke(ctx, old)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			sess := c.currentSession()
			return sess != nil && sess.Lease() != old
		}, 15*time.Second, 100*time.Millisecond)

		for len(ch) > 0 {
			states = append(states, <-ch)
		}
		assert.Contains(t, states, types.StateExpired)
		assert.Equal(t, types.StateSyncConnected, c.tracker.State())

		ok, err := c.Exists(ctx, uri)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("关闭时撤销租约", func(t *testing.T) {
		require.NoError(t, c.CreateOrUpdate(ctx, uri, []byte("v3"), types.Ephemeral))
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())

		resp, err := raw.Get(ctx, uri)
		require.NoError(t, err)
		assert.Empty(t, resp.Kvs)
	})
}
