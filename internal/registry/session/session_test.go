package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shenyu-register/registry/types"
)

func TestTracker(t *testing.T) {
	tr := NewTracker(types.StateDisconnected)

	var got []types.ConnState
	tr.Subscribe(func(s types.ConnState) { got = append(got, s) })

	t.Run("相同状态不重复通知", func(t *testing.T) {
		assert.True(t, tr.Set(types.StateSyncConnected))
		assert.False(t, tr.Set(types.StateSyncConnected))
		assert.True(t, tr.Set(types.StateExpired))
		assert.Equal(t, []types.ConnState{types.StateSyncConnected, types.StateExpired}, got)
		assert.Equal(t, types.StateExpired, tr.State())
	})

	t.Run("等待状态", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			tr.Set(types.StateSyncConnected)
		}()
		assert.True(t, tr.Wait(context.Background(), types.StateSyncConnected, time.Second))
	})

	t.Run("等待超时", func(t *testing.T) {
		start := time.Now()
		assert.False(t, tr.Wait(context.Background(), types.StateAuthFailed, 30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("上下文取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, tr.Wait(ctx, types.StateAuthFailed, time.Second))
	})
}

func TestRetry(t *testing.T) {
	policy := RetryPolicy{MaxRetry: 3, BaseSleep: time.Millisecond, MaxSleep: 5 * time.Millisecond}

	t.Run("连接中断时重试直到成功", func(t *testing.T) {
		var calls atomic.Int32
		err := Retry(context.Background(), policy, func() error {
			if calls.Add(1) < 3 {
				return types.ErrConnectionLost
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("超过重试次数返回最后的错误", func(t *testing.T) {
		var calls atomic.Int32
		err := Retry(context.Background(), policy, func() error {
			calls.Add(1)
			return types.ErrConnectionLost
		})
		assert.ErrorIs(t, err, types.ErrConnectionLost)
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("其他错误不重试", func(t *testing.T) {
		var calls atomic.Int32
		boom := errors.New("boom")
		err := Retry(context.Background(), policy, func() error {
			calls.Add(1)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("默认间隔", func(t *testing.T) {
		p := PolicyFrom(types.SessionOptions{MaxRetry: 2, OperatingTimeout: time.Second})
		assert.Equal(t, 2, p.MaxRetry)
		assert.Equal(t, time.Second, p.BaseSleep)
	})
}
