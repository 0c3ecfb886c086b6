// Package session 提供会话型注册中心适配器共用的状态跟踪与重试。
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/shenyu-register/registry/types"
)

// Tracker 记录会话当前状态，状态变化时通知订阅者
//
// 订阅者在调用 Set 的 goroutine 上同步执行，不能阻塞。
type Tracker struct {
	mu      sync.Mutex
	state   types.ConnState
	changed chan struct{}
	subs    []func(types.ConnState)
}

// NewTracker 以 initial 为初始状态
func NewTracker(initial types.ConnState) *Tracker {
	return &Tracker{
		state:   initial,
		changed: make(chan struct{}),
	}
}

// State 当前状态
func (t *Tracker) State() types.ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe 注册状态回调
func (t *Tracker) Subscribe(fn func(types.ConnState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

// Set 更新状态，与当前状态相同时忽略并返回 false
func (t *Tracker) Set(state types.ConnState) bool {
	t.mu.Lock()
	if t.state == state {
		t.mu.Unlock()
		return false
	}
	t.state = state
	close(t.changed)
	t.changed = make(chan struct{})
	subs := make([]func(types.ConnState), len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
	return true
}

// Wait 阻塞至多 timeout 等待进入 state
func (t *Tracker) Wait(ctx context.Context, state types.ConnState, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		t.mu.Lock()
		if t.state == state {
			t.mu.Unlock()
			return true
		}
		ch := t.changed
		t.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
