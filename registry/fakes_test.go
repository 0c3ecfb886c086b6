package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ceyewan/shenyu-register/registry/types"
)

type fakeNode struct {
	data []byte
	mode types.CreateMode
}

type createCall struct {
	path string
	data []byte
	mode types.CreateMode
}

// fakeSession 内存中的层级注册中心，模拟会话与临时节点
type fakeSession struct {
	mu       sync.Mutex
	nodes    map[string]fakeNode
	subs     []func(types.ConnState)
	state    types.ConnState
	changed  chan struct{}
	writeErr error
	creates  []createCall
	upserts  []createCall
	closes   int
	dialOpts types.SessionOptions
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		nodes:   make(map[string]fakeNode),
		state:   types.StateSyncConnected,
		changed: make(chan struct{}),
	}
}

func (f *fakeSession) dialer() types.SessionDialer {
	return func(_ context.Context, opts types.SessionOptions) (types.SessionClient, error) {
		f.mu.Lock()
		f.dialOpts = opts
		f.mu.Unlock()
		return f, nil
	}
}

func (f *fakeSession) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[path]
	return ok, nil
}

func (f *fakeSession) CreateWithParent(_ context.Context, path string, data []byte, mode types.CreateMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, createCall{path: path, data: data, mode: mode})
	if f.writeErr != nil {
		return f.writeErr
	}
	f.ensureParentsLocked(path)
	if _, ok := f.nodes[path]; !ok {
		f.nodes[path] = fakeNode{data: data, mode: mode}
	}
	return nil
}

func (f *fakeSession) CreateOrUpdate(_ context.Context, path string, data []byte, mode types.CreateMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.upserts = append(f.upserts, createCall{path: path, data: data, mode: mode})
	f.ensureParentsLocked(path)
	if n, ok := f.nodes[path]; ok {
		n.data = data
		f.nodes[path] = n
		return nil
	}
	f.nodes[path] = fakeNode{data: data, mode: mode}
	return nil
}

func (f *fakeSession) ensureParentsLocked(path string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, p := range parts[:len(parts)-1] {
		cur += "/" + p
		if _, ok := f.nodes[cur]; !ok {
			f.nodes[cur] = fakeNode{mode: types.Persistent}
		}
	}
}

func (f *fakeSession) SubscribeStatusChange(fn func(types.ConnState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

func (f *fakeSession) WaitForState(ctx context.Context, state types.ConnState, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		f.mu.Lock()
		if f.state == state {
			f.mu.Unlock()
			return true
		}
		ch := f.changed
		f.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// emit 切换状态并在调用方 goroutine 上通知订阅者，模拟客户端事件线程
func (f *fakeSession) emit(state types.ConnState) {
	f.mu.Lock()
	f.state = state
	close(f.changed)
	f.changed = make(chan struct{})
	subs := append([]func(types.ConnState){}, f.subs...)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// expire 模拟会话过期：删除所有临时节点
func (f *fakeSession) expire() {
	f.mu.Lock()
	for path, n := range f.nodes {
		if n.mode == types.Ephemeral {
			delete(f.nodes, path)
		}
	}
	f.mu.Unlock()
	f.emit(types.StateExpired)
}

func (f *fakeSession) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeSession) node(path string) (fakeNode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[path]
	return n, ok
}

func (f *fakeSession) children(parent string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	prefix := parent + "/"
	for path := range f.nodes {
		if strings.HasPrefix(path, prefix) && !strings.Contains(path[len(prefix):], "/") {
			out = append(out, path[len(prefix):])
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeSession) resetCreates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = nil
	f.upserts = nil
}

func (f *fakeSession) createCalls() []createCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createCall(nil), f.creates...)
}

func (f *fakeSession) upsertCalls() []createCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createCall(nil), f.upserts...)
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeKV 内存中的键值注册中心
type fakeKV struct {
	mu           sync.Mutex
	kv           map[string][]byte
	services     map[string]types.ServiceDescriptor
	registers    int
	deregistered []string
	closes       int
	err          error
	dialOpts     types.KVOptions

	// 非 nil 时下一次 Put 先通知 putEntered，再阻塞到 putGate 关闭
	putGate    chan struct{}
	putEntered chan struct{}
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		kv:       make(map[string][]byte),
		services: make(map[string]types.ServiceDescriptor),
	}
}

func (f *fakeKV) dialer() types.KVDialer {
	return func(_ context.Context, opts types.KVOptions) (types.KVClient, error) {
		f.mu.Lock()
		f.dialOpts = opts
		f.mu.Unlock()
		return f, nil
	}
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	gate, entered := f.putGate, f.putEntered
	f.putGate, f.putEntered = nil, nil
	f.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.kv[key] = value
	return nil
}

func (f *fakeKV) RegisterService(_ context.Context, svc *types.ServiceDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.registers++
	f.services[svc.ID] = *svc
	return nil
}

func (f *fakeKV) DeregisterService(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, id)
	delete(f.services, id)
	return nil
}

func (f *fakeKV) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeKV) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// blockNextPut 让下一次 Put 阻塞，返回进入通知与放行函数
func (f *fakeKV) blockNextPut() (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putGate = make(chan struct{})
	f.putEntered = make(chan struct{})
	gate := f.putGate
	return f.putEntered, func() { close(gate) }
}

func (f *fakeKV) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	return v, ok
}

func (f *fakeKV) service(id string) (types.ServiceDescriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[id]
	return s, ok
}

func (f *fakeKV) registerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers
}
