package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/testkit"
)

var errConsulDown = fmt.Errorf("consul: dial tcp: %w", types.ErrConnectionLost)

func kvProps() map[string]string {
	return map[string]string{
		PropID:                "order_1",
		PropName:              "order service",
		PropTags:              "v1, gray ,",
		PropPort:              "8080",
		PropHostname:          "10.0.0.5",
		PropEnableTagOverride: "true",
	}
}

func newKVForTest(t *testing.T, kind Kind, props map[string]string) (Registrar, *fakeKV) {
	t.Helper()
	fake := newFakeKV()
	kit := testkit.NewKit(t)

	r, err := New(kind, WithLogger(kit.Logger), WithKVDialer(fake.dialer()))
	require.NoError(t, err)
	err = r.Init(context.Background(), &Config{ServerLists: []string{"consul:8500"}, Props: props})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, fake
}

func TestKVRegistrar_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		props   map[string]string
		wantErr error
		msg     string
	}{
		{name: "缺少 id", props: map[string]string{PropPort: "8080"}, wantErr: ErrConfig},
		{name: "缺少 port", props: map[string]string{PropID: "svc"}, wantErr: ErrConfig, msg: "Port can not be null."},
		{name: "port 非数字", props: map[string]string{PropID: "svc", PropPort: "http"}, wantErr: ErrConfig},
		{name: "port 越界", props: map[string]string{PropID: "svc", PropPort: "70000"}, wantErr: ErrConfig},
		{name: "id 无法规范化", props: map[string]string{PropID: "1svc", PropPort: "8080"}, wantErr: ErrValidation},
		{name: "name 无法规范化", props: map[string]string{PropID: "svc", PropName: "svc_", PropPort: "8080"}, wantErr: ErrValidation},
		{name: "enable_tag_override 非布尔", props: map[string]string{PropID: "svc", PropPort: "8080", PropEnableTagOverride: "maybe"}, wantErr: ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeKV()
			r, err := New(KindConsul, WithKVDialer(fake.dialer()))
			require.NoError(t, err)

			err = r.Init(context.Background(), &Config{ServerLists: []string{"consul:8500"}, Props: tt.props})
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
			assert.ErrorIs(t, r.PersistURI(context.Background(), uriRecord(8080)), ErrNotInitialized)
		})
	}
}

func TestKVRegistrar_Descriptor(t *testing.T) {
	r, fake := newKVForTest(t, KindConsul, kvProps())
	ctx := context.Background()

	assert.Equal(t, "shenyu", fake.dialOpts.Namespace)

	require.NoError(t, r.PersistURI(ctx, uriRecord(8080)))
	svc, ok := fake.service("order-1")
	require.True(t, ok)
	assert.Equal(t, "order-service", svc.Name)
	assert.Equal(t, []string{"v1", "gray"}, svc.Tags)
	assert.Equal(t, 8080, svc.Port)
	assert.Equal(t, "10.0.0.5", svc.Address)
	assert.True(t, svc.EnableTagOverride)

	var uri URIRecord
	require.NoError(t, json.Unmarshal([]byte(svc.Meta[MetaKeyURI]), &uri))
	assert.Equal(t, "10.0.0.5", uri.Host)
	assert.Equal(t, 8080, uri.Port)

	t.Run("name 缺省时使用 id", func(t *testing.T) {
		props := map[string]string{PropID: "pay", PropPort: "9000"}
		r, fake := newKVForTest(t, KindRedis, props)
		require.NoError(t, r.PersistURI(ctx, uriRecord(9000)))
		svc, ok := fake.service("pay")
		require.True(t, ok)
		assert.Equal(t, "pay", svc.Name)
		assert.Equal(t, defaultHostname, svc.Address)
	})
}

func TestKVRegistrar_PersistInterface(t *testing.T) {
	r, fake := newKVForTest(t, KindConsul, kvProps())
	ctx := context.Background()

	rec := &MetaDataRecord{RPCType: RPCTypeDubbo, ContextPath: "/dubbo", ServiceName: "org.demo.Order", MethodName: "find"}
	require.NoError(t, r.PersistInterface(ctx, rec))

	data, ok := fake.get("/shenyu/register/metadata/dubbo/dubbo/org.demo.Order.find")
	require.True(t, ok)
	assert.Contains(t, string(data), `"serviceName":"org.demo.Order"`)
	assert.Equal(t, 0, fake.registerCount())
}

func TestKVRegistrar_CircuitBreaker(t *testing.T) {
	old := breakerOpenTimeout
	breakerOpenTimeout = 100 * time.Millisecond
	t.Cleanup(func() { breakerOpenTimeout = old })

	r, fake := newKVForTest(t, KindConsul, kvProps())
	ctx := context.Background()

	fake.setErr(errConsulDown)
	for i := 0; i < breakerFailures; i++ {
		rec := &MetaDataRecord{RPCType: RPCTypeGRPC, ContextPath: "/echo", ServiceName: "echo.Echo", MethodName: fmt.Sprintf("m%d", i)}
		require.NoError(t, r.PersistInterface(ctx, rec))
	}

	h := r.Health()
	assert.False(t, h.Healthy)
	assert.Equal(t, HealthKindDisconnected, h.Kind)
	assert.Equal(t, ReasonCircuitOpen, h.Reason)

	t.Run("熔断期间写入被延后", func(t *testing.T) {
		require.NoError(t, r.PersistURI(ctx, uriRecord(8080)))
		assert.Equal(t, 0, fake.registerCount())
	})

	t.Run("恢复后补写延后的写入", func(t *testing.T) {
		fake.setErr(nil)
		require.Eventually(t, func() bool {
			_, ok := fake.service("order-1")
			return ok && r.Health().Healthy
		}, 3*time.Second, 20*time.Millisecond)

		for i := 0; i < breakerFailures; i++ {
			_, ok := fake.get(fmt.Sprintf("/shenyu/register/metadata/grpc/echo/echo.Echo.m%d", i))
			assert.True(t, ok, "metadata m%d", i)
		}
		assert.Equal(t, 1, fake.registerCount())
	})
}

func TestKVRegistrar_FlushDoesNotOverwriteNewerWrite(t *testing.T) {
	old := breakerOpenTimeout
	breakerOpenTimeout = 100 * time.Millisecond
	t.Cleanup(func() { breakerOpenTimeout = old })

	r, fake := newKVForTest(t, KindConsul, kvProps())
	ctx := context.Background()
	key := "/shenyu/register/metadata/grpc/echo/echo.Echo.call"
	rec := &MetaDataRecord{RPCType: RPCTypeGRPC, ContextPath: "/echo", ServiceName: "echo.Echo", MethodName: "call", PathDesc: "v1"}

	fake.setErr(errConsulDown)
	for i := 0; i < breakerFailures; i++ {
		require.NoError(t, r.PersistInterface(ctx, rec))
	}
	require.False(t, r.Health().Healthy)

	entered, release := fake.blockNextPut()
	fake.setErr(nil)
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("pending metadata was not flushed")
	}

	done := make(chan error, 1)
	go func() {
		v2 := *rec
		v2.PathDesc = "v2"
		done <- r.PersistInterface(ctx, &v2)
	}()

	time.Sleep(50 * time.Millisecond)
	release()
	require.NoError(t, <-done)

	data, ok := fake.get(key)
	require.True(t, ok)
	assert.Contains(t, string(data), `"pathDesc":"v2"`)

	time.Sleep(3 * breakerOpenTimeout)
	data, _ = fake.get(key)
	assert.Contains(t, string(data), `"pathDesc":"v2"`)
	assert.True(t, r.Health().Healthy)
}

func TestKVRegistrar_NonConnectionError(t *testing.T) {
	r, fake := newKVForTest(t, KindRedis, kvProps())
	ctx := context.Background()

	fake.setErr(fmt.Errorf("redis: WRONGTYPE Operation against a key holding the wrong kind of value"))
	for i := 0; i < breakerFailures+1; i++ {
		err := r.PersistURI(ctx, uriRecord(8080))
		require.Error(t, err)
		assert.NotErrorIs(t, err, types.ErrConnectionLost)
	}
	assert.True(t, r.Health().Healthy)
}

func TestKVRegistrar_Close(t *testing.T) {
	r, fake := newKVForTest(t, KindConsul, kvProps())

	require.NoError(t, r.PersistURI(context.Background(), uriRecord(8080)))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"order-1"}, fake.deregistered)
	assert.Equal(t, 1, fake.closes)
	assert.Empty(t, fake.services)
}
