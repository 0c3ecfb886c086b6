package consul

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/testkit"
)

func TestKVKey(t *testing.T) {
	assert.Equal(t, "shenyu/register/metadata/http/order/a", kvKey("/shenyu/register/metadata/http/order/a"))
	assert.Equal(t, "a", kvKey("a"))
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	t.Run("网络错误", func(t *testing.T) {
		err := mapError(&url.Error{Op: "Put", URL: "http://127.0.0.1:8500", Err: errors.New("connection refused")})
		assert.ErrorIs(t, err, types.ErrConnectionLost)
	})

	t.Run("超时", func(t *testing.T) {
		assert.ErrorIs(t, mapError(context.DeadlineExceeded), types.ErrConnectionLost)
	})

	t.Run("状态码", func(t *testing.T) {
		assert.ErrorIs(t, mapError(api.StatusError{Code: 403, Body: "Permission denied"}), types.ErrAuthFailed)
		assert.ErrorIs(t, mapError(api.StatusError{Code: 500, Body: "No cluster leader"}), types.ErrConnectionLost)

		err := mapError(api.StatusError{Code: 400, Body: "bad request"})
		assert.NotErrorIs(t, err, types.ErrConnectionLost)
		assert.NotErrorIs(t, err, types.ErrAuthFailed)
	})
}

func TestClient_Integration(t *testing.T) {
	conn := testkit.GetConsulConnector(t)
	ctx := testkit.NewContext(t, 10*time.Second)
	c := New(conn, testkit.NewLogger())
	raw := conn.GetClient()
	id := "shenyu-test-" + testkit.NewID()
	key := "/shenyu-test/" + id + "/register/metadata/http/order/order.find"

	t.Cleanup(func() {
		_, _ = raw.KV().DeleteTree("shenyu-test/"+id, nil)
		_ = raw.Agent().ServiceDeregister(id)
	})

	t.Run("写入元数据", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, key, []byte(`{"rpcType":"http"}`)))
		pair, _, err := raw.KV().Get(kvKey(key), nil)
		require.NoError(t, err)
		require.NotNil(t, pair)
		assert.JSONEq(t, `{"rpcType":"http"}`, string(pair.Value))
	})

	t.Run("注册与注销服务", func(t *testing.T) {
		svc := &types.ServiceDescriptor{
			ID:      id,
			Name:    "shenyu-test",
			Tags:    []string{"v1"},
			Port:    8080,
			Address: "127.0.0.1",
			Meta:    map[string]string{"uri": `{"host":"127.0.0.1","port":8080}`},
		}
		require.NoError(t, c.RegisterService(ctx, svc))

		services, err := raw.Agent().Services()
		require.NoError(t, err)
		got, ok := services[id]
		require.True(t, ok)
		assert.Equal(t, 8080, got.Port)
		assert.Equal(t, svc.Meta["uri"], got.Meta["uri"])

		require.NoError(t, c.DeregisterService(ctx, id))
		services, err = raw.Agent().Services()
		require.NoError(t, err)
		assert.NotContains(t, services, id)
	})

	assert.NoError(t, c.Close())
}
