package redis

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/testkit"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(io.EOF), types.ErrConnectionLost)
	assert.ErrorIs(t, mapError(context.DeadlineExceeded), types.ErrConnectionLost)

	err := mapError(errors.New("unexpected reply"))
	assert.NotErrorIs(t, err, types.ErrConnectionLost)
	assert.NotErrorIs(t, err, types.ErrAuthFailed)
}

func TestClient_Integration(t *testing.T) {
	conn := testkit.GetRedisConnector(t)
	ctx := testkit.NewContext(t, 10*time.Second)
	ns := "shenyu-test-" + testkit.NewID()
	c := New(conn, ns, testkit.NewLogger())
	raw := conn.GetClient()

	metaKey := "/" + ns + "/register/metadata/http/order/order.find"
	t.Cleanup(func() {
		_ = raw.Del(context.Background(), metaKey, c.serviceKey("order-1"), c.servicesKey("order")).Err()
	})

	t.Run("写入元数据", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, metaKey, []byte(`{"rpcType":"http"}`)))
		got, err := raw.Get(ctx, metaKey).Result()
		require.NoError(t, err)
		assert.JSONEq(t, `{"rpcType":"http"}`, got)
	})

	svc := &types.ServiceDescriptor{
		ID:      "order-1",
		Name:    "order",
		Tags:    []string{"v1", "gray"},
		Port:    8080,
		Address: "10.0.0.5",
		Meta:    map[string]string{"uri": `{"host":"10.0.0.5"}`, "old": "x"},
	}

	t.Run("注册服务", func(t *testing.T) {
		require.NoError(t, c.RegisterService(ctx, svc))

		fields, err := raw.HGetAll(ctx, c.serviceKey("order-1")).Result()
		require.NoError(t, err)
		assert.Equal(t, "order", fields[FieldName])
		assert.Equal(t, "8080", fields[FieldPort])
		assert.Equal(t, "v1,gray", fields[FieldTags])
		assert.Equal(t, `{"host":"10.0.0.5"}`, fields[FieldMetaPrefix+"uri"])

		members, err := raw.SMembers(ctx, c.servicesKey("order")).Result()
		require.NoError(t, err)
		assert.Equal(t, []string{"order-1"}, members)
	})

	t.Run("重新注册替换全部字段", func(t *testing.T) {
		delete(svc.Meta, "old")
		require.NoError(t, c.RegisterService(ctx, svc))
		fields, err := raw.HGetAll(ctx, c.serviceKey("order-1")).Result()
		require.NoError(t, err)
		assert.NotContains(t, fields, FieldMetaPrefix+"old")
	})

	t.Run("注销服务", func(t *testing.T) {
		require.NoError(t, c.DeregisterService(ctx, "order-1"))
		n, err := raw.Exists(ctx, c.serviceKey("order-1")).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
		ok, err := raw.SIsMember(ctx, c.servicesKey("order"), "order-1").Result()
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, c.DeregisterService(ctx, "order-1"))
	})

	assert.NoError(t, c.Close())
}
