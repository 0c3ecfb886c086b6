package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shenyu-register/xerrors"
)

func TestConfigValidate(t *testing.T) {
	t.Run("etcd 缺少 endpoints", func(t *testing.T) {
		_, err := NewEtcd(&EtcdConfig{})
		assert.ErrorIs(t, err, ErrConfig)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})

	t.Run("etcd 默认值", func(t *testing.T) {
		cfg := &EtcdConfig{Endpoints: []string{"a:2379", "b:2379"}}
		require.NoError(t, cfg.validate())
		assert.Equal(t, "a:2379,b:2379", cfg.Name)
		assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	})

	t.Run("redis 缺少地址", func(t *testing.T) {
		_, err := NewRedis(&RedisConfig{})
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("redis db 为负", func(t *testing.T) {
		_, err := NewRedis(&RedisConfig{Addr: "127.0.0.1:6379", DB: -1})
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("consul 非法 scheme", func(t *testing.T) {
		_, err := NewConsul(&ConsulConfig{Address: "127.0.0.1:8500", Scheme: "tcp"})
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("nil 配置", func(t *testing.T) {
		_, err := NewConsul(nil)
		assert.ErrorIs(t, err, ErrConfig)
	})
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	tests := []struct {
		name string
		new  func() (Connector, error)
	}{
		{"consul", func() (Connector, error) {
			return NewConsul(&ConsulConfig{Address: "127.0.0.1:1", WaitTime: 200 * time.Millisecond})
		}},
		{"redis", func() (Connector, error) {
			return NewRedis(&RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
		}},
		{"etcd", func() (Connector, error) {
			return NewEtcd(&EtcdConfig{Endpoints: []string{"127.0.0.1:1"}, DialTimeout: 200 * time.Millisecond})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := tt.new()
			require.NoError(t, err)

			err = conn.Connect(ctx)
			assert.ErrorIs(t, err, ErrConnection)
			assert.False(t, conn.IsHealthy())
			assert.ErrorIs(t, conn.HealthCheck(ctx), ErrHealthCheck)

			assert.NoError(t, conn.Close())
			assert.NoError(t, conn.Close())
		})
	}
}
