package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shenyu-register/xerrors"
)

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"zookeeper": KindZookeeper,
		"ETCD":      KindEtcd,
		" consul ":  KindConsul,
		"Redis":     KindRedis,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("nacos")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	assert.True(t, KindZookeeper.SessionBound())
	assert.True(t, KindEtcd.SessionBound())
	assert.False(t, KindConsul.SessionBound())
	assert.False(t, KindRedis.SessionBound())
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("nacos"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistrar_Lifecycle(t *testing.T) {
	ctx := context.Background()
	kinds := map[Kind]Option{
		KindZookeeper: WithSessionDialer(newFakeSession().dialer()),
		KindConsul:    WithKVDialer(newFakeKV().dialer()),
	}
	props := map[string]string{PropID: "svc", PropPort: "8080"}

	for kind, dialer := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			r, err := New(kind, dialer)
			require.NoError(t, err)

			t.Run("初始化前", func(t *testing.T) {
				assert.ErrorIs(t, r.PersistURI(ctx, uriRecord(8080)), ErrNotInitialized)
				assert.ErrorIs(t, r.PersistInterface(ctx, &MetaDataRecord{}), ErrNotInitialized)
				assert.False(t, r.Health().Healthy)
				assert.NoError(t, r.Close())
				assert.ErrorIs(t, r.Init(ctx, &Config{ServerLists: []string{"store:1"}, Props: props}), ErrRegistrarClosed)
			})

			r, err = New(kind, dialer)
			require.NoError(t, err)

			t.Run("配置校验", func(t *testing.T) {
				assert.ErrorIs(t, r.Init(ctx, nil), ErrConfig)
				assert.ErrorIs(t, r.Init(ctx, &Config{ServerLists: []string{" "}, Props: props}), ErrConfig)
			})

			require.NoError(t, r.Init(ctx, &Config{ServerLists: []string{"store:1"}, Props: props}))
			defer r.Close()

			t.Run("重复初始化", func(t *testing.T) {
				assert.ErrorIs(t, r.Init(ctx, &Config{ServerLists: []string{"store:1"}, Props: props}), ErrAlreadyInitialized)
			})

			t.Run("nil 记录", func(t *testing.T) {
				assert.ErrorIs(t, r.PersistURI(ctx, nil), ErrInvalidRecord)
				assert.ErrorIs(t, r.PersistInterface(ctx, nil), ErrInvalidRecord)
			})

			t.Run("共享健康状态表", func(t *testing.T) {
				tracker := NewHealthTracker()
				other, err := New(kind, dialer, WithHealthTracker(tracker))
				require.NoError(t, err)
				require.NoError(t, other.Init(ctx, &Config{ServerLists: []string{"store:2"}, Props: props}))
				defer other.Close()

				h, ok := tracker.Get("store:2")
				require.True(t, ok)
				assert.True(t, h.Healthy)
			})
		})
	}
}
