package testkit

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/ceyewan/shenyu-register/connector"
)

// 后端地址，可通过环境变量覆盖
const (
	EnvZookeeper = "SHENYU_TEST_ZOOKEEPER"
	EnvEtcd      = "SHENYU_TEST_ETCD"
	EnvConsul    = "SHENYU_TEST_CONSUL"
	EnvRedis     = "SHENYU_TEST_REDIS"
)

// ZookeeperAddr 默认 localhost:2181
func ZookeeperAddr() string { return addrFromEnv(EnvZookeeper, "localhost:2181") }

// EtcdAddr 默认 localhost:2379
func EtcdAddr() string { return addrFromEnv(EnvEtcd, "localhost:2379") }

// ConsulAddr 默认 localhost:8500
func ConsulAddr() string { return addrFromEnv(EnvConsul, "localhost:8500") }

// RedisAddr 默认 localhost:6379
func RedisAddr() string { return addrFromEnv(EnvRedis, "localhost:6379") }

func addrFromEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// RequireBackend 地址不可达时跳过测试，集成测试在没有本地服务时不报错
func RequireBackend(t *testing.T, name, addr string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", name)
	}
	conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	if err != nil {
		t.Skipf("%s not available at %s: %v", name, addr, err)
	}
	_ = conn.Close()
}

// GetEtcdConnector 获取已连接的 etcd 连接器，不可用时跳过
func GetEtcdConnector(t *testing.T) connector.EtcdConnector {
	t.Helper()
	addr := EtcdAddr()
	RequireBackend(t, "etcd", addr)

	conn, err := connector.NewEtcd(&connector.EtcdConfig{
		Name:        "test-etcd",
		Endpoints:   []string{addr},
		DialTimeout: 3 * time.Second,
	}, connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("failed to create etcd connector: %v", err)
	}
	return connectOrSkip(t, "etcd", conn)
}

// GetRedisConnector 获取已连接的 Redis 连接器，不可用时跳过
func GetRedisConnector(t *testing.T) connector.RedisConnector {
	t.Helper()
	addr := RedisAddr()
	RequireBackend(t, "redis", addr)

	conn, err := connector.NewRedis(&connector.RedisConfig{
		Name: "test-redis",
		Addr: addr,
	}, connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("failed to create redis connector: %v", err)
	}
	return connectOrSkip(t, "redis", conn)
}

// GetConsulConnector 获取已连接的 Consul 连接器，不可用时跳过
func GetConsulConnector(t *testing.T) connector.ConsulConnector {
	t.Helper()
	addr := ConsulAddr()
	RequireBackend(t, "consul", addr)

	conn, err := connector.NewConsul(&connector.ConsulConfig{
		Name:    "test-consul",
		Address: addr,
	}, connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("failed to create consul connector: %v", err)
	}
	return connectOrSkip(t, "consul", conn)
}

func connectOrSkip[C connector.Connector](t *testing.T, name string, conn C) C {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		_ = conn.Close()
		t.Skipf("%s connect failed: %v", name, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
