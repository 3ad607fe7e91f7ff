//go:build integration || e2e

// Package testutil provides test helpers for integration and e2e tests.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// testRedisDB is the database the journal integration tests own.
const testRedisDB = 9

// RedisAddr returns the address of the test Redis container (IP:port).
// It first checks SYNAPSE_TEST_REDIS_ADDR, then discovers the Docker container IP.
func RedisAddr() string {
	if addr := os.Getenv("SYNAPSE_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}

	out, err := exec.Command("docker", "inspect",
		"--format", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}",
		"synapse-test-redis").Output()
	if err != nil {
		return ""
	}
	ip := strings.TrimSpace(string(out))
	if ip == "" {
		return ""
	}
	return ip + ":6379"
}

// SkipIfNoRedis skips the test if the test Redis container is not reachable.
func SkipIfNoRedis(t *testing.T) {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("test Redis not available: docker run -d --name synapse-test-redis redis:7")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test Redis not reachable at %s: %v", addr, err)
	}
}

// RedisClient returns a client on the test database, flushed before use
// and closed on cleanup.
func RedisClient(t *testing.T) *redis.Client {
	t.Helper()
	SkipIfNoRedis(t)

	client := redis.NewClient(&redis.Options{Addr: RedisAddr(), DB: testRedisDB})
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush DB %d: %v", testRedisDB, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// Context returns a context with a reasonable timeout for tests.
// The cancel function is registered via t.Cleanup.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// MustEnv returns the value of an environment variable or skips the test.
func MustEnv(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("required environment variable %s not set", key)
	}
	return v
}
