// Package testutil starts shared backing-store containers for integration
// tests. Each container is started at most once per test binary and reaped
// by testcontainers when the binary exits.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startTimeout is generous for CI environments.
const startTimeout = 3 * time.Minute

type sharedContainer struct {
	once     sync.Once
	endpoint string
	err      error
}

func (c *sharedContainer) get(t *testing.T, name string, start func(ctx context.Context) (string, error)) string {
	t.Helper()

	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", name)
	}

	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		c.endpoint, c.err = start(ctx)
	})

	if c.err != nil {
		t.Skipf("%s container unavailable: %v", name, c.err)
	}
	return c.endpoint
}

var (
	redisC    sharedContainer
	postgresC sharedContainer
	mongoC    sharedContainer
)

// GetRedisAddress returns host:port of a running Redis.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	return redisC.get(t, "redis", func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "redis:7",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		if err != nil {
			return "", err
		}
		return endpoint(ctx, c)
	})
}

// GetPostgresDSN returns a DSN for a running PostgreSQL database.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	return postgresC.get(t, "postgres", func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					wait.ForLog("ready to accept connections"),
					// Verify SQL connectivity using the mapped host:port.
					wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
						return fmt.Sprintf("postgres://flowgate:flowgate@%s:%s/flowgate_test?sslmode=disable", host, port.Port())
					}).WithQuery("SELECT 1"),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "flowgate",
				"POSTGRES_PASSWORD": "flowgate",
				"POSTGRES_DB":       "flowgate_test",
			}),
		)
		if err != nil {
			return "", err
		}
		ep, err := endpoint(ctx, c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("postgres://flowgate:flowgate@%s/flowgate_test?sslmode=disable", ep), nil
	})
}

// GetMongoURI returns a connection URI for a running MongoDB.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	return mongoC.get(t, "mongo", func(ctx context.Context) (string, error) {
		c, err := testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("Waiting for connections"),
			),
		)
		if err != nil {
			return "", err
		}
		ep, err := endpoint(ctx, c)
		if err != nil {
			return "", err
		}
		return "mongodb://" + ep, nil
	})
}

func endpoint(ctx context.Context, c testcontainers.Container) (string, error) {
	ep, err := c.Endpoint(ctx, "")
	if err != nil {
		_ = c.Terminate(context.Background()) // best-effort cleanup
		return "", err
	}
	return ep, nil
}
