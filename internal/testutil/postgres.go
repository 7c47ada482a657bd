//go:build integration

package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"newsletter-go/internal/config"
)

var (
	serverOnce     sync.Once
	serverSettings config.Database
	serverErr      error
)

// databaseServer returns settings for the Postgres server every test in the
// process shares. Tests only ever share the server, never a database on it.
// TEST_DATABASE_EXTERNAL=true uses the configured server instead of a container.
func databaseServer(t *testing.T, base config.Database) config.Database {
	t.Helper()

	if os.Getenv("TEST_DATABASE_EXTERNAL") == "true" {
		return base
	}

	serverOnce.Do(func() {
		serverSettings, serverErr = startPostgres(base)
	})
	if serverErr != nil {
		t.Fatalf("failed to start postgres container: %v", serverErr)
	}

	settings := base
	settings.Host = serverSettings.Host
	settings.Port = serverSettings.Port
	settings.Username = serverSettings.Username
	settings.Password = serverSettings.Password
	settings.RequireSSL = false
	return settings
}

// startPostgres runs one container for the whole test binary. It is not
// terminated here; the testcontainers reaper removes it when the process exits.
func startPostgres(base config.Database) (config.Database, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase(base.DatabaseName),
		tcpostgres.WithUsername(base.Username),
		tcpostgres.WithPassword(base.Password),
		testcontainers.WithEnv(map[string]string{"TZ": "UTC"}),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return config.Database{}, err
	}

	dsn, err := container.ConnectionString(ctx)
	if err != nil {
		return config.Database{}, fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return config.Database{}, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return config.Database{}, fmt.Errorf("failed to parse postgres port: %w", err)
	}

	settings := base
	settings.Host = u.Hostname()
	settings.Port = port
	return settings, nil
}
