//go:build integration

package testutil

import (
	"context"
	"database/sql"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"newsletter-go/internal/app"
	"newsletter-go/internal/config"
	"newsletter-go/internal/database"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/telemetry"
)

var ginModeOnce sync.Once

// TestApp is one running server backed by its own freshly provisioned database.
type TestApp struct {
	Address     string
	DB          *sql.DB
	Maintenance *sql.DB
	Settings    config.Settings
	Recorder    *telemetry.TestSpanRecorder
	Application *app.Application
}

// InitTestLogging sets up the shared log sink once per test binary: info logs
// on stdout when TEST_LOG is set, otherwise debug logs thrown away.
func InitTestLogging() *logging.ContextLogger {
	if os.Getenv("TEST_LOG") != "" {
		return telemetry.Init("newsletter-test", "info", os.Stdout)
	}
	return telemetry.Init("newsletter-test", "debug", io.Discard)
}

func configDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configuration")
}

// LoadSettings resolves the local configuration and points its database
// settings at the shared test server.
func LoadSettings(t *testing.T) config.Settings {
	t.Helper()

	settings, err := config.LoadFrom(configDir(), "local")
	require.NoError(t, err, "failed to read configuration")

	settings.Database.Backend = config.BackendPostgres
	settings.Database = databaseServer(t, settings.Database)
	return *settings
}

// OpenMaintenance connects to the maintenance database of the shared server
// and closes the connection when the test ends.
func OpenMaintenance(t *testing.T, settings config.Database) *sql.DB {
	t.Helper()

	maintenance, err := database.OpenMaintenance(context.Background(), settings)
	require.NoError(t, err, "failed to connect to maintenance database")
	t.Cleanup(func() { _ = maintenance.Close() })
	return maintenance
}

// SpawnApp binds an OS-assigned port, provisions a uniquely named database,
// and serves the application on it in the background. Server shutdown, pool
// close and database drop are registered with t.Cleanup, so they run however
// the test ends.
func SpawnApp(t *testing.T) *TestApp {
	t.Helper()

	logger := InitTestLogging()
	ginModeOnce.Do(func() { gin.SetMode(gin.TestMode) })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to bind random port")
	t.Cleanup(func() { _ = listener.Close() })

	settings := LoadSettings(t)
	settings.Database.DatabaseName = uuid.NewString()

	maintenance := OpenMaintenance(t, settings.Database)

	ctx := context.Background()
	pool, err := database.Provision(ctx, maintenance, settings.Database)
	if err != nil {
		t.Fatalf("failed to provision test database %s: %v", settings.Database.DatabaseName, err)
	}
	t.Cleanup(func() {
		_ = pool.Close()
		if err := database.Deprovision(context.Background(), maintenance, settings.Database.DatabaseName); err != nil {
			t.Errorf("failed to drop test database: %v", err)
		}
	})

	recorder := telemetry.NewTestSpanRecorder()
	tp := telemetry.NewTestTracerProvider("test-newsletter", recorder)

	application := app.Build(&app.Config{
		ServiceName:    "test-newsletter",
		ServiceVersion: "1.0.0",
		Logger:         logger,
		TracerProvider: tp,
		Repository:     repository.NewPostgresSubscriberRepository(pool, settings.Database.QueryTimeout, tp),
	})

	go func() {
		if err := application.Run(listener); err != nil {
			logger.WithError(err).Error("test server stopped")
		}
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
	})

	return &TestApp{
		Address:     "http://" + listener.Addr().String(),
		DB:          pool,
		Maintenance: maintenance,
		Settings:    settings,
		Recorder:    recorder,
		Application: application,
	}
}

// PostSubscriptions sends body as a form-encoded POST /subscribe.
func (a *TestApp) PostSubscriptions(body string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, a.Address+"/subscribe", strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return http.DefaultClient.Do(req)
}

// SavedSubscriptions reads every stored row straight from the pool.
func (a *TestApp) SavedSubscriptions(t *testing.T) []models.Subscriber {
	t.Helper()

	rows, err := a.DB.QueryContext(context.Background(),
		`SELECT id, email, name, subscribed_at FROM subscriptions ORDER BY subscribed_at, id`)
	require.NoError(t, err, "failed to fetch saved subscriptions")
	defer rows.Close()

	var saved []models.Subscriber
	for rows.Next() {
		var s models.Subscriber
		require.NoError(t, rows.Scan(&s.ID, &s.Email, &s.Name, &s.SubscribedAt))
		saved = append(saved, s)
	}
	require.NoError(t, rows.Err())
	return saved
}
