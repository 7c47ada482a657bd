package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	dapr "github.com/dapr/go-sdk/client"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/app"
	"newsletter-go/internal/config"
	"newsletter-go/internal/database"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/telemetry"
)

func main() {
	// Deferred first so it runs after every other deferred cleanup.
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	migrateOnly := flag.Bool("migrate", false, "apply pending database migrations and exit")
	flag.Parse()

	settings, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := telemetry.Init(settings.Application.ServiceName, settings.Application.LogLevel, os.Stdout)

	if *migrateOnly {
		if err := database.Migrate(settings.Database); err != nil {
			logger.WithError(err).Fatal("Failed to apply migrations")
		}
		logger.WithField("database", settings.Database.DatabaseName).Info("Migrations applied")
		return
	}

	tp, err := telemetry.InitTracing(settings.Application.ServiceName, settings.Application.ServiceVersion, os.Stdout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}
	defer func() {
		if err := telemetry.ShutdownTracing(context.Background(), tp); err != nil {
			logger.WithError(err).Error("Error shutting down tracer provider")
		}
	}()

	repo, closeRepo, err := buildRepository(context.Background(), settings, tp, logger)
	if err != nil {
		logger.WithError(err).WithField("backend", settings.Database.Backend).Error("Failed to set up subscriber storage")
		exitCode = 1
		return
	}
	defer closeRepo()

	listener, err := net.Listen("tcp", settings.Address())
	if err != nil {
		logger.WithError(err).WithField("address", settings.Address()).Error("Failed to bind address")
		exitCode = 1
		return
	}

	application := app.Build(&app.Config{
		ServiceName:    settings.Application.ServiceName,
		ServiceVersion: settings.Application.ServiceVersion,
		Logger:         logger,
		TracerProvider: tp,
		GinMode:        settings.Application.GinMode,
		Repository:     repo,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if err := serve(application, listener, quit, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		exitCode = 1
		return
	}

	logger.Info("Server exited")
}

const shutdownTimeout = 30 * time.Second

// serve runs application until it stops on its own or a signal arrives on
// quit, in which case it is shut down gracefully.
func serve(application *app.Application, listener net.Listener, quit <-chan os.Signal, logger *logging.ContextLogger) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- application.Run(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// buildRepository picks the storage backend named in the configuration. The
// returned func releases whatever the backend holds open.
func buildRepository(ctx context.Context, settings *config.Settings, tp trace.TracerProvider, logger *logging.ContextLogger) (repository.SubscriberRepository, func(), error) {
	switch settings.Database.Backend {
	case config.BackendMemory:
		logger.Warn("Using in-memory subscriber storage; data is lost on restart")
		return repository.NewInMemorySubscriberRepository(tp), func() {}, nil

	case config.BackendDapr:
		client, err := dapr.NewClient()
		if err != nil {
			return nil, nil, err
		}
		return repository.NewDaprSubscriberRepository(client, settings.Database.DaprStore, tp), client.Close, nil

	default:
		db, err := database.Open(ctx, settings.Database)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				logger.WithError(err).Error("Error closing database pool")
			}
		}
		return repository.NewPostgresSubscriberRepository(db, settings.Database.QueryTimeout, tp), closeDB, nil
	}
}
