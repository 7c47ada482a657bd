package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"newsletter-go/internal/config"
)

const driverName = "postgres"

// Open builds a pool for the configured database and verifies it answers
// within the connect timeout.
func Open(ctx context.Context, settings config.Database) (*sql.DB, error) {
	return open(ctx, settings.ConnectionString(), settings)
}

// OpenMaintenance connects to the maintenance database of the configured
// server. It is used only to create and drop whole databases.
func OpenMaintenance(ctx context.Context, settings config.Database) (*sql.DB, error) {
	return open(ctx, settings.WithoutDB(), settings)
}

func open(ctx context.Context, dsn string, settings config.Database) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if settings.MaxOpenConns > 0 {
		db.SetMaxOpenConns(settings.MaxOpenConns)
	}
	if settings.MaxIdleConns > 0 {
		db.SetMaxIdleConns(settings.MaxIdleConns)
	}
	if settings.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(settings.ConnMaxLifetime)
	}

	if settings.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}
