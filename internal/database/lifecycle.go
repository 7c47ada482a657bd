package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"newsletter-go/internal/config"
)

// ErrProtectedDatabase is returned when asked to drop a database the server
// or the maintenance connection depends on.
var ErrProtectedDatabase = errors.New("refusing to drop protected database")

var protectedDatabases = map[string]bool{
	config.MaintenanceDatabase: true,
	"template0":                true,
	"template1":                true,
}

// Provision creates settings.DatabaseName through the maintenance connection,
// migrates it and returns a pool bound to it. A database that was created but
// could not be migrated or opened is dropped again before returning the error.
func Provision(ctx context.Context, maintenance *sql.DB, settings config.Database) (*sql.DB, error) {
	name := settings.DatabaseName
	if protectedDatabases[name] {
		return nil, fmt.Errorf("%w: %s", ErrProtectedDatabase, name)
	}

	if _, err := maintenance.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		return nil, fmt.Errorf("failed to create database %s: %w", name, err)
	}

	if err := Migrate(settings); err != nil {
		return nil, rollback(ctx, maintenance, name, err)
	}

	db, err := Open(ctx, settings)
	if err != nil {
		return nil, rollback(ctx, maintenance, name, err)
	}
	return db, nil
}

// rollback drops a half-provisioned database even when ctx is already done,
// since an expired ctx is often what made provisioning fail.
func rollback(ctx context.Context, maintenance *sql.DB, name string, cause error) error {
	return errors.Join(cause, Deprovision(context.WithoutCancel(ctx), maintenance, name))
}

// Deprovision drops name, terminating any sessions still attached to it.
// Dropping a database that no longer exists is not an error.
func Deprovision(ctx context.Context, maintenance *sql.DB, name string) error {
	if protectedDatabases[name] {
		return fmt.Errorf("%w: %s", ErrProtectedDatabase, name)
	}
	if _, err := maintenance.ExecContext(ctx, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(name)+" WITH (FORCE)"); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", name, err)
	}
	return nil
}

// WithEphemeral provisions settings.DatabaseName, hands its pool to fn and
// always closes the pool and drops the database afterwards, whatever fn returns.
func WithEphemeral(ctx context.Context, maintenance *sql.DB, settings config.Database, fn func(db *sql.DB) error) (err error) {
	db, err := Provision(ctx, maintenance, settings)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close()
		dropErr := Deprovision(context.WithoutCancel(ctx), maintenance, settings.DatabaseName)
		err = errors.Join(err, closeErr, dropErr)
	}()

	return fn(db)
}

// ListDatabases returns the names of all non-template databases on the server.
func ListDatabases(ctx context.Context, maintenance *sql.DB) ([]string, error) {
	rows, err := maintenance.QueryContext(ctx, `SELECT datname FROM pg_database WHERE NOT datistemplate ORDER BY datname`)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
