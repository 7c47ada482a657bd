package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"newsletter-go/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending forward migration to the configured database.
// It uses its own connection and releases it before returning.
func Migrate(settings config.Database) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, settings.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to initialise migrations for %s: %w", settings.DatabaseName, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate %s: %w", settings.DatabaseName, err)
	}
	return nil
}
