package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter-go/internal/config"
)

func newMaintenanceMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// unreachable points at a port nothing listens on so migrations fail fast.
func unreachable(name string) config.Database {
	settings := config.Default().Database
	settings.Host = "127.0.0.1"
	settings.Port = 1
	settings.ConnectTimeout = time.Second
	settings.DatabaseName = name
	return settings
}

func TestProvisionDropsDatabaseWhenMigrationFails(t *testing.T) {
	maintenance, mock := newMaintenanceMock(t)
	name := uuid.NewString()

	mock.ExpectExec(`CREATE DATABASE "` + name + `"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DROP DATABASE IF EXISTS "` + name + `" WITH (FORCE)`).WillReturnResult(sqlmock.NewResult(0, 0))

	db, err := Provision(context.Background(), maintenance, unreachable(name))
	require.Error(t, err)
	assert.Nil(t, db)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackDropsEvenWhenContextIsDone(t *testing.T) {
	maintenance, mock := newMaintenanceMock(t)
	name := uuid.NewString()

	mock.ExpectExec(`DROP DATABASE IF EXISTS "` + name + `" WITH (FORCE)`).WillReturnResult(sqlmock.NewResult(0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cause := errors.New("migration failed")
	err := rollback(ctx, maintenance, name, cause)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionReportsCreateFailure(t *testing.T) {
	maintenance, mock := newMaintenanceMock(t)
	name := uuid.NewString()

	mock.ExpectExec(`CREATE DATABASE "` + name + `"`).WillReturnError(errors.New("permission denied to create database"))

	_, err := Provision(context.Background(), maintenance, unreachable(name))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionQuotesDatabaseName(t *testing.T) {
	maintenance, mock := newMaintenanceMock(t)
	name := `odd"name`

	mock.ExpectExec(`CREATE DATABASE "odd""name"`).WillReturnError(errors.New("stop here"))

	_, err := Provision(context.Background(), maintenance, unreachable(name))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeprovisionIssuesForcedDrop(t *testing.T) {
	maintenance, mock := newMaintenanceMock(t)
	name := uuid.NewString()

	mock.ExpectExec(`DROP DATABASE IF EXISTS "` + name + `" WITH (FORCE)`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Deprovision(context.Background(), maintenance, name))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProtectedDatabasesAreNeverDropped(t *testing.T) {
	maintenance, mock := newMaintenanceMock(t)

	for _, name := range []string{config.MaintenanceDatabase, "template0", "template1"} {
		err := Deprovision(context.Background(), maintenance, name)
		assert.ErrorIs(t, err, ErrProtectedDatabase)

		_, err = Provision(context.Background(), maintenance, unreachable(name))
		assert.ErrorIs(t, err, ErrProtectedDatabase)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithEphemeralSkipsBodyWhenProvisionFails(t *testing.T) {
	maintenance, mock := newMaintenanceMock(t)
	name := uuid.NewString()

	mock.ExpectExec(`CREATE DATABASE "` + name + `"`).WillReturnError(errors.New("disk full"))

	called := false
	err := WithEphemeral(context.Background(), maintenance, unreachable(name), func(*sql.DB) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDatabases(t *testing.T) {
	maintenance, mock := newMaintenanceMock(t)

	mock.ExpectQuery(`SELECT datname FROM pg_database WHERE NOT datistemplate ORDER BY datname`).
		WillReturnRows(sqlmock.NewRows([]string{"datname"}).AddRow("newsletter").AddRow("postgres"))

	names, err := ListDatabases(context.Background(), maintenance)
	require.NoError(t, err)
	assert.Equal(t, []string{"newsletter", "postgres"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}
