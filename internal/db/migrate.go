package db

import (
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	// Blank imports register the postgres driver and file source.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunSQLMigrations applies the versioned SQL migrations under dir against the
// postgres DSN. AutoMigrate covers dev and tests; production schema changes go
// through these files.
func RunSQLMigrations(dsn, dir string) error {
	dsn = NormalizeDSN(dsn)
	if dsn == "" {
		return fmt.Errorf("database DSN is empty")
	}
	if isSQLite(dsn) {
		return fmt.Errorf("sql migrations target postgres, got a sqlite DSN")
	}
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
