package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrator abstrae golang-migrate para poder testear sin base de datos.
type migrator interface {
	Up() error
	Close() (source error, database error)
}

// Migrate aplica todas las migraciones pendientes sobre databaseURL.
func Migrate(databaseURL string) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	return runUp(m)
}

func newMigrator(databaseURL string) (migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("migration init: %w", err)
	}
	return m, nil
}

func runUp(m migrator) error {
	upErr := m.Up()
	srcErr, dbErr := m.Close()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", upErr)
	}
	if srcErr != nil {
		return fmt.Errorf("migration close source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration close database: %w", dbErr)
	}
	return nil
}

// migrateURL convierte postgres:// al esquema pgx5:// que espera el driver.
func migrateURL(databaseURL string) string {
	if rest, found := strings.CutPrefix(databaseURL, "postgres://"); found {
		return "pgx5://" + rest
	}
	if rest, found := strings.CutPrefix(databaseURL, "postgresql://"); found {
		return "pgx5://" + rest
	}
	return databaseURL
}
