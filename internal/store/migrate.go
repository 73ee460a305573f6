package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// Schema version tracking:
// 1 - Versioned entity tables and the commit track
const currentSchemaVersion = 1

// Migrate applies every pending embedded migration for the store's backend.
// Running it against an up-to-date database is a no-op.
func (s *Store) Migrate() error {
	return s.withMigrator(func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// SchemaVersion reports the applied migration version and whether the last
// migration left the schema dirty.
func (s *Store) SchemaVersion() (version uint, dirty bool, err error) {
	err = s.withMigrator(func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		if verr != nil {
			return fmt.Errorf("read schema version: %w", verr)
		}
		return nil
	})
	return version, dirty, err
}

// withMigrator runs fn against a migrator on a dedicated connection pool.
// The migrate drivers pin a connection and close their *sql.DB on Close, so
// they never share the store's pool.
func (s *Store) withMigrator(fn func(m *migrate.Migrate) error) error {
	dir := "migrations/sqlite"
	if s.backend == BackendPostgres {
		dir = "migrations/postgres"
	}
	src, err := iofs.New(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	db, err := sql.Open(s.backend.driverName(), s.backend.dsn(s.dsn))
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	var driver database.Driver
	switch s.backend {
	case BackendPostgres:
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		db.Close()
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(s.backend), driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	return fn(m)
}
