// Package migration applies versioned SQL migrations with golang-migrate.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

// Schema holds the medscribe postgres migrations.
//
//go:embed sql/*.sql
var Schema embed.FS

// SchemaDir is the directory of Schema holding the migration files.
const SchemaDir = "sql"

// DriverFunc creates a migrate driver over an open pool.
type DriverFunc func(*sql.DB) (database.Driver, error)

// Postgres is the DriverFunc for PostgreSQL.
func Postgres(db *sql.DB) (database.Driver, error) {
	return migratepg.WithInstance(db, &migratepg.Config{})
}

// MigrateUp applies every pending migration. No pending migrations is not an error.
func MigrateUp(gormDB *gorm.DB, files fs.FS, dir string, driverFunc DriverFunc) error {
	m, err := newMigrator(gormDB, files, dir, driverFunc)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back every migration.
func MigrateDown(gormDB *gorm.DB, files fs.FS, dir string, driverFunc DriverFunc) error {
	m, err := newMigrator(gormDB, files, dir, driverFunc)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version returns the applied version and dirty flag.
func Version(gormDB *gorm.DB, files fs.FS, dir string, driverFunc DriverFunc) (uint, bool, error) {
	m, err := newMigrator(gormDB, files, dir, driverFunc)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// newMigrator builds a migrator over the shared pool. Callers must not
// Close it, which would close the pool.
func newMigrator(gormDB *gorm.DB, files fs.FS, dir string, driverFunc DriverFunc) (*migrate.Migrate, error) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	driver, err := driverFunc(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("create database driver: %w", err)
	}
	source, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
