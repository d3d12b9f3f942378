package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	// Registers the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/diewo77/go-crudgate/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Models lists the tables managed by Migrate.
func Models() []any {
	return []any{
		&models.User{},
		&models.Group{},
		&models.Profile{},
		&models.Session{},
		&models.Service{},
		&models.RoleService{},
		&models.AuditLog{},
		&models.Invoice{},
	}
}

// Migrate runs AutoMigrate for the authorization tables, the sample
// invoices table and any extra application models.
func Migrate(db *gorm.DB, extra ...any) error {
	for _, m := range append(Models(), extra...) {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("db: automigrate %T: %w", m, err)
		}
	}
	return nil
}

// MigrationSource returns the embedded SQL migrations.
func MigrationSource() (source.Driver, error) {
	return iofs.New(migrationFS, "migrations")
}

// MigrateSQL applies the embedded SQL migrations to the postgres database
// at url. It is a no-op when the schema is already current.
func MigrateSQL(url string) error {
	src, err := MigrationSource()
	if err != nil {
		return fmt.Errorf("db: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate up: %w", err)
	}
	return nil
}
