// Package db opens the database, applies migrations and seeds the
// authorization tables.
package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/diewo77/go-crudgate/internal/config"
)

// Open connects using cfg, retrying while the server starts up.
func Open(cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN())
		log.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port, "dbname": cfg.DBName, "user": cfg.User}).
			Info("connecting to database")
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
		log.WithField("path", cfg.Path).Info("opening sqlite database")
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	retries := max(cfg.Retries, 1)
	var (
		conn *gorm.DB
		err  error
	)
	for i := 0; i < retries; i++ {
		conn, err = gorm.Open(dialector, gormConfig())
		if err == nil {
			break
		}
		log.WithError(err).Warnf("connection attempt %d/%d failed", i+1, retries)
		if i < retries-1 {
			time.Sleep(cfg.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	return conn, nil
}

// OpenSQLite opens a sqlite database at dsn, e.g.
// "file:test?mode=memory&cache=shared" for tests.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}
	return conn, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
}
