package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/diewo77/go-crudgate/gate"
	"github.com/diewo77/go-crudgate/internal/audit"
	"github.com/diewo77/go-crudgate/internal/cache"
	"github.com/diewo77/go-crudgate/internal/config"
	"github.com/diewo77/go-crudgate/internal/crud"
	"github.com/diewo77/go-crudgate/internal/db"
	"github.com/diewo77/go-crudgate/internal/models"
	"github.com/diewo77/go-crudgate/internal/store"
)

// App holds the collaborators shared by the commands.
type App struct {
	cfg      *config.Config
	log      *logrus.Logger
	db       *gorm.DB
	dir      *store.Directory
	gate     *gate.Gate
	cache    cache.Cache
	audit    *audit.Log
	registry *prometheus.Registry
	metrics  *crud.Metrics
	closers  []func() error
}

// loadApp reads the configuration and opens the database.
func loadApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	app := &App{cfg: cfg, log: logger, db: conn}
	if sqlDB, err := conn.DB(); err == nil {
		app.closers = append(app.closers, sqlDB.Close)
	}
	return app, nil
}

// NewApp opens the database and builds the gate with an ownership counter
// for every active service.
func NewApp(ctx context.Context) (*App, error) {
	app, err := loadApp()
	if err != nil {
		return nil, err
	}

	app.dir = store.NewDirectory(app.db)
	dirs := app.dir.Directories()
	dirs.Resources = gate.NewCachedDirectory(dirs.Resources, app.cfg.Gate.ResourceCacheSize, app.cfg.Gate.ResourceCacheTTL)
	app.gate, err = gate.New(dirs, app.cfg.Gate.Options(app.log)...)
	if err != nil {
		return nil, app.fail(err)
	}
	services, err := app.dir.ActiveServices(ctx)
	if err != nil {
		return nil, app.fail(err)
	}
	for _, name := range services {
		if err := app.gate.Register(name, store.NewTableOwners(app.db, name)); err != nil {
			return nil, app.fail(err)
		}
	}

	app.cache = cache.Nop{}
	if app.cfg.Redis.URL != "" {
		rc, err := cache.Dial(ctx, app.cfg.Redis.URL)
		if err != nil {
			return nil, app.fail(err)
		}
		app.cache = rc
		app.closers = append(app.closers, rc.Close)
	}

	app.audit = audit.New(app.db)
	app.registry = prometheus.NewRegistry()
	app.metrics = crud.NewMetrics(app.registry)
	return app, nil
}

// Invoices returns the gated service for the sample invoices table.
func (a *App) Invoices() (*crud.Service[models.Invoice], error) {
	st, err := store.New[models.Invoice](a.db)
	if err != nil {
		return nil, err
	}
	return crud.New(crud.Params[models.Invoice]{
		Gate:    a.gate,
		Store:   st,
		Cache:   a.cache,
		Audit:   a.audit,
		Logger:  a.log,
		Metrics: a.metrics,
		Options: a.cfg.Crud.Options(),
	})
}

// Close pushes the collected metrics when configured and releases
// connections.
func (a *App) Close() error {
	var errs []error
	if a.registry != nil && a.cfg.Metrics.PushURL != "" {
		if err := push.New(a.cfg.Metrics.PushURL, a.cfg.Metrics.Job).Gatherer(a.registry).Push(); err != nil {
			a.log.WithError(err).Warn("metrics push failed")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) fail(err error) error {
	_ = a.Close()
	return fmt.Errorf("crudgate: %w", err)
}
