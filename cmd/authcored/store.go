package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/datastore"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ac "github.com/panyam/authcore"
	fsstore "github.com/panyam/authcore/stores/fs"
	gaestore "github.com/panyam/authcore/stores/gae"
	gormstore "github.com/panyam/authcore/stores/gorm"
)

type seeder interface {
	SeedRoles(ctx context.Context, names ...string) error
}

// openStore builds the configured backend and seeds its roles. The returned
// func releases whatever connections the backend holds.
func openStore(ctx context.Context, cfg *ac.Config) (ac.Store, func(), error) {
	store, closer, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if s, ok := store.(seeder); ok && len(cfg.SeedRoles) > 0 {
		if err := s.SeedRoles(ctx, cfg.SeedRoles...); err != nil {
			closer()
			return nil, nil, fmt.Errorf("seed roles: %w", err)
		}
	}
	return store, closer, nil
}

func newStore(ctx context.Context, cfg *ac.Config) (ac.Store, func(), error) {
	noop := func() {}
	switch cfg.StoreBackend {
	case "", "fs":
		return fsstore.NewStore(cfg.StoragePath), noop, nil

	case "sqlite", "postgres":
		var dialector gorm.Dialector
		if cfg.StoreBackend == "sqlite" {
			dsn := cfg.DatabaseDSN
			if dsn == "" {
				dsn = "authcore.db?_pragma=busy_timeout(5000)"
			}
			dialector = sqlite.Open(dsn)
		} else {
			if cfg.DatabaseDSN == "" {
				return nil, nil, fmt.Errorf("AUTHCORE_DATABASE_DSN is required for postgres")
			}
			dialector = postgres.Open(cfg.DatabaseDSN)
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			TranslateError: true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.StoreBackend, err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewStore(db), closer, nil

	case "datastore":
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore client: %w", err)
		}
		return gaestore.NewStore(client, cfg.DatastoreNamespace), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
