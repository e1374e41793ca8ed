package main

import (
	"context"
	"fmt"

	"google.golang.org/api/option"

	"github.com/jonathan/talent-search/internal/blob"
	"github.com/jonathan/talent-search/internal/config"
	"github.com/jonathan/talent-search/internal/db"
	"github.com/jonathan/talent-search/internal/db/sqlite"
	"github.com/jonathan/talent-search/internal/intake"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/logger"
	"github.com/jonathan/talent-search/internal/server"
)

// recordStore is what the service needs from either database backend.
type recordStore interface {
	lifecycle.Store
	intake.Store
	server.SearchReader
	server.Pinger
}

var (
	_ recordStore = (*db.DB)(nil)
	_ recordStore = (*sqlite.Store)(nil)
)

// openStore connects to the configured database and brings its schema up
// to date. The returned func releases the connection.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (recordStore, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		database, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		applied, err := database.Migrate(ctx)
		if err != nil {
			database.Close()
			return nil, nil, err
		}
		log.Info("database ready", logger.String("driver", config.DriverPostgres), logger.Int("migrations_applied", applied))
		return database, database.Close, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("database ready", logger.String("driver", config.DriverSQLite), logger.String("path", store.Path()))
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// openBlobs opens the configured attachment store.
func openBlobs(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Driver {
	case config.BlobGCS:
		var opts []option.ClientOption
		if cfg.Blob.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Blob.CredentialsFile))
		}
		return blob.NewGCSStore(ctx, cfg.Blob.Bucket, opts...)
	case config.BlobFile:
		return blob.NewFileStore(cfg.Blob.Dir)
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Blob.Driver)
	}
}
