package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bryanwahyu/tomvto/internal/application"
	apppredictions "github.com/bryanwahyu/tomvto/internal/application/predictions"
	"github.com/bryanwahyu/tomvto/internal/config"
	predictions "github.com/bryanwahyu/tomvto/internal/domain/predictions"
	mysqlp "github.com/bryanwahyu/tomvto/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/tomvto/internal/infra/db/postgres"
	"github.com/bryanwahyu/tomvto/internal/infra/storage"
	"github.com/bryanwahyu/tomvto/internal/middleware"
)

// app bundles the record store with its backend resources.
type app struct {
	store   *apppredictions.Service
	health  map[string]middleware.HealthChecker
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.Logging.Format, "text") {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h).With("service", "tomvto")
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{health: make(map[string]middleware.HealthChecker)}

	doc, err := openDocument(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store = &apppredictions.Service{
		Doc:       doc,
		Clock:     application.SystemClock{},
		Logger:    logger.With("component", "store"),
		Retention: cfg.Storage.Retention,
	}

	if cfg.Minio.Enabled {
		archive, err := storage.NewSnapshotStore(ctx, storage.MinioConfig{
			Endpoint:   cfg.Minio.Endpoint,
			Region:     cfg.Minio.Region,
			BucketName: cfg.Minio.BucketName,
			AccessKey:  cfg.Minio.AccessKey,
			SecretKey:  cfg.Minio.SecretKey,
			UseSSL:     cfg.Minio.UseSSL,
			Prefix:     cfg.Minio.Prefix,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		a.store.Archive = archive
		a.health["snapshot_archive"] = archive
	}
	return a, nil
}

func openDocument(ctx context.Context, cfg *config.Config, a *app) (predictions.Document, error) {
	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		a.track(db)
		repo := mysqlp.NewDocumentRepository(db, cfg.Storage.Document)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("mysql schema: %w", err)
		}
		return repo, nil
	case config.DriverPostgres:
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		a.track(db)
		repo := postgresp.NewDocumentRepository(db, cfg.Storage.Document)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return repo, nil
	default:
		doc, err := storage.NewFileDocument(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.health["storage"] = doc
		return doc, nil
	}
}

func (a *app) track(db *sql.DB) {
	a.closers = append(a.closers, db.Close)
	a.health["storage"] = &middleware.DatabaseHealthChecker{DB: db}
}
