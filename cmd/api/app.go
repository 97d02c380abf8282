package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/beehive/service/internal/config"
	"github.com/beehive/service/internal/db"
	"github.com/beehive/service/internal/logger"
	"github.com/beehive/service/internal/photo"
	"github.com/beehive/service/internal/storage"
)

// app holds the long-lived dependencies shared by every command.
type app struct {
	cfg  *config.Config
	log  *zap.Logger
	pool *pgxpool.Pool
	svc  *photo.Service
}

// setup loads configuration and wires store, database, and service.
func setup(ctx context.Context) (*app, error) {
	cfg, dotenv, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if dotenv {
		log.Debug("loaded .env")
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	var records photo.RecordStore
	if cfg.HasDatabase() {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		a.pool = pool
		records = photo.NewRepository(pool)
	} else {
		log.Warn("DATABASE_URL not set; photo metadata will not be recorded")
	}

	a.svc = photo.NewService(store, records, photo.Options{
		DefaultBucket: cfg.Bucket,
		Region:        cfg.Region,
		DefaultACL:    cfg.ACL,
		DownloadDir:   cfg.DownloadDir,
		StoreTimeout:  cfg.StoreTimeout,
		ListPageSize:  cfg.ListPageSize,
	}, log)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.log.Sync()
}

// openStore selects the backend: an S3-compatible endpoint when one is
// configured, AWS S3 otherwise. Either way it is wrapped in the retry policy.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	var base storage.Store
	if cfg.StorageEndpoint != "" {
		ms, err := storage.NewMinioStore(cfg.StorageEndpoint, cfg.AccessKeyID, cfg.SecretAccessKey, cfg.Region, cfg.StorageUseSSL)
		if err != nil {
			return nil, fmt.Errorf("object storage init failed: %w", err)
		}
		ensureCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		created, err := ms.EnsureBucket(ensureCtx, cfg.Bucket, cfg.Region, cfg.ACL == "public-read")
		cancel()
		if err != nil {
			return nil, fmt.Errorf("prepare bucket %q: %w", cfg.Bucket, err)
		}
		log.Info("using S3-compatible endpoint",
			zap.String("endpoint", cfg.StorageEndpoint),
			zap.String("bucket", cfg.Bucket),
			zap.Bool("bucket_created", created))
		base = ms
	} else {
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("object storage init failed: %w", err)
		}
		log.Info("using AWS S3", zap.String("region", cfg.Region), zap.String("bucket", cfg.Bucket))
		base = s3
	}

	return storage.WithRetry(base, storage.RetryPolicy{
		MaxAttempts:     cfg.StoreRetryMaxAttempts,
		InitialInterval: cfg.StoreRetryInitialInterval,
		MaxInterval:     storage.DefaultRetryPolicy.MaxInterval,
	}, log), nil
}
