// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Debug       bool   `env:"DEBUG" envDefault:"false"`
	Port        string `env:"PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	// JWTSecret, when set, protects destructive endpoints with Bearer tokens.
	JWTSecret string `env:"JWT_SECRET"`

	// Object storage. AWS S3 unless StorageEndpoint names an S3-compatible
	// server (MinIO locally).
	Bucket          string `env:"AWS_S3_BUCKET"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	ACL             string `env:"AWS_ACL" envDefault:"public-read"`
	StorageEndpoint string `env:"STORAGE_ENDPOINT"`
	StorageUseSSL   bool   `env:"STORAGE_USE_SSL" envDefault:"true"`

	StoreTimeout              time.Duration `env:"STORE_TIMEOUT" envDefault:"30s"`
	StoreRetryMaxAttempts     uint          `env:"STORE_RETRY_MAX_ATTEMPTS" envDefault:"4"`
	StoreRetryInitialInterval time.Duration `env:"STORE_RETRY_INITIAL_INTERVAL" envDefault:"200ms"`
	ListPageSize              int           `env:"LIST_PAGE_SIZE" envDefault:"1000"`

	DownloadDir    string `env:"DOWNLOAD_DIR" envDefault:"downloads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`
}

// Load reads configuration from a .env file (if present) and environment
// variables. It reports whether a .env file was found so the caller can log it
// once a logger exists.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, dotenv, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}
	return cfg, dotenv, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("AWS_S3_BUCKET is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be provided together")
	}
	if c.StorageEndpoint != "" && c.AccessKeyID == "" {
		return errors.New("STORAGE_ENDPOINT requires AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.DownloadDir == "" {
		return errors.New("DOWNLOAD_DIR must not be empty")
	}
	return nil
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// HasDatabase reports whether photo metadata is persisted.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}
