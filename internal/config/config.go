// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	RegistryPath    string // TUTORS_CONFIG_PATH (default "tutors_config.json")
	CredentialsPath string // CREDENTIALS_PATH (default "credentials.json")
	LogLevel        string // LOG_LEVEL (default "info")

	Backend     string // TUTOR_BACKEND (default "sheets")
	DatabaseURL string // TUTOR_DATABASE_URL (required when backend is postgres)
	NATSURL     string // TUTOR_NATS_URL (optional, empty = no events)

	GRPCAddr    string        // TUTOR_GRPC_ADDR (default ":9090")
	HTTPAddr    string        // TUTOR_HTTP_ADDR (default ":8080")
	AuthToken   string        // TUTOR_AUTH_TOKEN (optional, empty = auth disabled)
	SessionIdle time.Duration // TUTOR_SESSION_IDLE (default 30m)

	// Sync settings
	SyncInterval   time.Duration // TUTOR_SYNC_INTERVAL (default 0 = disabled)
	SyncFile       string        // TUTOR_SYNC_FILE (enables a local file copy when set)
	SyncS3Bucket   string        // TUTOR_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // TUTOR_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // TUTOR_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // TUTOR_SYNC_S3_KEY (default "tutors/registry.jsonl")
	SyncGitRepo    string        // TUTOR_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // TUTOR_SYNC_GIT_FILE (default "tutors.jsonl")
	SyncGitBranch  string        // TUTOR_SYNC_GIT_BRANCH (default "main")
}

// Load reads .env from the working directory, if present, and then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	if err := loadDotenv(".env"); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment alone.
func FromEnv() (*Config, error) {
	c := &Config{
		RegistryPath:    envOrDefault("TUTORS_CONFIG_PATH", "tutors_config.json"),
		CredentialsPath: envOrDefault("CREDENTIALS_PATH", "credentials.json"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		Backend:         envOrDefault("TUTOR_BACKEND", BackendSheets),
		DatabaseURL:     os.Getenv("TUTOR_DATABASE_URL"),
		NATSURL:         os.Getenv("TUTOR_NATS_URL"),
		GRPCAddr:        envOrDefault("TUTOR_GRPC_ADDR", ":9090"),
		HTTPAddr:        envOrDefault("TUTOR_HTTP_ADDR", ":8080"),
		AuthToken:       os.Getenv("TUTOR_AUTH_TOKEN"),
		SyncFile:        os.Getenv("TUTOR_SYNC_FILE"),
		SyncS3Bucket:    os.Getenv("TUTOR_SYNC_S3_BUCKET"),
		SyncS3Endpoint:  os.Getenv("TUTOR_SYNC_S3_ENDPOINT"),
		SyncS3Region:    envOrDefault("TUTOR_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:       envOrDefault("TUTOR_SYNC_S3_KEY", "tutors/registry.jsonl"),
		SyncGitRepo:     os.Getenv("TUTOR_SYNC_GIT_REPO"),
		SyncGitFile:     envOrDefault("TUTOR_SYNC_GIT_FILE", "tutors.jsonl"),
		SyncGitBranch:   envOrDefault("TUTOR_SYNC_GIT_BRANCH", "main"),
	}

	switch c.Backend {
	case BackendSheets, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("TUTOR_DATABASE_URL is required when TUTOR_BACKEND=%s", BackendPostgres)
		}
	default:
		return nil, fmt.Errorf("TUTOR_BACKEND: unknown backend %q", c.Backend)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	var err error
	if c.SessionIdle, err = durationEnv("TUTOR_SESSION_IDLE", "30m"); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = durationEnv("TUTOR_SYNC_INTERVAL", "0"); err != nil {
		return nil, err
	}
	return c, nil
}

// SyncEnabled reports whether a backup interval and at least one
// destination are configured.
func (c *Config) SyncEnabled() bool {
	return c.SyncInterval > 0 && (c.SyncFile != "" || c.SyncS3Bucket != "" || c.SyncGitRepo != "")
}

// loadDotenv loads path into the environment. A missing file is ignored.
func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
