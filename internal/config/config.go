package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	Jobs          JobsConfig
	Preview       PreviewConfig
	Staging       StagingConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

// StoreConfig holds connection defaults applied when a request leaves a
// field empty.
type StoreConfig struct {
	Driver          string
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type JobsConfig struct {
	Workers   int
	QueueSize int
	BatchSize int
}

type PreviewConfig struct {
	DefaultLimit int
}

type StagingConfig struct {
	Backend string
	Dir     string
	Prefix  string
	S3      S3Config
}

type S3Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("FLATBRIDGE_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid FLATBRIDGE_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "FLATBRIDGE_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "FLATBRIDGE_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "FLATBRIDGE_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "FLATBRIDGE_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "FLATBRIDGE_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyInt64(lookup, "FLATBRIDGE_HTTP_MAX_UPLOAD_BYTES", &cfg.HTTP.MaxUploadBytes) },
		func() error { return applyString(lookup, "FLATBRIDGE_STORE_DRIVER", &cfg.Store.Driver) },
		func() error { return applyString(lookup, "FLATBRIDGE_STORE_HOST", &cfg.Store.Host) },
		func() error { return applyInt(lookup, "FLATBRIDGE_STORE_PORT", &cfg.Store.Port) },
		func() error { return applyString(lookup, "FLATBRIDGE_STORE_DATABASE", &cfg.Store.Database) },
		func() error { return applyString(lookup, "FLATBRIDGE_STORE_USERNAME", &cfg.Store.Username) },
		func() error { return applyString(lookup, "FLATBRIDGE_STORE_PASSWORD", &cfg.Store.Password) },
		func() error { return applyInt(lookup, "FLATBRIDGE_STORE_MAX_OPEN_CONNS", &cfg.Store.MaxOpenConns) },
		func() error { return applyInt(lookup, "FLATBRIDGE_STORE_MAX_IDLE_CONNS", &cfg.Store.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "FLATBRIDGE_STORE_CONN_MAX_IDLE_TIME", &cfg.Store.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "FLATBRIDGE_STORE_CONN_MAX_LIFETIME", &cfg.Store.ConnMaxLifetime)
		},
		func() error { return applyInt(lookup, "FLATBRIDGE_JOBS_WORKERS", &cfg.Jobs.Workers) },
		func() error { return applyInt(lookup, "FLATBRIDGE_JOBS_QUEUE_SIZE", &cfg.Jobs.QueueSize) },
		func() error { return applyInt(lookup, "FLATBRIDGE_JOBS_BATCH_SIZE", &cfg.Jobs.BatchSize) },
		func() error { return applyInt(lookup, "FLATBRIDGE_PREVIEW_DEFAULT_LIMIT", &cfg.Preview.DefaultLimit) },
		func() error { return applyString(lookup, "FLATBRIDGE_STAGING_BACKEND", &cfg.Staging.Backend) },
		func() error { return applyString(lookup, "FLATBRIDGE_STAGING_DIR", &cfg.Staging.Dir) },
		func() error { return applyString(lookup, "FLATBRIDGE_STAGING_PREFIX", &cfg.Staging.Prefix) },
		func() error { return applyString(lookup, "FLATBRIDGE_STAGING_S3_ENDPOINT", &cfg.Staging.S3.Endpoint) },
		func() error { return applyString(lookup, "FLATBRIDGE_STAGING_S3_REGION", &cfg.Staging.S3.Region) },
		func() error { return applyString(lookup, "FLATBRIDGE_STAGING_S3_BUCKET", &cfg.Staging.S3.Bucket) },
		func() error {
			return applyString(lookup, "FLATBRIDGE_STAGING_S3_ACCESS_KEY", &cfg.Staging.S3.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "FLATBRIDGE_STAGING_S3_SECRET_KEY", &cfg.Staging.S3.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "FLATBRIDGE_STAGING_S3_USE_SSL", &cfg.Staging.S3.UseSSL) },
		func() error {
			return applyBool(lookup, "FLATBRIDGE_STAGING_S3_AUTO_CREATE_BUCKET", &cfg.Staging.S3.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "FLATBRIDGE_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "FLATBRIDGE_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	cfg.Staging.Backend = strings.ToLower(cfg.Staging.Backend)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	switch cfg.Store.Driver {
	case "duckdb", "postgres":
	default:
		return Config{}, fmt.Errorf("invalid FLATBRIDGE_STORE_DRIVER: %q", cfg.Store.Driver)
	}
	switch cfg.Staging.Backend {
	case "local", "s3":
	default:
		return Config{}, fmt.Errorf("invalid FLATBRIDGE_STAGING_BACKEND: %q", cfg.Staging.Backend)
	}
	if cfg.Jobs.Workers <= 0 {
		return Config{}, fmt.Errorf("jobs workers must be > 0")
	}
	if cfg.Jobs.QueueSize < 0 {
		return Config{}, fmt.Errorf("jobs queue size must be >= 0")
	}
	if cfg.Jobs.BatchSize <= 0 {
		return Config{}, fmt.Errorf("jobs batch size must be > 0")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "flatbridge-api"},
		HTTP: HTTPConfig{
			Address:        ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxUploadBytes: 512 << 20,
		},
		Store: StoreConfig{
			Driver:          "duckdb",
			Host:            "localhost",
			Port:            5432,
			Database:        "",
			Username:        "",
			Password:        "",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Jobs: JobsConfig{
			Workers:   4,
			QueueSize: 64,
			BatchSize: 1000,
		},
		Preview: PreviewConfig{
			DefaultLimit: 100,
		},
		Staging: StagingConfig{
			Backend: "local",
			Dir:     os.TempDir(),
			Prefix:  "flatbridge-staging",
			S3: S3Config{
				Endpoint:         "localhost:9000",
				Region:           "us-east-1",
				Bucket:           "flatbridge",
				AccessKeyID:      "minio",
				SecretAccessKey:  "miniostorage",
				UseSSL:           false,
				AutoCreateBucket: true,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Staging.S3.UseSSL = true
		cfg.Staging.S3.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
