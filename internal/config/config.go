package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Run modes supported by the pipeline binary.
const (
	ModeWatcher   = "watcher"
	ModeProcessor = "processor"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string `envconfig:"DB_HOST"`
	Port               string `envconfig:"DB_PORT" default:"5432"`
	User               string `envconfig:"DB_USER"`
	Password           string `envconfig:"DB_PASSWORD"`
	Name               string `envconfig:"DB_NAME"`
	SSLMode            string `envconfig:"DB_SSLMODE" default:"disable"`
	ApplicationName    string `envconfig:"DB_APPLICATION_NAME" default:"docpipeline"`
	MaxOpenConns       int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns       int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetimeSec int    `envconfig:"DB_CONN_MAX_LIFETIME_SEC" default:"300"`
}

// MinIOConfig holds object storage settings for any S3-compatible backend.
// Buckets are per tenant and come from the prefix map, not from here.
type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY"`
	Region    string `envconfig:"MINIO_REGION"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

// PipelineConfig holds the tunables of the watcher, uploader and OCR loops.
type PipelineConfig struct {
	Mode          string `envconfig:"PIPELINE_MODE" default:"watcher"`
	WebDAVDir     string `envconfig:"WEBDAV_DIR"`
	ProcessedDir  string `envconfig:"PROCESSED_DIR"`
	PrefixMapPath string `envconfig:"PREFIX_MAP_PATH"`
	InboxPrefix   string `envconfig:"INBOX_PREFIX" default:"inbox/"`
	FailedPrefix  string `envconfig:"FAILED_PREFIX" default:"failed/"`

	WatchInterval  time.Duration `envconfig:"WATCH_INTERVAL" default:"5s"`
	UploadInterval time.Duration `envconfig:"UPLOAD_INTERVAL" default:"10s"`
	OCRInterval    time.Duration `envconfig:"OCR_INTERVAL" default:"30s"`

	MaxConcurrentJobs    int           `envconfig:"MAX_CONCURRENT_JOBS" default:"3"`
	MaxRetryAttempts     int           `envconfig:"MAX_RETRY_ATTEMPTS" default:"5"`
	RetryBaseDelay       time.Duration `envconfig:"RETRY_BASE_DELAY" default:"2m"`
	RetryMaxDelay        time.Duration `envconfig:"RETRY_MAX_DELAY" default:"1h"`
	ProcessingStaleAfter time.Duration `envconfig:"PROCESSING_STALE_AFTER" default:"15m"`

	StabilityChecks     int           `envconfig:"STABILITY_CHECKS" default:"3"`
	StabilityInterval   time.Duration `envconfig:"STABILITY_INTERVAL" default:"1s"`
	MaxStabilityRetries int           `envconfig:"MAX_STABILITY_RETRIES" default:"30"`

	OCRMaxAttempts int `envconfig:"OCR_MAX_ATTEMPTS" default:"5"`
}

// LogSinkConfig controls batching of processing_logs writes.
type LogSinkConfig struct {
	BatchSize     int           `envconfig:"LOG_BATCH_SIZE" default:"50"`
	FlushInterval time.Duration `envconfig:"LOG_FLUSH_INTERVAL" default:"5s"`
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// OpsAddr enables the operational HTTP server when set, e.g. ":9090".
	OpsAddr  string `envconfig:"OPS_ADDR"`
	Database DatabaseConfig
	MinIO    MinIOConfig
	Pipeline PipelineConfig
	LogSink  LogSinkConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() (*AppConfig, error) {
	c := new(AppConfig)
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	c.Pipeline.Mode = strings.ToLower(strings.TrimSpace(c.Pipeline.Mode))
	c.Pipeline.InboxPrefix = dirPrefix(c.Pipeline.InboxPrefix)
	c.Pipeline.FailedPrefix = dirPrefix(c.Pipeline.FailedPrefix)
	return c, nil
}

// dirPrefix gives a non-empty object key prefix its trailing slash.
func dirPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// Validate checks that the settings required by the selected mode are present.
// It does not modify c.
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.Pipeline.Mode {
	case ModeWatcher:
		if c.Pipeline.WebDAVDir == "" {
			errs = append(errs, errors.New("set WEBDAV_DIR"))
		}
	case ModeProcessor:
		if c.MinIO.Endpoint == "" {
			errs = append(errs, errors.New("set MINIO_ENDPOINT"))
		}
		if strings.Trim(c.Pipeline.InboxPrefix, "/") == "" {
			errs = append(errs, errors.New("INBOX_PREFIX must not be empty"))
		}
		if strings.Trim(c.Pipeline.FailedPrefix, "/") == "" {
			errs = append(errs, errors.New("FAILED_PREFIX must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid PIPELINE_MODE %q: want %q or %q", c.Pipeline.Mode, ModeWatcher, ModeProcessor))
	}

	if c.Pipeline.ProcessedDir == "" {
		errs = append(errs, errors.New("set PROCESSED_DIR"))
	}
	if c.Pipeline.PrefixMapPath == "" {
		errs = append(errs, errors.New("set PREFIX_MAP_PATH"))
	}
	if c.Pipeline.MaxConcurrentJobs < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENT_JOBS must be at least 1"))
	}
	if c.Pipeline.StabilityChecks < 1 {
		errs = append(errs, errors.New("STABILITY_CHECKS must be at least 1"))
	}

	return errors.Join(errs...)
}
