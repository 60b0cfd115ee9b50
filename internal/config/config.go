package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	DatabasePath string
	LogLevel     string

	// Scratch workspace
	WorkspaceDir string
	MaxFileSize  int64

	// External converter
	ConverterCmd string
	ConverterDPI int

	// S3
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool
	PresignExpiry     time.Duration

	// Extraction service
	ExtractEndpoint   string
	JobStatusEndpoint string
	PollInterval      time.Duration
	MaxPollAttempts   int
	RequestTimeout    time.Duration

	// Uploads
	UploadConcurrency int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		DatabasePath:      getEnv("DATABASE_PATH", "data/medcase.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		WorkspaceDir:      getEnv("WORKSPACE_DIR", "/tmp/medcase"),
		MaxFileSize:       20 * 1024 * 1024,
		ConverterCmd:      getEnv("CONVERTER_CMD", ""),
		ConverterDPI:      getEnvInt("CONVERTER_DPI", 300),
		S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", "case-images"),
		S3UseSSL:          getEnv("S3_USE_SSL", "false") == "true",
		PresignExpiry:     getEnvDuration("PRESIGN_EXPIRY", 15*time.Minute),
		ExtractEndpoint:   getEnv("EXTRACT_ENDPOINT", ""),
		JobStatusEndpoint: getEnv("JOB_STATUS_ENDPOINT", ""),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 5*time.Second),
		MaxPollAttempts:   getEnvInt("MAX_POLL_ATTEMPTS", 120),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		UploadConcurrency: getEnvInt("UPLOAD_CONCURRENCY", 4),
	}

	if cfg.ConverterCmd == "" {
		return nil, fmt.Errorf("CONVERTER_CMD is required")
	}
	if cfg.ExtractEndpoint == "" {
		return nil, fmt.Errorf("EXTRACT_ENDPOINT is required")
	}
	if cfg.JobStatusEndpoint == "" {
		return nil, fmt.Errorf("JOB_STATUS_ENDPOINT is required")
	}
	if cfg.MaxPollAttempts < 1 {
		return nil, fmt.Errorf("MAX_POLL_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
