package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the upload service.
type Config struct {
	Port string

	// Destination is the optional initial destination root. When empty the
	// service starts unconfigured and rejects uploads until POST /set-path.
	Destination string

	MaxConcurrentUploads int
	BatchWorkers         int

	// MaxFileBytes and MaxBatchFiles bound a single batch. Zero means unlimited.
	MaxFileBytes  int64
	MaxBatchFiles int

	// UploadTimeout bounds how long one POST /upload may take end to end.
	// Zero means no limit: a folder transfer takes as long as the link needs.
	UploadTimeout time.Duration

	StagingTTL      time.Duration
	CleanupInterval time.Duration
	MinFreeBytes    int64
}

func Load() *Config {
	return &Config{
		Port:                 getEnv("DROPZONE_PORT", "3000"),
		Destination:          getEnv("DROPZONE_DESTINATION", ""),
		MaxConcurrentUploads: int(getEnvInt("MAX_CONCURRENT_UPLOADS", 64)),
		BatchWorkers:         int(getEnvInt("BATCH_WORKERS", 8)),
		MaxFileBytes:         getEnvInt("MAX_FILE_BYTES", 4<<30),
		MaxBatchFiles:        int(getEnvInt("MAX_BATCH_FILES", 10_000)),
		UploadTimeout:        getEnvOptionalDuration("UPLOAD_TIMEOUT"),
		StagingTTL:           getEnvDuration("STAGING_TTL", 24*time.Hour),
		CleanupInterval:      getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		MinFreeBytes:         getEnvInt("MIN_FREE_BYTES", 512<<20),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		slog.Warn("config: invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("config: invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

// getEnvOptionalDuration is getEnvDuration for settings where zero is the
// default and means "disabled".
func getEnvOptionalDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" || v == "0" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		slog.Warn("config: invalid duration, disabling", "key", key, "value", v)
		return 0
	}
	return d
}
