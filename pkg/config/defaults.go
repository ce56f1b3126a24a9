package config

import (
	"strings"
	"time"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/pkg/api"
	"github.com/reelcache/reelcache/pkg/download"
	"github.com/reelcache/reelcache/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	applyDatabaseDefaults(&cfg.Database)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyDownloadsDefaults(&cfg.Downloads)
	applyQuotaDefaults(&cfg.Quota)
	applyAdminDefaults(&cfg.Admin)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(cfg *store.Config) {
	cfg.ApplyDefaults()
}

func applyServerDefaults(cfg *api.ServerConfig) {
	cfg.ApplyDefaults()
}

// applyStorageDefaults sets object storage defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "s3"
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
}

// applyDownloadsDefaults fills the transfer pipeline configuration from the
// package-level defaults.
func applyDownloadsDefaults(cfg *DownloadsConfig) {
	def := download.DefaultConfig()
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = def.DownloadDir
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if len(cfg.QualityMultipliers) == 0 {
		cfg.QualityMultipliers = def.QualityMultipliers
	}
	if cfg.DefaultQuality == "" {
		cfg.DefaultQuality = def.DefaultQuality
	}

	qdef := download.DefaultQueueConfig()
	if cfg.Queue.QueueSize == 0 {
		cfg.Queue.QueueSize = qdef.QueueSize
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = qdef.Workers
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = qdef.MaxAttempts
	}
	if cfg.Queue.RetryBackoff == 0 {
		cfg.Queue.RetryBackoff = qdef.RetryBackoff
	}
	if cfg.Queue.JobTimeout == 0 {
		cfg.Queue.JobTimeout = qdef.JobTimeout
	}

	wdef := download.DefaultWorkerConfig()
	if cfg.Worker.ChunkSize == 0 {
		cfg.Worker.ChunkSize = wdef.ChunkSize
	}
	if cfg.Worker.ProgressInterval == 0 {
		cfg.Worker.ProgressInterval = wdef.ProgressInterval
	}
	if cfg.Worker.ProgressBytes == 0 {
		cfg.Worker.ProgressBytes = wdef.ProgressBytes
	}

	sdef := download.DefaultSweeperConfig()
	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = sdef.Interval
	}
	if cfg.Sweeper.StaleAfter == 0 {
		cfg.Sweeper.StaleAfter = sdef.StaleAfter
	}
}

// applyQuotaDefaults sets subscription tier defaults.
func applyQuotaDefaults(cfg *QuotaConfig) {
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = map[string]bytesize.ByteSize{
			"basic":    5 * bytesize.GiB,
			"standard": 20 * bytesize.GiB,
			"premium":  100 * bytesize.GiB,
		}
	}
	if cfg.AlertThresholdPercent == 0 {
		cfg.AlertThresholdPercent = 80
	}
}

// applyAdminDefaults sets admin bootstrap defaults.
func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Email == "" {
		cfg.Email = "admin@localhost"
	}
	// PasswordHash has no default - it is set during init
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
		Storage: StorageConfig{
			Provider: "s3",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
