package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors.
//
// Struct-level rules come from `validate` tags; rules that cross fields or
// sections are checked explicitly below.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.Storage.Provider == "s3" && cfg.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage: s3 provider requires a bucket")
	}

	for quality, mult := range cfg.Downloads.QualityMultipliers {
		if mult <= 0 {
			return fmt.Errorf("downloads: quality multiplier for %q must be positive, got %v", quality, mult)
		}
	}
	if _, ok := cfg.Downloads.QualityMultipliers[cfg.Downloads.DefaultQuality]; !ok {
		return fmt.Errorf("downloads: default quality %q has no multiplier", cfg.Downloads.DefaultQuality)
	}

	if cfg.Downloads.Sweeper.StaleAfter <= cfg.Downloads.Queue.RetryBackoff {
		return fmt.Errorf("downloads: sweeper stale_after (%s) must exceed queue retry_backoff (%s)",
			cfg.Downloads.Sweeper.StaleAfter, cfg.Downloads.Queue.RetryBackoff)
	}

	for tier, size := range cfg.Quota.Tiers {
		if size == 0 {
			return fmt.Errorf("quota: tier %q has zero storage", tier)
		}
	}

	return nil
}
