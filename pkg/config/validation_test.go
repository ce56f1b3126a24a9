package config

import (
	"testing"
	"time"

	"github.com/reelcache/reelcache/internal/bytesize"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Storage.S3.Bucket = "reelcache-media"
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestValidate_S3RequiresBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.S3.Bucket = ""
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with s3 provider and no bucket succeeded, want error")
	}

	// The memory provider needs no bucket
	cfg.Storage.Provider = "memory"
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() with memory provider error = %v", err)
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Provider = "gcs"
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with unknown provider succeeded, want error")
	}
}

func TestValidate_DefaultQualityNeedsMultiplier(t *testing.T) {
	cfg := validConfig()
	cfg.Downloads.DefaultQuality = "8k"
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with unmapped default quality succeeded, want error")
	}
}

func TestValidate_MultipliersMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.Downloads.QualityMultipliers["720p"] = -1
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with negative multiplier succeeded, want error")
	}
}

func TestValidate_SweeperMustOutwaitRetries(t *testing.T) {
	cfg := validConfig()
	cfg.Downloads.Queue.RetryBackoff = 10 * time.Minute
	cfg.Downloads.Sweeper.StaleAfter = 5 * time.Minute
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with stale_after below retry_backoff succeeded, want error")
	}
}

func TestValidate_ZeroTier(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.Tiers["free"] = bytesize.ByteSize(0)
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with zero-size tier succeeded, want error")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "VERBOSE"
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with bad log level succeeded, want error")
	}
}
