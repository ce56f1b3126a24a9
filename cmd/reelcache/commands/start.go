package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/api"
	"github.com/reelcache/reelcache/pkg/config"
	"github.com/reelcache/reelcache/pkg/content"
	"github.com/reelcache/reelcache/pkg/content/s3"
	"github.com/reelcache/reelcache/pkg/download"
	"github.com/reelcache/reelcache/pkg/metrics"
	"github.com/reelcache/reelcache/pkg/quota"
	"github.com/reelcache/reelcache/pkg/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ReelCache server",
	Long: `Start the ReelCache server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/reelcache/config.yaml.

Examples:
  # Start with default config location
  reelcache start

  # Start with custom config file
  reelcache start --config /etc/reelcache/config.yaml

  # Start with environment variable overrides
  REELCACHE_LOGGING_LEVEL=DEBUG reelcache start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("ReelCache starting", "version", Version)
	logger.Info("Configuration loaded", "source", configSource(GetConfigFile()))

	// Persistence
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Store close error", "error", err)
		}
	}()

	// Bootstrap the admin account (generates a random password on first run
	// unless a credential is configured)
	adminPassword, err := st.EnsureAdminUser(ctx, cfg.Admin.Email, cfg.Admin.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}
	if adminPassword != "" {
		logger.Info("Admin user created", "email", cfg.Admin.Email)
		fmt.Printf("\n*** IMPORTANT: Admin user created with password: %s ***\n", adminPassword)
		fmt.Println("Please save this password. It will not be shown again.")
		fmt.Println()
	}

	// Remote object storage
	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	// Metrics (optional)
	var registry *metrics.Registry
	var downloadMetrics *metrics.DownloadMetrics
	if cfg.Metrics.Enabled {
		registry = metrics.NewRegistry()
		downloadMetrics = registry.Downloads
		logger.Info("Metrics enabled", "endpoint", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Transfer pipeline
	quotas := quota.New(st, quota.Config{
		Tiers:                 cfg.Quota.Tiers,
		AlertThresholdPercent: cfg.Quota.AlertThresholdPercent,
	})
	worker := download.NewWorker(st, objects, quotas, cfg.Downloads.DownloadDir, cfg.Downloads.Worker, downloadMetrics)
	queue := download.NewQueue(worker, cfg.Downloads.Queue, downloadMetrics)
	queue.OnPermanentFailure(worker.MarkFailed)
	queue.Start(ctx)

	downloads := download.NewService(st, quotas, queue, cfg.Downloads.Config, downloadMetrics)

	sweeper := download.NewSweeper(st, queue, downloads, cfg.Downloads.Sweeper)
	sweeper.Start(ctx)

	// Re-enqueued on startup via the sweeper's immediate pass; log queue shape
	logger.Info("Transfer pipeline started",
		"workers", cfg.Downloads.Queue.Workers,
		"queue_size", cfg.Downloads.Queue.QueueSize,
		"download_dir", cfg.Downloads.DownloadDir)

	// HTTP API
	apiServer, err := api.NewServer(cfg.Server, api.RouterDeps{
		Store:     st,
		Objects:   objects,
		Downloads: downloads,
		Quotas:    quotas,
		Metrics:   registry,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", apiServer.Port())

	var serveErr error
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		serveErr = <-serverDone
	case serveErr = <-serverDone:
		signal.Stop(sigChan)
		cancel()
	}

	// Drain the pipeline after the API stops admitting work. In-flight
	// transfers interrupted here are re-enqueued by the sweeper on the
	// next start.
	sweeper.Stop()
	queue.Stop(shutdownBudget(cfg.ShutdownTimeout))

	if serveErr != nil {
		logger.Error("Server error", "error", serveErr)
		return serveErr
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// newObjectStore creates the configured remote object store backend.
func newObjectStore(ctx context.Context, cfg *config.Config) (content.ObjectStore, error) {
	switch cfg.Storage.Provider {
	case "memory":
		logger.Warn("Using in-memory object storage; content does not survive restarts")
		return content.NewMemoryStore(), nil
	default:
		objects, err := s3.NewFromConfig(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		logger.Info("Object storage configured",
			"bucket", cfg.Storage.S3.Bucket,
			"region", cfg.Storage.S3.Region)
		return objects, nil
	}
}

// shutdownBudget leaves the queue a share of the total shutdown timeout.
func shutdownBudget(total time.Duration) time.Duration {
	if total <= 0 {
		return 10 * time.Second
	}
	return total / 2
}

// configSource returns a description of where the config was loaded from.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
