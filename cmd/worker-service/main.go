package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nightshift-io/nightshift/internal/config"
	"github.com/nightshift-io/nightshift/internal/queue"
	"github.com/nightshift-io/nightshift/internal/worker"
	"github.com/nightshift-io/nightshift/shared/logger"
	"github.com/nightshift-io/nightshift/shared/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	loop := flag.Bool("loop", false, "Keep polling instead of exiting after one pass")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Bool("loop", *loop),
	)

	// Initialize queue store
	store, err := initStore(&cfg.Queue, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue store: %w", err)
	}

	// Create worker instance with the built-in executors
	workerInstance := worker.NewWorker(&worker.Config{
		Store:            store,
		Registry:         initRegistry(&cfg.Worker),
		Logger:           appLogger.Logger,
		WorkerID:         cfg.Worker.ID,
		MaxJobs:          cfg.Worker.MaxJobs,
		JobTimeout:       cfg.Worker.JobTimeout,
		ArchiveRetention: cfg.Worker.ArchiveRetention,
	})

	appLogger.Info("Worker ready",
		slog.String("worker_id", workerInstance.ID()),
		slog.String("queue_root", cfg.Queue.Root),
	)

	// Create context canceled on interrupt so in-flight executors are
	// stopped and their jobs recorded as failed rather than left stuck.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
		cancel()
	}()

	if !*loop {
		// Single pass: exit 0 on a clean cycle, even an empty one.
		stats, err := workerInstance.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("worker pass failed: %w", err)
		}
		appLogger.Info("Worker pass complete",
			slog.Int("claimed", stats.Claimed),
			slog.Int("completed", stats.Completed),
			slog.Int("failed", stats.Failed),
		)
		return nil
	}

	// Loop mode: optional standalone metrics listener, then poll until
	// the context is canceled.
	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Addr, appLogger.Logger)
		appLogger.Info("Metrics listener started",
			slog.String("addr", cfg.Metrics.Addr),
		)
	}

	if err := workerInstance.Run(ctx, cfg.Worker.PollInterval); err != nil {
		return err
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initStore opens the file-backed queue, creating the directory layout
// on first run.
func initStore(cfg *config.QueueConfig, logger *slog.Logger) (*queue.Store, error) {
	storeConfig := &queue.Config{
		Root:             cfg.Root,
		AllocatorTimeout: cfg.AllocatorTimeout,
	}

	return queue.NewStore(storeConfig, logger)
}

// initRegistry wires the built-in executors to their job types.
func initRegistry(cfg *config.WorkerConfig) *worker.Registry {
	registry := worker.NewRegistry()
	registry.Register("command", worker.NewCommandExecutor(cfg.OutputDir))
	registry.Register("sleep", worker.NewSleepExecutor())
	return registry
}
