package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Queue   QueueConfig   `yaml:"queue"`
	Worker  WorkerConfig  `yaml:"worker"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	App     AppConfig     `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// QueueConfig holds the on-disk queue location and locking behavior
type QueueConfig struct {
	// Root is the queue directory; active/, archive/ and the allocator
	// sentinel live directly under it.
	Root string `yaml:"root"`

	// AllocatorTimeout bounds how long an enqueue waits for the ID
	// allocator lock before reporting the queue as busy.
	AllocatorTimeout time.Duration `yaml:"allocator_timeout"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	// ID names this worker in job audit trails. Defaults to the
	// hostname plus a random suffix when empty.
	ID string `yaml:"id"`

	// MaxJobs caps how many jobs one cycle may claim. Zero means no cap.
	MaxJobs int `yaml:"max_jobs"`

	// JobTimeout bounds a single execution. Zero disables the timeout.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// PollInterval is the delay between cycles in loop mode.
	PollInterval time.Duration `yaml:"poll_interval"`

	// OutputDir is where built-in executors write their artifacts.
	OutputDir string `yaml:"output_dir"`

	// ArchiveRetention prunes archived jobs older than this once per
	// cycle. Zero disables pruning; stuck jobs are never touched.
	ArchiveRetention time.Duration `yaml:"archive_retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// MetricsConfig holds the worker-side Prometheus listener settings. The
// API service serves /metrics on its own router instead.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the fields the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Queue.Root == "" {
		return fmt.Errorf("queue root is required")
	}

	if c.Queue.AllocatorTimeout < 0 {
		return fmt.Errorf("queue allocator_timeout must not be negative")
	}

	return nil
}

// ValidateWorkerConfig checks the fields the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if c.Queue.Root == "" {
		return fmt.Errorf("queue root is required")
	}

	if c.Queue.AllocatorTimeout < 0 {
		return fmt.Errorf("queue allocator_timeout must not be negative")
	}

	if c.Worker.MaxJobs < 0 {
		return fmt.Errorf("worker max_jobs must not be negative")
	}

	if c.Worker.JobTimeout < 0 {
		return fmt.Errorf("worker job_timeout must not be negative")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if c.Worker.ArchiveRetention < 0 {
		return fmt.Errorf("worker archive_retention must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics addr is required when metrics are enabled")
	}

	return nil
}
