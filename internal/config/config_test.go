package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "/var/lib/nightshift/queue", cfg.Queue.Root)
				assert.Equal(t, 2*time.Second, cfg.Queue.AllocatorTimeout)
				assert.Equal(t, 30*time.Second, cfg.Worker.PollInterval)
				assert.Equal(t, "/var/lib/nightshift/output", cfg.Worker.OutputDir)
				assert.Equal(t, "nightshift", cfg.App.Name)
			}
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	validQueue := QueueConfig{
		Root:             "/var/lib/nightshift/queue",
		AllocatorTimeout: 2 * time.Second,
	}

	tests := []struct {
		name      string
		config    *Config
		wantErr   bool
		errString string
	}{
		{
			name: "valid config",
			config: &Config{
				Server: ServerConfig{Port: 8080},
				Queue:  validQueue,
			},
			wantErr: false,
		},
		{
			name: "invalid server port - too low",
			config: &Config{
				Server: ServerConfig{Port: 0},
				Queue:  validQueue,
			},
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name: "invalid server port - too high",
			config: &Config{
				Server: ServerConfig{Port: 70000},
				Queue:  validQueue,
			},
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name: "empty queue root",
			config: &Config{
				Server: ServerConfig{Port: 8080},
				Queue:  QueueConfig{AllocatorTimeout: 2 * time.Second},
			},
			wantErr:   true,
			errString: "queue root is required",
		},
		{
			name: "negative allocator timeout",
			config: &Config{
				Server: ServerConfig{Port: 8080},
				Queue: QueueConfig{
					Root:             "/var/lib/nightshift/queue",
					AllocatorTimeout: -time.Second,
				},
			},
			wantErr:   true,
			errString: "allocator_timeout must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	validConfig := func() *Config {
		return &Config{
			Queue: QueueConfig{
				Root:             "/var/lib/nightshift/queue",
				AllocatorTimeout: 2 * time.Second,
			},
			Worker: WorkerConfig{
				MaxJobs:          10,
				JobTimeout:       5 * time.Minute,
				PollInterval:     30 * time.Second,
				OutputDir:        "/var/lib/nightshift/output",
				ArchiveRetention: 30 * 24 * time.Hour,
			},
			Metrics: MetricsConfig{Enabled: true, Addr: ":9091"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "zero max_jobs and job_timeout are allowed",
			mutate: func(c *Config) {
				c.Worker.MaxJobs = 0
				c.Worker.JobTimeout = 0
				c.Worker.ArchiveRetention = 0
			},
			wantErr: false,
		},
		{
			name:      "empty queue root",
			mutate:    func(c *Config) { c.Queue.Root = "" },
			wantErr:   true,
			errString: "queue root is required",
		},
		{
			name:      "negative max_jobs",
			mutate:    func(c *Config) { c.Worker.MaxJobs = -1 },
			wantErr:   true,
			errString: "worker max_jobs must not be negative",
		},
		{
			name:      "negative job_timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = -time.Second },
			wantErr:   true,
			errString: "worker job_timeout must not be negative",
		},
		{
			name:      "zero poll_interval",
			mutate:    func(c *Config) { c.Worker.PollInterval = 0 },
			wantErr:   true,
			errString: "worker poll_interval must be greater than 0",
		},
		{
			name:      "negative archive_retention",
			mutate:    func(c *Config) { c.Worker.ArchiveRetention = -time.Hour },
			wantErr:   true,
			errString: "worker archive_retention must not be negative",
		},
		{
			name:      "metrics enabled without addr",
			mutate:    func(c *Config) { c.Metrics.Addr = "" },
			wantErr:   true,
			errString: "metrics addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing queue root", func(t *testing.T) {
		cfg, err := Load("testdata/missing_queue_root.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue root is required")

		err = cfg.ValidateWorkerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue root is required")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("valid port range", func(t *testing.T) {
		validPorts := []int{1, 80, 443, 8080, 65535}
		for _, port := range validPorts {
			assert.GreaterOrEqual(t, port, MinPort)
			assert.LessOrEqual(t, port, MaxPort)
		}
	})

	t.Run("invalid port range", func(t *testing.T) {
		invalidPorts := []int{0, -1, 65536, 70000}
		for _, port := range invalidPorts {
			valid := port >= MinPort && port <= MaxPort
			assert.False(t, valid, "port %d should be invalid", port)
		}
	})
}
