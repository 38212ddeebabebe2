package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Registry.Backend)
	require.Equal(t, "memory", cfg.Queue.Backend)
	require.Equal(t, 128, cfg.Queue.Capacity)
	require.Equal(t, 5*time.Minute, cfg.SweepInterval())
	require.Equal(t, 20, cfg.Scheduler.BatchSize)
	require.Equal(t, time.Second, cfg.DispatchDelay())
	require.Equal(t, 3, cfg.Worker.Concurrency)
	require.Equal(t, 3, cfg.Scraper.NavAttempts)
	require.InEpsilon(t, 0.4, cfg.Discovery.MinConfidence, 1e-9)
	require.Equal(t, 20, cfg.Discovery.MaxLinks)
	require.Equal(t, "none", cfg.Archive.Backend)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
registry:
  backend: postgres
db:
  dsn: postgres://localhost/linkcycle
scheduler:
  sweep_interval_seconds: 60
  batch_size: 5
worker:
  concurrency: 2
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Registry.Backend)
	require.Equal(t, time.Minute, cfg.SweepInterval())
	require.Equal(t, 5, cfg.Scheduler.BatchSize)
	require.Equal(t, 2, cfg.Worker.Concurrency)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "postgres registry without dsn",
			mutate:  func(c *Config) { c.Registry.Backend = "postgres" },
			wantErr: "db.dsn",
		},
		{
			name:    "unknown queue backend",
			mutate:  func(c *Config) { c.Queue.Backend = "kafka" },
			wantErr: "queue.backend",
		},
		{
			name:    "pubsub queue missing subscription",
			mutate:  func(c *Config) { c.Queue.Backend = "pubsub"; c.Queue.ProjectID = "p"; c.Queue.Topic = "t" },
			wantErr: "queue.subscription",
		},
		{
			name:    "auth enabled without key",
			mutate:  func(c *Config) { c.Auth.Enabled = true },
			wantErr: "auth.api_key",
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *Config) { c.Discovery.MinConfidence = 1.5 },
			wantErr: "min_confidence",
		},
		{
			name:    "pubsub publisher missing topic",
			mutate:  func(c *Config) { c.Publish.Enabled = true; c.Publish.ProjectID = "p" },
			wantErr: "publish.topic",
		},
		{
			name:    "local archive without base dir",
			mutate:  func(c *Config) { c.Archive.Backend = "local" },
			wantErr: "archive.base_dir",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tc.mutate(&cfg)
			err = cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
