package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.JobName = "scale-30k"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing job name", func(c *Config) { c.JobName = "" }, "job_name"},
		{"bad kind", func(c *Config) { c.Kind = "snapshot" }, "kind"},
		{"empty namespace", func(c *Config) { c.Namespace = "" }, "namespace"},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"negative poll interval", func(c *Config) { c.PollInterval = -time.Second }, "poll_interval"},
		{"empty output dir", func(c *Config) { c.OutputDir = "" }, "output_dir"},
		{"zero rate threshold", func(c *Config) { c.LowRateThreshold = 0 }, "low_rate_threshold"},
		{"negative item threshold", func(c *Config) { c.DegradationItems = -1 }, "degradation_items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantField, cerr.Field)
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "backup", cfg.Kind)
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 5.0, cfg.LowRateThreshold)
	assert.Equal(t, int64(5000), cfg.DegradationItems)
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "velobench.yaml")
	body := `
job_name: scale-300k
kind: restore
poll_interval: 5s
low_rate_threshold: 3.0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(path, &cfg))

	assert.Equal(t, "scale-300k", cfg.JobName)
	assert.Equal(t, "restore", cfg.Kind)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 3.0, cfg.LowRateThreshold)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
	assert.Equal(t, int64(5000), cfg.DegradationItems)
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestLoadFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "velobench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll_interval: often\n"), 0o644))

	cfg := Default()
	err := LoadFile(path, &cfg)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "poll_interval", cerr.Field)
}

func TestLoadFileUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "velobench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pol_interval: 5s\n"), 0o644))

	cfg := Default()
	err := LoadFile(path, &cfg)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}
