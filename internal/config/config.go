// Package config holds the monitor's runtime settings: defaults, optional
// YAML file, and validation. Flags set on the command line override file
// values; validation runs on the merged result before any log file is
// created.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Defaults shared by the monitor and the analyzer. The degradation
// thresholds are deliberately defined once so both tools agree on what
// "degraded" means.
const (
	DefaultNamespace        = "velero"
	DefaultPollInterval     = 10 * time.Second
	DefaultOutputDir        = "./velobench-results"
	DefaultPodSelector      = "deploy=velero"
	DefaultLowRateThreshold = 5.0
	DefaultDegradationItems = 5000
)

// Config is the validated configuration for a monitoring session.
type Config struct {
	JobName          string
	Kind             string
	Namespace        string
	PollInterval     time.Duration
	OutputDir        string
	Verbose          bool
	PodSelector      string
	LowRateThreshold float64
	DegradationItems int64
	Listen           string
	VeleroBinary     string
	KubectlBinary    string
}

// ConfigError reports an invalid or missing setting. Fatal before any
// monitoring output is produced.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Default returns a config populated with the documented defaults and no
// job selected.
func Default() Config {
	return Config{
		Kind:             "backup",
		Namespace:        DefaultNamespace,
		PollInterval:     DefaultPollInterval,
		OutputDir:        DefaultOutputDir,
		PodSelector:      DefaultPodSelector,
		LowRateThreshold: DefaultLowRateThreshold,
		DegradationItems: DefaultDegradationItems,
	}
}

// fileConfig mirrors Config with optional fields so a file only overrides
// what it actually sets. Durations are spelled Go-style ("10s", "1m").
type fileConfig struct {
	JobName          *string  `yaml:"job_name"`
	Kind             *string  `yaml:"kind"`
	Namespace        *string  `yaml:"namespace"`
	PollInterval     *string  `yaml:"poll_interval"`
	OutputDir        *string  `yaml:"output_dir"`
	Verbose          *bool    `yaml:"verbose"`
	PodSelector      *string  `yaml:"pod_selector"`
	LowRateThreshold *float64 `yaml:"low_rate_threshold"`
	DegradationItems *int64   `yaml:"degradation_items"`
	Listen           *string  `yaml:"listen"`
	VeleroBinary     *string  `yaml:"velero_binary"`
	KubectlBinary    *string  `yaml:"kubectl_binary"`
}

// LoadFile merges settings from a YAML file over cfg. Unset file fields
// leave the existing values untouched.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Field: "config", Reason: err.Error()}
	}
	var fc fileConfig
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return &ConfigError{Field: "config", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&cfg.JobName, fc.JobName)
	setString(&cfg.Kind, fc.Kind)
	setString(&cfg.Namespace, fc.Namespace)
	setString(&cfg.OutputDir, fc.OutputDir)
	setString(&cfg.PodSelector, fc.PodSelector)
	setString(&cfg.Listen, fc.Listen)
	setString(&cfg.VeleroBinary, fc.VeleroBinary)
	setString(&cfg.KubectlBinary, fc.KubectlBinary)
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.LowRateThreshold != nil {
		cfg.LowRateThreshold = *fc.LowRateThreshold
	}
	if fc.DegradationItems != nil {
		cfg.DegradationItems = *fc.DegradationItems
	}
	if fc.PollInterval != nil {
		d, err := time.ParseDuration(*fc.PollInterval)
		if err != nil {
			return &ConfigError{Field: "poll_interval", Reason: fmt.Sprintf("parse %q: %v", *fc.PollInterval, err)}
		}
		cfg.PollInterval = d
	}
	return nil
}

// Validate checks the merged configuration. The job name is the only
// required setting; everything else has a default.
func (c *Config) Validate() error {
	if c.JobName == "" {
		return &ConfigError{Field: "job_name", Reason: "required"}
	}
	if c.Kind != "backup" && c.Kind != "restore" {
		return &ConfigError{Field: "kind", Reason: fmt.Sprintf("must be backup or restore, got %q", c.Kind)}
	}
	if c.Namespace == "" {
		return &ConfigError{Field: "namespace", Reason: "must not be empty"}
	}
	if c.PollInterval <= 0 {
		return &ConfigError{Field: "poll_interval", Reason: "must be greater than zero"}
	}
	if c.OutputDir == "" {
		return &ConfigError{Field: "output_dir", Reason: "must not be empty"}
	}
	if c.LowRateThreshold <= 0 {
		return &ConfigError{Field: "low_rate_threshold", Reason: "must be greater than zero"}
	}
	if c.DegradationItems < 0 {
		return &ConfigError{Field: "degradation_items", Reason: "must not be negative"}
	}
	return nil
}
