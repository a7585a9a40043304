// Package config holds the driver settings shared by every tool run.
// Values come from defaults, then an optional YAML file, then CLI flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the driver configuration.
type Config struct {
	Workers     int    `yaml:"workers"`       // concurrent partitions (default NumCPU)
	WorkDir     string `yaml:"work_dir"`      // root of per-job staging dirs
	KeepWorkDir bool   `yaml:"keep_work_dir"` // leave staging dirs after the job
	LogLevel    string `yaml:"log_level"`     // debug, info, warn, error
	LogFormat   string `yaml:"log_format"`    // text, json
	Ledger      string `yaml:"ledger"`        // SQLite path; empty disables the run ledger
	ServeFiles  string `yaml:"serve_files"`   // listen address of the file server; empty disables it

	DockerBinary      string `yaml:"docker_binary"`
	SingularityBinary string `yaml:"singularity_binary"`

	Staging StagingConfig `yaml:"staging"`
}

// StagingConfig tunes file transfer to workers.
type StagingConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		WorkDir:   os.TempDir(),
		LogLevel:  "info",
		LogFormat: "text",
		Staging: StagingConfig{
			MaxRetries: 3,
			RetryDelay: time.Second,
			Timeout:    5 * time.Minute,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.Staging.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("staging.max_retries must not be negative"))
	}
	return errors.Join(errs...)
}
