package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cannoli.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Workers < 1 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeConfig(t, `
workers: 3
work_dir: /scratch/cannoli
log_format: json
ledger: /var/lib/cannoli/ledger.db
docker_binary: podman
staging:
  max_retries: 5
  retry_delay: 250ms
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 3 || cfg.WorkDir != "/scratch/cannoli" || cfg.LogFormat != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DockerBinary != "podman" || cfg.Ledger != "/var/lib/cannoli/ledger.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Staging.MaxRetries != 5 || cfg.Staging.RetryDelay != 250*time.Millisecond {
		t.Errorf("staging = %+v", cfg.Staging)
	}
	// Untouched keys keep their defaults.
	if cfg.LogLevel != "info" || cfg.Staging.Timeout != 5*time.Minute {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "wrokers: 2\n", "wrokers"},
		{"bad workers", "workers: 0\n", "workers"},
		{"bad format", "log_format: xml\n", "log_format"},
		{"bad duration", "staging:\n  retry_delay: soon\n", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
