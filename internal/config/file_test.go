package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadFile_EmptyPath(t *testing.T) {
	t.Parallel()
	src, err := LoadFile("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := src.String("JOBKERNEL_FILE_UNSET", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
}

func TestLoadFile_Values(t *testing.T) {
	path := writeConfig(t, `
port: 8181
store_driver: sqlite
dispatcher_command_timeout: 90s
bus_inbox_size: 64
docker_pull_if_missing: false
`)
	t.Setenv("PORT", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DISPATCHER_COMMAND_TIMEOUT", "")
	t.Setenv("BUS_INBOX_SIZE", "")
	t.Setenv("DOCKER_PULL_IF_MISSING", "")

	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := src.String("PORT", "8080"); got != "8181" {
		t.Errorf("Expected 8181, got %q", got)
	}
	if got := src.String("STORE_DRIVER", "file"); got != "sqlite" {
		t.Errorf("Expected sqlite, got %q", got)
	}
	if got := src.Duration("DISPATCHER_COMMAND_TIMEOUT", time.Minute); got != 90*time.Second {
		t.Errorf("Expected 90s, got %v", got)
	}
	if got := src.Int("BUS_INBOX_SIZE", 1024); got != 64 {
		t.Errorf("Expected 64, got %d", got)
	}
	if src.Bool("DOCKER_PULL_IF_MISSING", true) {
		t.Error("Expected pull-if-missing disabled by file")
	}
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store_path: /var/lib/jobs.json\n")
	t.Setenv("STORE_PATH", "/tmp/override.json")

	src, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	cfg := LoadServiceConfig(src)
	if cfg.StorePath != "/tmp/override.json" {
		t.Errorf("Expected env override, got %q", cfg.StorePath)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"invalid yaml", "port: [8080\n"},
		{"nested mapping", "store:\n  driver: sqlite\n"},
		{"list value", "hosts:\n  - a\n  - b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadFile(writeConfig(t, tt.body)); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if _, err := LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSource_NilReadsEnv(t *testing.T) {
	t.Setenv("JOBKERNEL_NIL_SOURCE", "env")
	var src *Source
	if got := src.String("JOBKERNEL_NIL_SOURCE", "default"); got != "env" {
		t.Errorf("Expected env, got %q", got)
	}
}
