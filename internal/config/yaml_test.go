package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLConfigDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	// untouched sections keep defaults
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("driver = %q, want %q", cfg.Store.Driver, DriverSQLite)
	}
	if cfg.Auth.APIKeyHeader != "X-API-Key" {
		t.Errorf("api key header = %q", cfg.Auth.APIKeyHeader)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadYAMLConfigExpandsEnv(t *testing.T) {
	t.Setenv("KEYGATE_TEST_MASTER", "s3cret")
	path := writeConfig(t, "auth:\n  master_key: ${KEYGATE_TEST_MASTER}\n")

	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Auth.MasterKey != "s3cret" {
		t.Errorf("master key = %q, want %q", cfg.Auth.MasterKey, "s3cret")
	}
}

func TestLoadYAMLConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: oracle\n"},
		{"postgres without dsn", "store:\n  driver: postgres\n"},
		{"port out of range", "server:\n  port: 70000\n"},
		{"bad shutdown timeout", "server:\n  shutdown_timeout: soon\n"},
		{"malformed yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadYAMLConfig(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadYAMLConfigMissingFile(t *testing.T) {
	if _, err := LoadYAMLConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestShutdownTimeoutDuration(t *testing.T) {
	d, err := ServerConfig{}.ShutdownTimeoutDuration()
	if err != nil || d != 30*time.Second {
		t.Errorf("empty timeout = %v, %v; want 30s", d, err)
	}
	d, err = ServerConfig{ShutdownTimeout: "5s"}.ShutdownTimeoutDuration()
	if err != nil || d != 5*time.Second {
		t.Errorf("5s timeout = %v, %v", d, err)
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Server.Port != 7700 || cfg.Server.RateLimit != 600 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Server.CORS.Origins) != 1 || cfg.Server.CORS.Origins[0] != "*" {
		t.Errorf("cors origins = %v", cfg.Server.CORS.Origins)
	}
}
