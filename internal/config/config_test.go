package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/replay/data"
  users_dir: "/tmp/replay/users"
server:
  host: "0.0.0.0"
  port: 8080
logging:
  level: "info"
  format: "json"
trading:
  default_commission_rate: 0.0003
  default_min_commission: 5.0
  default_stamp_tax_rate: 0.001
  default_initial_capital: 100000
`)

	tmpFile, err := os.CreateTemp("", "replay-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	os.Unsetenv("DATA_DIR")
	os.Unsetenv("USERS_DIR")
	os.Unsetenv("SERVER_HOST")
	os.Unsetenv("SERVER_PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("LOG_FORMAT")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/replay/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/replay/data")
	}
	if cfg.Storage.UsersDir != "/tmp/replay/users" {
		t.Errorf("Storage.UsersDir = %q, want %q", cfg.Storage.UsersDir, "/tmp/replay/users")
	}

	// -- Server --
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}

	// -- Logging --
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}

	// -- Trading --
	if cfg.Trading.DefaultCommissionRate != 0.0003 {
		t.Errorf("Trading.DefaultCommissionRate = %v, want %v", cfg.Trading.DefaultCommissionRate, 0.0003)
	}
	if cfg.Trading.DefaultMinCommission != 5.0 {
		t.Errorf("Trading.DefaultMinCommission = %v, want %v", cfg.Trading.DefaultMinCommission, 5.0)
	}
	if cfg.Trading.DefaultStampTaxRate != 0.001 {
		t.Errorf("Trading.DefaultStampTaxRate = %v, want %v", cfg.Trading.DefaultStampTaxRate, 0.001)
	}
	if cfg.Trading.DefaultInitialCapital != 100000 {
		t.Errorf("Trading.DefaultInitialCapital = %v, want %v", cfg.Trading.DefaultInitialCapital, 100000.0)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
storage:
  data_dir: "/original/data"
  users_dir: "/original/users"
server:
  port: 8080
`)

	tmpFile, err := os.CreateTemp("", "replay-config-env-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	os.Setenv("DATA_DIR", "/env/data")
	os.Setenv("SERVER_PORT", "9090")
	os.Unsetenv("USERS_DIR")
	os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("DATA_DIR")
	defer os.Unsetenv("SERVER_PORT")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	// users_dir should remain from YAML since no env override was set.
	if cfg.Storage.UsersDir != "/original/users" {
		t.Errorf("Storage.UsersDir = %q, want %q (from YAML)", cfg.Storage.UsersDir, "/original/users")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d (env override)", cfg.Server.Port, 9090)
	}
}
