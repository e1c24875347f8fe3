package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"SpotVault/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("http_addr: got %s, want :8080", cfg.Server.HTTPAddr)
	}
	if cfg.Persist.BatchSize != 500 {
		t.Errorf("batch_size: got %d, want 500", cfg.Persist.BatchSize)
	}
	if cfg.Persist.FlushTimeout != 50*time.Millisecond {
		t.Errorf("flush_timeout: got %v, want 50ms", cfg.Persist.FlushTimeout)
	}
	if cfg.Snapshot.Interval != 100_000 {
		t.Errorf("snapshot interval: got %d, want 100_000", cfg.Snapshot.Interval)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
postgres:
  dsn: postgres://override:pw@dbhost:5432/vault?sslmode=disable
server:
  http_addr: ":9000"
persist:
  batch_size: 128
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Postgres.DSN != "postgres://override:pw@dbhost:5432/vault?sslmode=disable" {
		t.Errorf("dsn not overridden: %s", cfg.Postgres.DSN)
	}
	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("http_addr: got %s, want :9000", cfg.Server.HTTPAddr)
	}
	if cfg.Persist.BatchSize != 128 {
		t.Errorf("batch_size: got %d, want 128", cfg.Persist.BatchSize)
	}
	// Untouched values keep defaults
	if cfg.Server.GRPCAddr != ":9090" {
		t.Errorf("grpc_addr: got %s, want :9090", cfg.Server.GRPCAddr)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SPOTVAULT_NATS_URL", "nats://broker:4222")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats url: got %s, want nats://broker:4222", cfg.NATS.URL)
	}
}

func TestLoad_InvalidBatchSize_Fails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("persist:\n  batch_size: -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for negative batch size")
	}
}

func TestLoad_MissingFile_Fails(t *testing.T) {
	if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
