package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	loader := NewFileLoader(path)

	cfg, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Backend.APIURL != "http://localhost:11434/api" {
		t.Fatalf("api url = %q", cfg.Backend.APIURL)
	}
	if cfg.Daemon.MaxClients != 64 {
		t.Fatalf("max clients = %d", cfg.Daemon.MaxClients)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}

func TestLoadHydratesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := []byte("daemon:\n  socket_path: /tmp/custom.sock\nbackend:\n  timeout: 60\n")
	if err := os.WriteFile(path, partial, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := NewFileLoader(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Daemon.SocketPath != "/tmp/custom.sock" {
		t.Fatalf("socket path = %q", cfg.Daemon.SocketPath)
	}
	if cfg.Backend.TimeoutSeconds != 60 {
		t.Fatalf("timeout = %d", cfg.Backend.TimeoutSeconds)
	}
	// Unset fields fall back to defaults.
	if cfg.Daemon.MaxClients != 64 || cfg.Backend.MaxRetries != 3 {
		t.Fatalf("defaults not hydrated: %+v", cfg)
	}
	if cfg.Feedback.Capacity != 1000 {
		t.Fatalf("feedback capacity = %d", cfg.Feedback.Capacity)
	}
}

func TestLoadParseFailureReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("daemon: [not a mapping"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := NewFileLoader(path).Load(context.Background())
	if err == nil {
		t.Fatal("expected parse error")
	}
	// Callers continue with the returned defaults.
	if cfg.Daemon.MaxClients != 64 {
		t.Fatalf("fallback config = %+v", cfg)
	}
}

func TestEnvOverrideSelectsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	partial := []byte("backend:\n  default_model: mistral:7b-instruct\n")
	if err := os.WriteFile(path, partial, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("AIOSD_CONFIG", path)

	cfg, err := NewFileLoader("").Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Backend.DefaultModel != "mistral:7b-instruct" {
		t.Fatalf("default model = %q", cfg.Backend.DefaultModel)
	}
}

func TestRegistryAutoSwitchDefaultsOn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("registry: {}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := NewFileLoader(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !cfg.Registry.AutoSwitchEnabled() {
		t.Fatal("auto switch should default on")
	}

	if err := os.WriteFile(path, []byte("registry:\n  auto_switch: false\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = NewFileLoader(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Registry.AutoSwitchEnabled() {
		t.Fatal("explicit auto_switch: false ignored")
	}
}
