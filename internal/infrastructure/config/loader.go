// Package config loads the daemon configuration from YAML.
package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/pkg/filesystem"
	"github.com/doeshing/aiosd/internal/ports"
)

// FileLoader loads YAML configuration from ~/.aiosd/config.yaml
// (overridable via AIOSD_CONFIG). A missing file yields built-in defaults
// which are also written back so the user has a template to edit. Parse
// failures surface as errors; callers treat them as non-fatal and proceed
// with defaults.
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.resolvePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Default(), err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			if raw, merr := yaml.Marshal(cfg); merr == nil {
				_ = os.WriteFile(path, raw, 0o600)
			}
			return cfg, nil
		}
		return Default(), err
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	return hydrateDefaults(cfg), nil
}

func (l *FileLoader) resolvePath() string {
	if l.overridePath != "" {
		return filesystem.ExpandPath(l.overridePath)
	}
	if custom := os.Getenv("AIOSD_CONFIG"); custom != "" {
		return filesystem.ExpandPath(custom)
	}
	return filepath.Join(filesystem.UserHomeDir(), ".aiosd", "config.yaml")
}

// Default returns the built-in configuration used when no file exists or
// loading fails.
func Default() domain.Config {
	home := filesystem.UserHomeDir()
	return domain.Config{
		ConfigFormatVersion: "1",
		Daemon: domain.DaemonSettings{
			SocketPath: defaultSocketPath(),
			MaxClients: 64,
		},
		Backend: domain.BackendSettings{
			APIURL:         "http://localhost:11434/api",
			DefaultModel:   "codellama:7b-instruct",
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Security: domain.SecuritySettings{
			Bypass:               false,
			RulesFile:            filepath.Join(home, ".aiosd", "safety.yaml"),
			ConfirmationRequired: true,
		},
		Registry: domain.RegistrySettings{
			StateFile:       filepath.Join(home, ".aiosd", "models.json"),
			CooldownSeconds: 300,
		},
		Feedback: domain.FeedbackSettings{
			File:     filepath.Join(home, ".aiosd", "feedback.json"),
			Capacity: 1000,
		},
		History: domain.HistorySettings{
			DatabasePath: filepath.Join(home, ".aiosd", "history", "history.db"),
		},
	}
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	def := Default()
	if cfg.Daemon.SocketPath == "" {
		cfg.Daemon.SocketPath = def.Daemon.SocketPath
	}
	if cfg.Daemon.MaxClients <= 0 {
		cfg.Daemon.MaxClients = def.Daemon.MaxClients
	}
	if cfg.Backend.APIURL == "" {
		cfg.Backend.APIURL = def.Backend.APIURL
	}
	if cfg.Backend.DefaultModel == "" {
		cfg.Backend.DefaultModel = def.Backend.DefaultModel
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = def.Backend.TimeoutSeconds
	}
	if cfg.Backend.MaxRetries <= 0 {
		cfg.Backend.MaxRetries = def.Backend.MaxRetries
	}
	if cfg.Security.RulesFile == "" {
		cfg.Security.RulesFile = def.Security.RulesFile
	}
	if cfg.Registry.StateFile == "" {
		cfg.Registry.StateFile = def.Registry.StateFile
	}
	if cfg.Registry.CooldownSeconds <= 0 {
		cfg.Registry.CooldownSeconds = def.Registry.CooldownSeconds
	}
	if cfg.Feedback.File == "" {
		cfg.Feedback.File = def.Feedback.File
	}
	if cfg.Feedback.Capacity <= 0 {
		cfg.Feedback.Capacity = def.Feedback.Capacity
	}
	if cfg.History.DatabasePath == "" {
		cfg.History.DatabasePath = def.History.DatabasePath
	}
	return cfg
}

// defaultSocketPath prefers the system run directory, falling back to the
// user's home when it is not writable.
func defaultSocketPath() string {
	const system = "/var/run/aiosd.sock"
	if f, err := os.OpenFile("/var/run/.aiosd-probe", os.O_CREATE|os.O_WRONLY, 0o600); err == nil {
		f.Close()
		os.Remove("/var/run/.aiosd-probe")
		return system
	}
	return filepath.Join(filesystem.UserHomeDir(), ".aiosd", "aiosd.sock")
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
