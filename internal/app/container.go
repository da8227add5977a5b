// Package app wires the dependency graph.
package app

import (
	"context"
	"time"

	"github.com/doeshing/aiosd/internal/application/dispatch"
	"github.com/doeshing/aiosd/internal/daemon"
	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/infrastructure/ai"
	"github.com/doeshing/aiosd/internal/infrastructure/config"
	"github.com/doeshing/aiosd/internal/infrastructure/contexttracker"
	"github.com/doeshing/aiosd/internal/infrastructure/executor"
	"github.com/doeshing/aiosd/internal/infrastructure/feedback"
	"github.com/doeshing/aiosd/internal/infrastructure/history"
	"github.com/doeshing/aiosd/internal/infrastructure/registry"
	"github.com/doeshing/aiosd/internal/infrastructure/security"
	"github.com/doeshing/aiosd/internal/pkg/logger"
	"github.com/doeshing/aiosd/internal/ports"
)

// Container holds the wired daemon components.
type Container struct {
	Config       domain.Config
	Server       *daemon.Server
	Dispatch     *dispatch.Service
	Registry     *registry.Registry
	HistoryStore ports.HistoryRepository
	Logger       *logger.ZapLogger
}

// BuildContainer constructs the dependency graph for the daemon.
func BuildContainer(ctx context.Context, verbose bool) (*Container, error) {
	log := logger.New(verbose)

	cfgLoader := config.NewFileLoader("")
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		// The loader hands back built-in defaults alongside the error; a
		// broken config file must not keep the daemon down.
		log.Warn("config load failed, using built-in defaults", map[string]interface{}{
			"error": err.Error(),
		})
	}

	reg := registry.New(registry.Options{
		StateFile:  cfg.Registry.StateFile,
		AutoSwitch: cfg.Registry.AutoSwitchEnabled(),
		Cooldown:   time.Duration(cfg.Registry.CooldownSeconds) * time.Second,
		Logger:     log,
	})

	gate, err := security.NewGate(security.Options{
		RulesFile:            cfg.Security.RulesFile,
		Bypass:               cfg.Security.Bypass,
		ConfirmationRequired: cfg.Security.ConfirmationRequired,
		Logger:               log,
	})
	if err != nil {
		return nil, err
	}

	backend := ai.NewOllamaClient(ai.Options{
		APIURL:     cfg.Backend.APIURL,
		MaxRetries: cfg.Backend.MaxRetries,
		Logger:     log,
	})

	feedbackStore := feedback.NewStore(cfg.Feedback.File, cfg.Feedback.Capacity)
	historyStore := history.NewSQLiteStore(cfg.History.DatabasePath)

	service := &dispatch.Service{
		Registry:      reg,
		Interpreter:   backend,
		Gate:          gate,
		Executor:      executor.NewLocalExecutor(""),
		Feedback:      feedbackStore,
		History:       historyStore,
		Logger:        log,
		Security:      cfg.Security,
		InputClassify: registry.ClassifyInput,
		StartedAt:     time.Now(),
	}

	server := daemon.NewServer(daemon.Options{
		SocketPath:     cfg.Daemon.SocketPath,
		MaxClients:     cfg.Daemon.MaxClients,
		Service:        service,
		ContextFactory: contexttracker.NewFactory(),
		Logger:         log,
	})

	return &Container{
		Config:       cfg,
		Server:       server,
		Dispatch:     service,
		Registry:     reg,
		HistoryStore: historyStore,
		Logger:       log,
	}, nil
}

// Shutdown flushes state that should survive a restart.
func (c *Container) Shutdown() {
	if err := c.Registry.Save(); err != nil {
		c.Logger.Warn("failed to persist registry on shutdown", map[string]interface{}{"error": err.Error()})
	}
	if closer, ok := c.HistoryStore.(interface{ Close() error }); ok {
		closer.Close()
	}
	c.Logger.Sync()
}
