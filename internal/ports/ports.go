// Package ports defines the interfaces between the dispatch core and the
// infrastructure adapters.
//
// The daemon composes these ports: the session transport hands requests to
// the dispatch service, which consults the context tracker, model registry,
// safety gate, backend interpreter and the persistence stores through the
// contracts below. Concrete implementations live in internal/infrastructure.
package ports

import (
	"context"

	"github.com/doeshing/aiosd/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.aiosd/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// ContextTracker owns one session's environment snapshot. It is exclusive
// to the owning session and needs no internal synchronization.
type ContextTracker interface {
	NeedsRefresh() bool
	Refresh(context.Context)
	AddCommand(cmd string)
	Summarize() string
	Snapshot() domain.SessionContext
}

// ContextFactory creates a tracker for a newly connected peer. Creation is
// best-effort: individual sub-sources that fail leave their field empty.
type ContextFactory interface {
	Create(ctx context.Context, pid, uid int) ContextTracker
}

// Interpreter is the external language-model backend. Generate submits the
// prompt plus context summary and returns the model's text. Sentinel
// outcomes surface as ErrUnsafe / ErrUnclear from the implementation.
type Interpreter interface {
	Generate(ctx context.Context, profile domain.ModelProfile, prompt, contextSummary string) (string, error)
	Chat(ctx context.Context, profile domain.ModelProfile, message, contextSummary string) (string, error)
	CheckStatus(ctx context.Context) error
	ListModels(ctx context.Context) ([]string, error)
}

// ModelRegistry holds configured backend profiles and chooses one per
// request. All methods are safe for concurrent use.
type ModelRegistry interface {
	// SelectForCommand classifies the command and, cooldown permitting,
	// switches the current profile to the best match. The returned profile
	// is the one to use for this request.
	SelectForCommand(command string) domain.ModelProfile
	Current() domain.ModelProfile
	SetModel(name string) error
	UpdateStats(name string, success bool, responseTime float64)
	Profiles() []domain.ModelProfile
	Classify(command string) domain.TaskType
	Save() error
}

// SafetyGate validates a candidate shell command before autonomous
// execution.
type SafetyGate interface {
	Evaluate(command string) domain.SafetyAssessment
}

// CommandExecutor runs shell commands on the host.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) domain.ExecutionResult
}

// FeedbackStore is the append-only, capacity-bounded accept/reject log.
type FeedbackStore interface {
	Record(entry domain.FeedbackEntry) error
	Suggest(natural string) (string, bool)
	ModelStats(model string) domain.FeedbackModelStats
	Entries() []domain.FeedbackEntry
}

// HistoryRepository persists interpretation outcomes.
type HistoryRepository interface {
	Save(record domain.InterpretationRecord) error
	Records(limit int, search string) ([]domain.InterpretationRecord, error)
}

// Logger provides structured logging for the daemon and dispatch layers.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
