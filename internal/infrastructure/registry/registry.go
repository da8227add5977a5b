// Package registry holds the configured model profiles and selects one per
// request based on task type and observed performance.
package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/pkg/filesystem"
	"github.com/doeshing/aiosd/internal/ports"
)

// DefaultCooldown is the minimum interval between automatic model switches.
const DefaultCooldown = 300 * time.Second

var (
	// ErrModelNotFound reports an unknown profile name.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelDisabled reports a profile that exists but is disabled.
	ErrModelDisabled = errors.New("model disabled")
)

// Registry is process-wide shared state; every read-modify-write section
// runs under the mutex.
type Registry struct {
	mu         sync.Mutex
	profiles   []domain.ModelProfile
	current    int
	autoSwitch bool
	cooldown   time.Duration
	lastSwitch time.Time
	stateFile  string
	logger     ports.Logger
	now        func() time.Time
}

// Options configures a Registry.
type Options struct {
	Profiles   []domain.ModelProfile
	StateFile  string
	AutoSwitch bool
	Cooldown   time.Duration
	Logger     ports.Logger
}

// New builds a registry from the given profiles (built-in defaults when
// empty) and merges any persisted state from the state file. A missing or
// unreadable state file is not an error.
func New(opts Options) *Registry {
	profiles := opts.Profiles
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	r := &Registry{
		profiles:   profiles,
		autoSwitch: opts.AutoSwitch,
		cooldown:   cooldown,
		stateFile:  filesystem.ExpandPath(opts.StateFile),
		logger:     opts.Logger,
		now:        time.Now,
	}
	r.loadState()
	return r
}

// Classify implements ports.ModelRegistry.
func (r *Registry) Classify(command string) domain.TaskType {
	return ClassifyTask(command)
}

// SelectForCommand classifies the command and, cooldown permitting,
// switches the current profile to the best-scoring enabled profile
// supporting that task type. The cooldown gate runs before classification:
// within the window the current profile is kept regardless of scores.
func (r *Registry) SelectForCommand(command string) domain.ModelProfile {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.autoSwitch {
		return r.profiles[r.current]
	}
	now := r.now()
	if now.Sub(r.lastSwitch) < r.cooldown {
		return r.profiles[r.current]
	}

	task := ClassifyTask(command)
	best := r.selectBest(task)
	if best != r.current {
		if r.logger != nil {
			r.logger.Info("switching model", map[string]interface{}{
				"from": r.profiles[r.current].Name,
				"to":   r.profiles[best].Name,
				"task": string(task),
			})
		}
		r.current = best
		r.lastSwitch = now
	}
	return r.profiles[r.current]
}

// selectBest returns the index of the enabled profile supporting task with
// the highest composite score, falling back to the first registry entry.
// Caller holds the lock.
func (r *Registry) selectBest(task domain.TaskType) int {
	best := -1
	bestScore := -1.0
	for i, p := range r.profiles {
		if !p.Enabled || !p.SupportsTask(task) {
			continue
		}
		if score := compositeScore(p); score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// compositeScore blends the static performance score with observed latency
// and success rate, plus a small priority bonus.
func compositeScore(p domain.ModelProfile) float64 {
	score := p.PerformanceScore
	if p.AvgResponseTime > 0 {
		score -= p.AvgResponseTime / 10
	}
	if p.TotalRequests() > 0 {
		score = score*0.7 + p.SuccessRate()*0.3
	}
	score += float64(10-p.Priority) * 0.01
	return score
}

// Current returns the active profile.
func (r *Registry) Current() domain.ModelProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[r.current]
}

// SetModel switches to the named profile, distinguishing unknown names
// from disabled profiles.
func (r *Registry) SetModel(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.profiles {
		if p.Name != name {
			continue
		}
		if !p.Enabled {
			return ErrModelDisabled
		}
		r.current = i
		r.lastSwitch = r.now()
		if r.logger != nil {
			r.logger.Info("model set manually", map[string]interface{}{"model": name})
		}
		return nil
	}
	return ErrModelNotFound
}

// UpdateStats records one request outcome for the named profile. The
// running average latency uses newAvg = (oldAvg*(n-1) + latency) / n, and
// once a profile has ten or more total requests its performance score is
// recomputed from the success rate and latency.
func (r *Registry) UpdateStats(name string, success bool, responseTime float64) {
	r.mu.Lock()
	for i := range r.profiles {
		p := &r.profiles[i]
		if p.Name != name {
			continue
		}
		if success {
			p.SuccessCount++
		} else {
			p.FailureCount++
		}
		total := p.TotalRequests()
		if total == 1 {
			p.AvgResponseTime = responseTime
		} else {
			p.AvgResponseTime = (p.AvgResponseTime*float64(total-1) + responseTime) / float64(total)
		}
		if total >= 10 {
			p.PerformanceScore = p.SuccessRate()*0.8 + (1-p.AvgResponseTime/30)*0.2
		}
		break
	}
	r.mu.Unlock()

	if err := r.Save(); err != nil && r.logger != nil {
		r.logger.Warn("failed to persist registry state", map[string]interface{}{"error": err.Error()})
	}
}

// Profiles returns a copy of all profiles.
func (r *Registry) Profiles() []domain.ModelProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ModelProfile(nil), r.profiles...)
}

// persistedState is the durable registry representation.
type persistedState struct {
	Models []persistedModel `json:"models"`
}

type persistedModel struct {
	Name             string  `json:"name"`
	Enabled          bool    `json:"enabled"`
	Priority         int     `json:"priority"`
	PerformanceScore float64 `json:"performance_score"`
	SuccessCount     int     `json:"success_count"`
	FailureCount     int     `json:"failure_count"`
	AvgResponseTime  float64 `json:"avg_response_time"`
}

// Save persists enabled flags, priorities and accumulated stats.
func (r *Registry) Save() error {
	r.mu.Lock()
	state := persistedState{Models: make([]persistedModel, 0, len(r.profiles))}
	for _, p := range r.profiles {
		state.Models = append(state.Models, persistedModel{
			Name:             p.Name,
			Enabled:          p.Enabled,
			Priority:         p.Priority,
			PerformanceScore: p.PerformanceScore,
			SuccessCount:     p.SuccessCount,
			FailureCount:     p.FailureCount,
			AvgResponseTime:  p.AvgResponseTime,
		})
	}
	path := r.stateFile
	r.mu.Unlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loadState merges persisted overrides into the built-in profiles by name.
func (r *Registry) loadState() {
	if r.stateFile == "" {
		return
	}
	data, err := os.ReadFile(r.stateFile)
	if err != nil {
		return
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		if r.logger != nil {
			r.logger.Warn("ignoring corrupt registry state", map[string]interface{}{"path": r.stateFile})
		}
		return
	}
	for _, m := range state.Models {
		for i := range r.profiles {
			if r.profiles[i].Name != m.Name {
				continue
			}
			r.profiles[i].Enabled = m.Enabled
			r.profiles[i].Priority = m.Priority
			if m.PerformanceScore > 0 {
				r.profiles[i].PerformanceScore = m.PerformanceScore
			}
			r.profiles[i].SuccessCount = m.SuccessCount
			r.profiles[i].FailureCount = m.FailureCount
			r.profiles[i].AvgResponseTime = m.AvgResponseTime
			break
		}
	}
}

// DefaultProfiles is the built-in model set used when no configuration
// overrides it.
func DefaultProfiles() []domain.ModelProfile {
	return []domain.ModelProfile{
		{
			Name:             "codellama:7b-instruct",
			Description:      "Code-focused model for development tasks",
			APIURL:           "http://localhost:11434/api",
			MaxTokens:        512,
			Temperature:      0.1,
			TimeoutSeconds:   30,
			TaskTypes:        []domain.TaskType{domain.TaskDevOps, domain.TaskFileOps, domain.TaskSystemOps},
			PerformanceScore: 0.85,
			Priority:         1,
			Enabled:          true,
		},
		{
			Name:             "phi3:mini",
			Description:      "Fast general-purpose model",
			APIURL:           "http://localhost:11434/api",
			MaxTokens:        256,
			Temperature:      0.2,
			TimeoutSeconds:   15,
			TaskTypes:        []domain.TaskType{domain.TaskGeneral, domain.TaskFileOps, domain.TaskProcessOps},
			PerformanceScore: 0.75,
			Priority:         2,
			Enabled:          true,
		},
		{
			Name:             "llama3.2:3b",
			Description:      "Balanced model for mixed tasks",
			APIURL:           "http://localhost:11434/api",
			MaxTokens:        384,
			Temperature:      0.15,
			TimeoutSeconds:   20,
			TaskTypes:        []domain.TaskType{domain.TaskGeneral, domain.TaskNetworkOps, domain.TaskDataOps},
			PerformanceScore: 0.80,
			Priority:         3,
			Enabled:          true,
		},
		{
			Name:             "mistral:7b-instruct",
			Description:      "High-quality model for complex tasks",
			APIURL:           "http://localhost:11434/api",
			MaxTokens:        1024,
			Temperature:      0.1,
			TimeoutSeconds:   45,
			TaskTypes:        []domain.TaskType{domain.TaskSecurityOps, domain.TaskDevOps, domain.TaskSystemOps},
			PerformanceScore: 0.90,
			Priority:         0,
			Enabled:          true,
		},
	}
}

var _ ports.ModelRegistry = (*Registry)(nil)
