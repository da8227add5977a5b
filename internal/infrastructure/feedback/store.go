// Package feedback persists accept/reject outcomes used for suggestion
// reuse and per-model statistics.
package feedback

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/pkg/filesystem"
	"github.com/doeshing/aiosd/internal/ports"
)

// DefaultCapacity bounds the store when no capacity is configured.
const DefaultCapacity = 1000

// Store is a bounded FIFO log persisted as a JSON array on every mutation.
// A crash loses at most the in-flight entry.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int
	entries  []domain.FeedbackEntry
}

// NewStore opens (or creates) the store at path. Unreadable or corrupt
// files start an empty store; persistence errors surface on Record.
func NewStore(path string, capacity int) *Store {
	if path == "" {
		path = filepath.Join(filesystem.UserHomeDir(), ".aiosd", "feedback.json")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{path: filesystem.ExpandPath(path), capacity: capacity}
	s.load()
	return s
}

// Record implements ports.FeedbackStore. At capacity the oldest entry is
// evicted before the append, then the full store is persisted atomically.
func (s *Store) Record(entry domain.FeedbackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if len(s.entries) >= s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity+1:]
	}
	s.entries = append(s.entries, entry)
	return s.persist()
}

// Suggest scans most-recent-first for an accepted entry whose natural text
// matches case-insensitively, returning its interpreted command.
func (s *Store) Suggest(natural string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.Accepted && strings.EqualFold(e.NaturalCommand, natural) {
			return e.InterpretedCommand, true
		}
	}
	return "", false
}

// ModelStats counts accepted and rejected entries for the named model.
func (s *Store) ModelStats(model string) domain.FeedbackModelStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.FeedbackModelStats
	for _, e := range s.entries {
		if e.ModelUsed != model {
			continue
		}
		if e.Accepted {
			stats.Accepted++
		} else {
			stats.Rejected++
		}
	}
	return stats
}

// Entries returns a copy of the current log, oldest first.
func (s *Store) Entries() []domain.FeedbackEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FeedbackEntry(nil), s.entries...)
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var entries []domain.FeedbackEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}
	if len(entries) > s.capacity {
		entries = entries[len(entries)-s.capacity:]
	}
	s.entries = entries
}

// persist writes the whole store through a temp file and rename so readers
// never observe a partial array. Caller holds the lock.
func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ ports.FeedbackStore = (*Store)(nil)
