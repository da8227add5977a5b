// Package history persists interpretation outcomes so users can audit what
// the daemon translated and ran.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/pkg/filesystem"
	"github.com/doeshing/aiosd/internal/ports"
)

// SQLiteStore persists interpretation records in a SQLite database. When the
// database cannot be opened it degrades to the JSONL file store next to it.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	fallback *FileStore
	mu       sync.Mutex
}

// NewSQLiteStore creates (or opens) the database at path, defaulting to
// ~/.aiosd/history/history.db.
func NewSQLiteStore(path string) *SQLiteStore {
	if path == "" {
		path = filepath.Join(filesystem.UserHomeDir(), ".aiosd", "history", "history.db")
	}
	path = filesystem.ExpandPath(path)
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	fallback := NewFileStore(strings.TrimSuffix(path, filepath.Ext(path)) + ".jsonl")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return &SQLiteStore{path: path, fallback: fallback}
	}
	store := &SQLiteStore{db: db, path: path, fallback: fallback}
	if err := store.init(); err != nil {
		store.db = nil
	}
	return store
}

func (s *SQLiteStore) init() error {
	if s.db == nil {
		return os.ErrInvalid
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS interpretations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT,
		session_id TEXT,
		action TEXT,
		prompt TEXT,
		command TEXT,
		model TEXT,
		executed INTEGER,
		exit_code INTEGER,
		verdict TEXT,
		duration_ms INTEGER
	);`)
	return err
}

// Save inserts a new record.
func (s *SQLiteStore) Save(record domain.InterpretationRecord) error {
	if s.db == nil {
		return s.fallback.Save(record)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO interpretations
		(timestamp, session_id, action, prompt, command, model, executed, exit_code, verdict, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.Format(time.RFC3339),
		record.SessionID,
		string(record.Action),
		record.Prompt,
		record.Command,
		record.Model,
		boolToInt(record.Executed),
		record.ExitCode,
		string(record.Verdict),
		record.DurationMS,
	)
	return err
}

// Records returns stored entries, newest first. A positive limit caps the
// result; a non-empty search filters on prompt or command substring.
func (s *SQLiteStore) Records(limit int, search string) ([]domain.InterpretationRecord, error) {
	if s.db == nil {
		return s.fallback.Records(limit, search)
	}
	builder := strings.Builder{}
	builder.WriteString("SELECT timestamp, session_id, action, prompt, command, model, executed, exit_code, verdict, duration_ms FROM interpretations")
	var args []interface{}
	if search != "" {
		builder.WriteString(" WHERE prompt LIKE ? OR command LIKE ?")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	builder.WriteString(" ORDER BY datetime(timestamp) DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	rows, err := s.db.Query(builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.InterpretationRecord
	for rows.Next() {
		var rec domain.InterpretationRecord
		var ts, action, verdict string
		var executed int
		if err := rows.Scan(&ts, &rec.SessionID, &action, &rec.Prompt, &rec.Command, &rec.Model, &executed, &rec.ExitCode, &verdict, &rec.DurationMS); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Timestamp = t
		}
		rec.Action = domain.Action(action)
		rec.Verdict = domain.SafetyVerdict(verdict)
		rec.Executed = executed == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear deletes all stored records.
func (s *SQLiteStore) Clear() error {
	if s.db == nil {
		return s.fallback.Clear()
	}
	_, err := s.db.Exec("DELETE FROM interpretations")
	return err
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.HistoryRepository = (*SQLiteStore)(nil)
