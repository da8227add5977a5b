package domain

import "time"

// ExecutionResult wraps details from the command executor.
type ExecutionResult struct {
	Ran        bool
	Output     string
	ExitCode   int
	DurationMS int64
	Err        error
}

// InterpretationRecord captures one interpret/execute outcome for the
// history store.
type InterpretationRecord struct {
	Timestamp  time.Time     `json:"timestamp"`
	SessionID  string        `json:"session_id"`
	Action     Action        `json:"action"`
	Prompt     string        `json:"prompt"`
	Command    string        `json:"command"`
	Model      string        `json:"model"`
	Executed   bool          `json:"executed"`
	ExitCode   int           `json:"exit_code"`
	Verdict    SafetyVerdict `json:"verdict"`
	DurationMS int64         `json:"duration_ms"`
}
