package domain

import "time"

// FeedbackEntry records a single accept/reject outcome for a past
// interpretation. Entries drive suggestion reuse and per-model statistics.
type FeedbackEntry struct {
	NaturalCommand     string    `json:"natural_command"`
	InterpretedCommand string    `json:"interpreted_command"`
	Accepted           bool      `json:"accepted"`
	ModelUsed          string    `json:"model_used"`
	Timestamp          time.Time `json:"timestamp"`
}

// FeedbackModelStats aggregates outcomes for one model across the store.
type FeedbackModelStats struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}
