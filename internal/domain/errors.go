package domain

import "errors"

// Backend sentinel outcomes. The interpreter maps the model's refusal
// markers onto these so callers can branch without string matching.
var (
	ErrUnsafeRequest  = errors.New("request judged unsafe by backend")
	ErrUnclearRequest = errors.New("request unclear, rephrase required")
)
