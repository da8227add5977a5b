package domain

// SafetyVerdict enumerates safety gate outcomes.
type SafetyVerdict string

const (
	VerdictSafe            SafetyVerdict = "safe"
	VerdictBlocked         SafetyVerdict = "blocked"
	VerdictConfirmRequired SafetyVerdict = "confirm_required"
)

// SafetyAssessment is the result of evaluating a candidate shell command.
type SafetyAssessment struct {
	Verdict        SafetyVerdict
	Command        string
	MatchedPattern string
	Reason         string
}

// Blocked reports whether execution must be refused.
func (a SafetyAssessment) Blocked() bool {
	return a.Verdict == VerdictBlocked
}
