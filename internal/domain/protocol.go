package domain

// Action identifies the operation requested over the socket.
type Action string

const (
	ActionInterpret  Action = "interpret"
	ActionExecute    Action = "execute"
	ActionStatus     Action = "status"
	ActionSetModel   Action = "set_model"
	ActionGetContext Action = "get_context"
	ActionClassify   Action = "classify"
	ActionChat       Action = "chat"
	ActionFeedback   Action = "feedback"
)

// Status is the response discriminator.
type Status string

const (
	StatusSuccess Status = "success"
	StatusUnsafe  Status = "unsafe"
	StatusUnclear Status = "unclear"
	StatusError   Status = "error"
)

// Request is the wire envelope sent by clients, one JSON object per line.
type Request struct {
	Action      Action `json:"action"`
	Command     string `json:"command,omitempty"`
	Model       string `json:"model,omitempty"`
	Interpreted string `json:"interpreted,omitempty"`
	Accepted    *bool  `json:"accepted,omitempty"`
}

// Response is the wire envelope sent back by the daemon. Fields are
// action-specific; Status is always set.
type Response struct {
	Status             Status          `json:"status"`
	Message            string          `json:"message,omitempty"`
	InterpretedCommand string          `json:"interpreted_command,omitempty"`
	ExecutionResult    string          `json:"execution_result,omitempty"`
	ExitCode           *int            `json:"exit_code,omitempty"`
	ConfirmRequired    bool            `json:"confirm_required,omitempty"`
	FromFeedback       bool            `json:"from_feedback,omitempty"`
	Classification     string          `json:"classification,omitempty"`
	ChatResponse       string          `json:"chat_response,omitempty"`
	Context            *SessionContext `json:"context,omitempty"`
	DaemonStatus       string          `json:"daemon_status,omitempty"`
	BackendStatus      string          `json:"backend_status,omitempty"`
	CurrentModel       string          `json:"current_model,omitempty"`
	AvailableModels    []ModelProfile  `json:"available_models,omitempty"`
	SafetyMode         *bool           `json:"safety_mode,omitempty"`
	ConfirmationMode   *bool           `json:"confirmation_required,omitempty"`
	ActiveSessions     *int            `json:"active_sessions,omitempty"`
	UptimeSeconds      *int64          `json:"uptime_seconds,omitempty"`
}

// ErrorResponse builds an error envelope with a human-readable message.
func ErrorResponse(message string) Response {
	return Response{Status: StatusError, Message: message}
}
