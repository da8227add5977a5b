package domain

import "time"

// MaxRecentCommands bounds the per-session command history ring.
const MaxRecentCommands = 50

// ContextStaleness is the window after which a snapshot must be refreshed
// before being used to build a prompt.
const ContextStaleness = 5 * time.Second

// SessionContext is a point-in-time snapshot of a session's environment,
// used as backend prompt material and returned by the get_context action.
type SessionContext struct {
	WorkingDir       string            `json:"current_directory"`
	Username         string            `json:"username"`
	Shell            string            `json:"shell"`
	Hostname         string            `json:"hostname"`
	GitBranch        string            `json:"git_branch,omitempty"`
	GitStatus        string            `json:"git_status,omitempty"`
	RecentCommands   []string          `json:"recent_commands"`
	EnvironmentVars  map[string]string `json:"env_vars,omitempty"`
	RunningProcesses string            `json:"running_processes,omitempty"`
	OpenPorts        string            `json:"open_ports,omitempty"`
	DiskUsage        string            `json:"disk_usage,omitempty"`
	LastUpdate       time.Time         `json:"last_update"`
	ProcessID        int               `json:"process_id"`
	UserID           int               `json:"user_id"`
}
