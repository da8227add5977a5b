package domain

// Config mirrors ~/.aiosd/config.yaml.
type Config struct {
	ConfigFormatVersion string           `yaml:"config_format_version"`
	Daemon              DaemonSettings   `yaml:"daemon"`
	Backend             BackendSettings  `yaml:"backend"`
	Security            SecuritySettings `yaml:"security"`
	Registry            RegistrySettings `yaml:"registry"`
	Feedback            FeedbackSettings `yaml:"feedback"`
	History             HistorySettings  `yaml:"history"`
}

// DaemonSettings controls the listening socket and session capacity.
type DaemonSettings struct {
	SocketPath string `yaml:"socket_path"`
	MaxClients int    `yaml:"max_clients"`
}

// BackendSettings configures the language-model HTTP endpoint.
type BackendSettings struct {
	APIURL         string `yaml:"api_url"`
	DefaultModel   string `yaml:"default_model"`
	TimeoutSeconds int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"max_retries"`
}

// SecuritySettings defines safety gate behavior.
type SecuritySettings struct {
	Bypass               bool   `yaml:"bypass"`
	RulesFile            string `yaml:"rules_file"`
	ConfirmationRequired bool   `yaml:"confirmation_required"`
}

// RegistrySettings controls model selection.
type RegistrySettings struct {
	StateFile       string `yaml:"state_file"`
	AutoSwitch      *bool  `yaml:"auto_switch"`
	CooldownSeconds int    `yaml:"switch_cooldown"`
}

// FeedbackSettings controls the learning store.
type FeedbackSettings struct {
	File     string `yaml:"file"`
	Capacity int    `yaml:"capacity"`
}

// HistorySettings controls interpretation history persistence.
type HistorySettings struct {
	DatabasePath string `yaml:"database_path"`
}

// AutoSwitchEnabled resolves the auto-switch toggle, defaulting to on.
func (r RegistrySettings) AutoSwitchEnabled() bool {
	if r.AutoSwitch == nil {
		return true
	}
	return *r.AutoSwitch
}
