package config

import "time"

// Config is the complete gwiz configuration for one machine.
type Config struct {
	Machine  MachineConfig     `yaml:"machine"`
	Display  DisplayConfig     `yaml:"display"`
	Log      LogConfig         `yaml:"log"`
	Audit    AuditConfig       `yaml:"audit"`
	API      APIConfig         `yaml:"api,omitempty"`
	Macros   map[string]string `yaml:"macros,omitempty"`
	Poll     []PollConfig      `yaml:"poll,omitempty"`
	Commands map[string]string `yaml:"commands,omitempty"`

	// SourcePath is the absolute path the config was read from.
	SourcePath string `yaml:"-"`
}

// Transport kinds.
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
	TransportSim    = "sim"
)

// MachineConfig describes the controller and how to reach it.
type MachineConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`
	Port      string `yaml:"port,omitempty"`
	Address   string `yaml:"address,omitempty"`
	BaudRate  int    `yaml:"baud_rate,omitempty"`
	// InFlightCapacity is the firmware command buffer depth (Marlin BUFSIZE).
	InFlightCapacity int      `yaml:"in_flight_capacity"`
	MaxTemp          int      `yaml:"max_temp"`
	MaxPower         int      `yaml:"max_power"`
	Heaters          []string `yaml:"heaters"`
	StartPaused      bool     `yaml:"start_paused,omitempty"`
	WaitForStart     bool     `yaml:"wait_for_start,omitempty"`
}

// DisplayConfig sizes the TUI panes.
type DisplayConfig struct {
	AckLen     int `yaml:"ack_len"`
	PendingLen int `yaml:"pending_len"`
}

// LogConfig controls the diagnostic log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Path receives the log while the TUI owns the terminal.
	Path string `yaml:"path"`
}

// AuditConfig controls where acknowledged commands are recorded.
type AuditConfig struct {
	// MachineLog is the replayable G-code record. Empty selects
	// "<machine name>.out".
	MachineLog      string `yaml:"machine_log"`
	MachineLogLevel string `yaml:"machine_log_level"`
	DebugLog        string `yaml:"debug_log,omitempty"`
	// Database enables the SQLite audit store when set.
	Database string `yaml:"database,omitempty"`
}

// PollConfig queues Command every Every (plus up to Jitter) while the
// machine runs, typically M105 to keep heater readings fresh.
type PollConfig struct {
	Command string        `yaml:"command"`
	Every   time.Duration `yaml:"every"`
	Jitter  time.Duration `yaml:"jitter,omitempty"`
}

// APIConfig defines the optional HTTP API.
type APIConfig struct {
	Enabled bool       `yaml:"enabled"`
	Listen  string     `yaml:"listen"`
	APIKey  string     `yaml:"api_key"`
	Tokens  []APIToken `yaml:"tokens,omitempty"`
}

// APIToken is a bearer token limited to some scopes (machine:ro,
// machine:rw or *).
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}
