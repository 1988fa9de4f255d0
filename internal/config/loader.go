package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinPollInterval bounds how often a poll may fire.
const MinPollInterval = 100 * time.Millisecond

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML machine configuration, applies defaults and validates
// it. ${VAR} references are replaced from the environment before parsing.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// Parse decodes, defaults and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Defaults returns the configuration used for unset fields.
func Defaults() *Config {
	return &Config{
		Machine: MachineConfig{
			Name:             "machine",
			Transport:        TransportSerial,
			Port:             "/dev/ttyACM0",
			BaudRate:         115200,
			InFlightCapacity: 5,
			MaxTemp:          300,
			MaxPower:         127,
			Heaters:          []string{"T", "B"},
		},
		Display: DisplayConfig{
			AckLen:     10,
			PendingLen: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Path:   "./data/gwiz.log",
		},
		Audit: AuditConfig{
			MachineLogLevel: "DEBUG",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "localhost:8080",
		},
	}
}

func applyDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Machine.Name == "" {
		cfg.Machine.Name = d.Machine.Name
	}
	if cfg.Machine.Transport == "" {
		cfg.Machine.Transport = d.Machine.Transport
	}
	cfg.Machine.Transport = strings.ToLower(cfg.Machine.Transport)
	if cfg.Machine.Transport == TransportSerial && cfg.Machine.Port == "" {
		cfg.Machine.Port = d.Machine.Port
	}
	if cfg.Machine.BaudRate == 0 {
		cfg.Machine.BaudRate = d.Machine.BaudRate
	}
	if cfg.Machine.InFlightCapacity == 0 {
		cfg.Machine.InFlightCapacity = d.Machine.InFlightCapacity
	}
	if cfg.Machine.MaxTemp == 0 {
		cfg.Machine.MaxTemp = d.Machine.MaxTemp
	}
	if cfg.Machine.MaxPower == 0 {
		cfg.Machine.MaxPower = d.Machine.MaxPower
	}
	if len(cfg.Machine.Heaters) == 0 {
		cfg.Machine.Heaters = d.Machine.Heaters
	}

	if cfg.Display.AckLen == 0 {
		cfg.Display.AckLen = d.Display.AckLen
	}
	if cfg.Display.PendingLen == 0 {
		cfg.Display.PendingLen = d.Display.PendingLen
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = d.Log.Path
	}

	if cfg.Audit.MachineLog == "" {
		cfg.Audit.MachineLog = cfg.Machine.Name + ".out"
	}
	if cfg.Audit.MachineLogLevel == "" {
		cfg.Audit.MachineLogLevel = d.Audit.MachineLogLevel
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = d.API.Listen
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place and rejected by validate where it
// matters.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	switch cfg.Machine.Transport {
	case TransportSerial:
		if cfg.Machine.Port == "" {
			return fmt.Errorf("machine.port is required for serial transport")
		}
	case TransportTCP:
		if cfg.Machine.Address == "" {
			return fmt.Errorf("machine.address is required for tcp transport")
		}
	case TransportSim:
	default:
		return fmt.Errorf("machine.transport must be one of: serial, tcp, sim (got %q)", cfg.Machine.Transport)
	}

	if cfg.Machine.BaudRate < 0 {
		return fmt.Errorf("machine.baud_rate must be positive")
	}
	if cfg.Machine.InFlightCapacity < 1 {
		return fmt.Errorf("machine.in_flight_capacity must be at least 1")
	}
	if cfg.Display.AckLen < 1 || cfg.Display.PendingLen < 1 {
		return fmt.Errorf("display sizes must be at least 1")
	}
	for _, h := range cfg.Machine.Heaters {
		if h == "" || strings.ContainsAny(h, ": ") {
			return fmt.Errorf("machine.heaters: invalid label %q", h)
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Log.Level)) {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error (got %q)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text (got %q)", cfg.Log.Format)
	}

	for i, p := range cfg.Poll {
		if strings.TrimSpace(p.Command) == "" {
			return fmt.Errorf("poll[%d].command is empty", i)
		}
		if p.Every < MinPollInterval {
			return fmt.Errorf("poll[%d].every must be at least %s", i, MinPollInterval)
		}
		if p.Jitter < 0 {
			return fmt.Errorf("poll[%d].jitter must not be negative", i)
		}
	}

	if cfg.API.Enabled {
		if envVarPattern.MatchString(cfg.API.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey)
			return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
		}
		for i, t := range cfg.API.Tokens {
			if envVarPattern.MatchString(t.Token) {
				matches := envVarPattern.FindStringSubmatch(t.Token)
				return fmt.Errorf("api.tokens[%d]: environment variable ${%s} is not set", i, matches[1])
			}
			if t.Token == "" {
				return fmt.Errorf("api.tokens[%d]: token is empty", i)
			}
		}
		if cfg.API.APIKey == "" && len(cfg.API.Tokens) == 0 {
			return fmt.Errorf("api.api_key or api.tokens is required when api.enabled is true")
		}
	}

	for name, body := range cfg.Macros {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t") {
			return fmt.Errorf("macros: invalid name %q", name)
		}
		if strings.TrimSpace(body) == "" {
			return fmt.Errorf("macros.%s: body is empty", name)
		}
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
