package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LegacyCommandsMarker separates settings from the command vocabulary in
// the key=value machine files used before the YAML format.
const LegacyCommandsMarker = "# G-Code starts here"

// LoadLegacy reads a key=value machine file:
//
//	machine_name=prusa
//	serial_port=/dev/ttyACM0
//	baudrate=115200
//	maxtemp=300,100
//	# G-Code starts here
//	G28=Auto home
//
// Unknown settings are reported in the returned warnings.
func LoadLegacy(path string) (*Config, []string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}
	f, err := os.Open(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open legacy config: %w", err)
	}
	defer f.Close()

	cfg := &Config{Commands: map[string]string{}}
	var warnings []string
	inCommands := false

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")

		if !inCommands {
			if line == LegacyCommandsMarker {
				inCommands = true
				continue
			}
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, _ := strings.Cut(line, "=")
			if err := applyLegacySetting(cfg, key, value); err != nil {
				return nil, nil, fmt.Errorf("%s:%d: %w", absPath, lineNo, err)
			}
			if !isLegacySetting(key) {
				warnings = append(warnings, fmt.Sprintf("line %d: unrecognized config option %q", lineNo, key))
			}
			continue
		}

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, desc, ok := strings.Cut(line, "=")
		if !ok {
			return nil, nil, fmt.Errorf("%s:%d: command line must be CMD=description", absPath, lineNo)
		}
		cfg.Commands[strings.TrimSpace(cmd)] = strings.TrimSpace(desc)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read legacy config: %w", err)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.SourcePath = absPath
	return cfg, warnings, nil
}

func isLegacySetting(key string) bool {
	switch key {
	case "machine_name", "serial_port", "baudrate", "maxtemp":
		return true
	}
	return false
}

func applyLegacySetting(cfg *Config, key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "machine_name":
		cfg.Machine.Name = value
	case "serial_port":
		cfg.Machine.Transport = TransportSerial
		cfg.Machine.Port = value
	case "baudrate":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("baudrate: %w", err)
		}
		cfg.Machine.BaudRate = n
	case "maxtemp":
		// maxtemp=<max temperature>,<max heater power>
		parts := strings.Split(value, ",")
		if len(parts) != 2 {
			return fmt.Errorf("maxtemp must be <temp>,<power>")
		}
		temp, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return fmt.Errorf("maxtemp: %w", err)
		}
		power, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("maxtemp: %w", err)
		}
		cfg.Machine.MaxTemp, cfg.Machine.MaxPower = temp, power
	}
	return nil
}
