// Package doctor checks a gwiz configuration beyond what loading enforces:
// things that parse but are likely mistakes on a real machine.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/mattjoyce/gwiz/internal/audit"
	"github.com/mattjoyce/gwiz/internal/auth"
	"github.com/mattjoyce/gwiz/internal/config"
	"github.com/mattjoyce/gwiz/internal/console"
	"github.com/mattjoyce/gwiz/internal/vocab"
)

// Thresholds past which a setting is flagged.
const (
	maxSaneInFlight = 32
	maxSaneAckLen   = 500
	minRemoteKeyLen = 16
)

var standardBaudRates = []int{9600, 19200, 38400, 57600, 115200, 230400, 250000, 460800, 500000, 921600, 1000000}

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// PortLister enumerates serial devices.
type PortLister func() ([]string, error)

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg   *config.Config
	ports PortLister
}

// New creates a Doctor. ports may be nil to skip device checks.
func New(cfg *config.Config, ports PortLister) *Doctor {
	return &Doctor{cfg: cfg, ports: ports}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateMachine(r)
	d.validateHeaters(r)
	d.validateAudit(r)
	d.validateMacros(r)
	d.warnPolls(r)
	d.warnMissingDevice(r)
	d.warnDisplay(r)
	d.warnVocabulary(r)
	d.warnAPIExposure(r)
	d.warnLogPath(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateMachine(r *Result) {
	m := d.cfg.Machine
	if m.Name == "" {
		d.addError(r, "machine", "machine.name", "name is required")
	}
	if m.MaxTemp <= 0 {
		d.addError(r, "machine", "machine.max_temp", "max_temp must be positive")
	}
	if m.MaxPower <= 0 {
		d.addError(r, "machine", "machine.max_power", "max_power must be positive")
	}
	if m.InFlightCapacity > maxSaneInFlight {
		d.addWarning(r, "machine", "machine.in_flight_capacity",
			fmt.Sprintf("%d commands in flight exceeds typical firmware buffers; replies may be lost", m.InFlightCapacity))
	}
	if m.Transport == config.TransportSerial && m.BaudRate > 0 && !slices.Contains(standardBaudRates, m.BaudRate) {
		d.addWarning(r, "machine", "machine.baud_rate", fmt.Sprintf("non-standard baud rate %d", m.BaudRate))
	}
	if m.Transport == config.TransportTCP {
		if _, _, err := net.SplitHostPort(m.Address); err != nil {
			d.addError(r, "machine", "machine.address", fmt.Sprintf("address must be host:port: %v", err))
		}
	}
}

func (d *Doctor) validateHeaters(r *Result) {
	seen := make(map[string]bool)
	for _, h := range d.cfg.Machine.Heaters {
		key := strings.ToUpper(h)
		if seen[key] {
			d.addError(r, "machine", "machine.heaters", fmt.Sprintf("duplicate heater label %q", h))
		}
		seen[key] = true
	}
}

func (d *Doctor) validateAudit(r *Result) {
	if _, err := audit.ParseLevel(d.cfg.Audit.MachineLogLevel); err != nil {
		d.addError(r, "audit", "audit.machine_log_level", err.Error())
	}
	if d.cfg.Audit.MachineLog != "" && d.cfg.Audit.MachineLog == d.cfg.Audit.DebugLog {
		d.addError(r, "audit", "audit.debug_log", "debug log must differ from the machine log")
	}
}

// validateMacros expands every macro with placeholder arguments.
func (d *Doctor) validateMacros(r *Result) {
	names := make([]string, 0, len(d.cfg.Macros))
	for name := range d.cfg.Macros {
		names = append(names, name)
	}
	sort.Strings(names)

	table := vocab.New(d.cfg.Commands)
	for _, name := range names {
		body := d.cfg.Macros[name]
		args := make([]string, strings.Count(body, console.MacroPlaceholder))
		for i := range args {
			args[i] = "0"
		}
		cmds, err := console.ExpandMacro(body, args)
		if err != nil {
			d.addError(r, "macros", "macros."+name, err.Error())
			continue
		}
		if table.Len() == 0 {
			continue
		}
		for _, c := range cmds {
			if !c.Transmittable() {
				continue
			}
			if _, ok := table.Describe(string(c)); !ok {
				d.addWarning(r, "macros", "macros."+name,
					fmt.Sprintf("%s is not in the command vocabulary", c.Word()))
			}
		}
	}
}

func (d *Doctor) warnPolls(r *Result) {
	if len(d.cfg.Poll) == 0 || len(d.cfg.Commands) == 0 {
		return
	}
	table := vocab.New(d.cfg.Commands)
	for i, p := range d.cfg.Poll {
		if _, ok := table.Describe(p.Command); !ok {
			d.addWarning(r, "poll", fmt.Sprintf("poll[%d].command", i),
				fmt.Sprintf("%s is not in the command vocabulary", p.Command))
		}
	}
}

func (d *Doctor) warnMissingDevice(r *Result) {
	if d.ports == nil || d.cfg.Machine.Transport != config.TransportSerial {
		return
	}
	ports, err := d.ports()
	if err != nil {
		d.addWarning(r, "machine", "machine.port", fmt.Sprintf("cannot enumerate serial ports: %v", err))
		return
	}
	if slices.Contains(ports, d.cfg.Machine.Port) {
		return
	}
	msg := fmt.Sprintf("device %s not found", d.cfg.Machine.Port)
	if len(ports) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(ports, ", "))
	}
	d.addWarning(r, "machine", "machine.port", msg)
}

func (d *Doctor) warnDisplay(r *Result) {
	if d.cfg.Display.AckLen > maxSaneAckLen {
		d.addWarning(r, "display", "display.ack_len",
			fmt.Sprintf("ack_len %d will not fit on a terminal", d.cfg.Display.AckLen))
	}
}

func (d *Doctor) warnVocabulary(r *Result) {
	if len(d.cfg.Commands) == 0 {
		d.addWarning(r, "commands", "commands", "no command vocabulary; search and inline help are disabled")
	}
}

func (d *Doctor) warnAPIExposure(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("listen must be host:port: %v", err))
		return
	}
	loopback := host == "localhost"
	if ip := net.ParseIP(host); ip != nil {
		loopback = ip.IsLoopback()
	}
	if !loopback && d.cfg.API.APIKey != "" && len(d.cfg.API.APIKey) < minRemoteKeyLen {
		d.addWarning(r, "api", "api.api_key",
			fmt.Sprintf("api listens beyond loopback with a key shorter than %d characters", minRemoteKeyLen))
	}

	seen := make(map[string]bool)
	for i, t := range d.cfg.API.Tokens {
		field := fmt.Sprintf("api.tokens[%d]", i)
		if seen[t.Token] || t.Token == d.cfg.API.APIKey {
			d.addError(r, "api", field, "token is used more than once")
		}
		seen[t.Token] = true
		if len(t.Scopes) == 0 {
			d.addWarning(r, "api", field, "token has no scopes and can only reach /healthz")
		}
		for _, scope := range t.Scopes {
			if !slices.Contains(auth.KnownScopes, strings.TrimSpace(scope)) {
				d.addError(r, "api", field, fmt.Sprintf("unknown scope %q (want one of %s)", scope, strings.Join(auth.KnownScopes, ", ")))
			}
		}
		if !loopback && len(t.Token) < minRemoteKeyLen {
			d.addWarning(r, "api", field,
				fmt.Sprintf("api listens beyond loopback with a token shorter than %d characters", minRemoteKeyLen))
		}
	}
}

func (d *Doctor) warnLogPath(r *Result) {
	if d.cfg.Log.Path == "" {
		return
	}
	dir := filepath.Dir(d.cfg.Log.Path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		d.addWarning(r, "log", "log.path", fmt.Sprintf("directory %s does not exist; it will be created", dir))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
