package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
machine:
  name: prusa
  port: /dev/ttyACM1
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Machine.Name != "prusa" {
					t.Error("machine.name not parsed")
				}
				if cfg.Machine.Transport != TransportSerial {
					t.Errorf("transport = %q, want serial", cfg.Machine.Transport)
				}
				if cfg.Machine.BaudRate != 115200 {
					t.Error("default baud rate not applied")
				}
				if cfg.Machine.InFlightCapacity != 5 {
					t.Error("default in-flight capacity not applied")
				}
				if cfg.Audit.MachineLog != "prusa.out" {
					t.Errorf("machine log = %q, want prusa.out", cfg.Audit.MachineLog)
				}
				if len(cfg.Machine.Heaters) != 2 {
					t.Error("default heaters not applied")
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
machine:
  transport: TCP
  address: ${PRINTER_ADDR}
api:
  enabled: true
  api_key: ${GWIZ_KEY}
`,
			env: map[string]string{
				"PRINTER_ADDR": "octo.local:2323",
				"GWIZ_KEY":     "secret123",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Machine.Transport != TransportTCP {
					t.Errorf("transport = %q, want tcp", cfg.Machine.Transport)
				}
				if cfg.Machine.Address != "octo.local:2323" {
					t.Errorf("address = %q", cfg.Machine.Address)
				}
				if cfg.API.APIKey != "secret123" {
					t.Errorf("api key = %q", cfg.API.APIKey)
				}
			},
		},
		{
			name: "unset api key variable",
			yaml: `
machine:
  transport: sim
api:
  enabled: true
  api_key: ${GWIZ_TEST_UNSET_KEY}
`,
			wantErr: "GWIZ_TEST_UNSET_KEY",
		},
		{
			name: "scoped tokens without api key",
			yaml: `
machine:
  transport: sim
api:
  enabled: true
  tokens:
    - token: viewer
      scopes: [machine:ro]
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if len(cfg.API.Tokens) != 1 || cfg.API.Tokens[0].Scopes[0] != "machine:ro" {
					t.Errorf("tokens = %+v", cfg.API.Tokens)
				}
			},
		},
		{
			name: "api needs a credential",
			yaml: `
machine:
  transport: sim
api:
  enabled: true
`,
			wantErr: "api.api_key or api.tokens",
		},
		{
			name: "empty token",
			yaml: `
machine:
  transport: sim
api:
  enabled: true
  tokens:
    - scopes: [machine:ro]
`,
			wantErr: "api.tokens[0]",
		},
		{
			name: "poll durations",
			yaml: `
machine:
  transport: sim
poll:
  - command: M105
    every: 2s
    jitter: 250ms
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if len(cfg.Poll) != 1 {
					t.Fatalf("poll = %+v", cfg.Poll)
				}
				if cfg.Poll[0].Every != 2*time.Second || cfg.Poll[0].Jitter != 250*time.Millisecond {
					t.Errorf("poll durations = %v / %v", cfg.Poll[0].Every, cfg.Poll[0].Jitter)
				}
			},
		},
		{
			name: "poll too fast",
			yaml: `
machine:
  transport: sim
poll:
  - command: M105
    every: 10ms
`,
			wantErr: "poll[0].every",
		},
		{
			name: "tcp requires address",
			yaml: `
machine:
  transport: tcp
`,
			wantErr: "machine.address",
		},
		{
			name: "unknown transport",
			yaml: `
machine:
  transport: bluetooth
`,
			wantErr: "machine.transport",
		},
		{
			name: "bad log level",
			yaml: `
machine:
  transport: sim
log:
  level: loud
`,
			wantErr: "log.level",
		},
		{
			name: "macros and commands",
			yaml: `
machine:
  transport: sim
macros:
  home: G28
  heat: "M104 S{}\nM140 S{}"
commands:
  G28: Auto home
  M104: Set hotend temperature
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Macros["heat"] != "M104 S{}\nM140 S{}" {
					t.Errorf("macro heat = %q", cfg.Macros["heat"])
				}
				if cfg.Commands["G28"] != "Auto home" {
					t.Error("commands not parsed")
				}
			},
		},
		{
			name: "empty macro body",
			yaml: `
machine:
  transport: sim
macros:
  nothing: "  "
`,
			wantErr: "macros.nothing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if cfg.SourcePath != path {
				t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.Machine.Name = "ender"
	cfg.Commands = map[string]string{"G28": "Auto home"}

	data, err := Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal()) failed: %v\n%s", err, data)
	}
	if got.Machine.Name != "ender" || got.Commands["G28"] != "Auto home" {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestDiscoverConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gwiz.yaml")
	if err := os.WriteFile(path, []byte("machine: {transport: sim}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GWIZ_CONFIG", path)

	got, err := DiscoverConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if got != path {
		t.Errorf("DiscoverConfigPath() = %q, want %q", got, path)
	}

	t.Setenv("GWIZ_CONFIG", path+".missing")
	if _, err := DiscoverConfigPath(); err == nil {
		t.Error("expected error for missing $GWIZ_CONFIG target")
	}
}
