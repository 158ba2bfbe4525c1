package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dokzlo13/rgbwfade/internal/color"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RGBWFADE_TEST_HOST", "192.168.1.50")

	tests := []struct {
		input string
		want  string
	}{
		{"host: ${RGBWFADE_TEST_HOST}", "host: 192.168.1.50"},
		{"host: ${RGBWFADE_TEST_HOST:fallback}", "host: 192.168.1.50"},
		{"host: ${RGBWFADE_TEST_UNSET:fallback}", "host: fallback"},
		{"host: ${RGBWFADE_TEST_UNSET}", "host: "},
		{"host: plain", "host: plain"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
device:
  shelly:
    host: 192.168.1.50
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Device.Driver != DriverShelly {
		t.Errorf("Device.Driver = %q, want %q", cfg.Device.Driver, DriverShelly)
	}
	if cfg.Device.Shelly.URL != "ws://192.168.1.50/rpc" {
		t.Errorf("Device.Shelly.URL = %q", cfg.Device.Shelly.URL)
	}
	if cfg.Fade.Duration.Duration() != 10*time.Second {
		t.Errorf("Fade.Duration = %v, want 10s", cfg.Fade.Duration.Duration())
	}
	if cfg.Fade.Steps != 25 {
		t.Errorf("Fade.Steps = %d, want 25", cfg.Fade.Steps)
	}
	if len(cfg.Fade.Colors) != 3 {
		t.Errorf("len(Fade.Colors) = %d, want 3", len(cfg.Fade.Colors))
	}
	if cfg.Inputs.Toggle != "input:1" || cfg.Inputs.Power != "input:0" || cfg.Inputs.PressEvent != "single_push" {
		t.Errorf("Inputs = %+v, want default bindings", cfg.Inputs)
	}
	if !cfg.Ledger.IsEnabled() {
		t.Error("Ledger.IsEnabled() = false, want true")
	}
	if cfg.Ledger.Retention() != 30*24*time.Hour {
		t.Errorf("Ledger.Retention() = %v, want 720h", cfg.Ledger.Retention())
	}
	if cfg.EventBus.GetWorkers() != 1 {
		t.Errorf("EventBus.GetWorkers() = %d, want 1", cfg.EventBus.GetWorkers())
	}
	if cfg.ShutdownTimeout.Duration() != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout.Duration())
	}
}

func TestParse_Colors(t *testing.T) {
	cfg, err := Parse([]byte(`
device:
  shelly:
    url: ws://shelly.local/rpc
fade:
  duration: 4s
  steps: 8
  colors:
    - {r: 200, g: 0, b: 0}
    - {hex: "#00c800", gain: 60}
    - {name: warm, r: 255, g: 120, b: 0, white: 20}
ledger:
  enabled: false
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	seq, err := color.FromSpecs(cfg.Fade.Colors)
	if err != nil {
		t.Fatalf("FromSpecs() error = %v", err)
	}
	want := []color.Target{
		{R: 200, Gain: 100},
		{G: 200, Gain: 60},
		{R: 255, G: 120, Gain: 100, White: 20},
	}
	for i, w := range want {
		if got := seq.At(i); got != w {
			t.Errorf("color %d = %v, want %v", i, got, w)
		}
	}
	if cfg.Ledger.IsEnabled() {
		t.Error("Ledger.IsEnabled() = true, want false")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing shelly host",
			yaml:    `fade: {steps: 5}`,
			wantErr: "device.shelly.host",
		},
		{
			name:    "unknown driver",
			yaml:    `device: {driver: zigbee}`,
			wantErr: "unknown device.driver",
		},
		{
			name:    "hue without light",
			yaml:    `device: {driver: hue, hue: {bridge: 10.0.0.2, token: abc}}`,
			wantErr: "device.hue.light",
		},
		{
			name:    "negative steps",
			yaml:    `device: {shelly: {host: x}}` + "\n" + `fade: {steps: -1}`,
			wantErr: "fade.steps",
		},
		{
			name:    "step shorter than a millisecond",
			yaml:    `device: {shelly: {host: x}}` + "\n" + `fade: {duration: 10ms, steps: 25}`,
			wantErr: "one millisecond per step",
		},
		{
			name:    "empty color list",
			yaml:    `device: {shelly: {host: x}}` + "\n" + `fade: {colors: []}`,
			wantErr: "fade.colors",
		},
		{
			name:    "channel out of range",
			yaml:    `device: {shelly: {host: x}}` + "\n" + `fade: {colors: [{r: 300}]}`,
			wantErr: "out of range",
		},
		{
			name:    "same input bound twice",
			yaml:    `device: {shelly: {host: x}}` + "\n" + `inputs: {toggle: "input:0", power: "input:0"}`,
			wantErr: "inputs.toggle",
		},
		{
			name:    "negative cleanup interval",
			yaml:    `device: {shelly: {host: x}}` + "\n" + `ledger: {cleanup_interval: -1h}`,
			wantErr: "ledger.cleanup_interval",
		},
		{
			name:    "negative retention",
			yaml:    `device: {shelly: {host: x}}` + "\n" + `ledger: {retention_days: -3}`,
			wantErr: "ledger.retention_days",
		},
		{
			name:    "bad duration",
			yaml:    `fade: {duration: soon}`,
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_EmptyColorsIsEmptySequence(t *testing.T) {
	_, err := Parse([]byte(`device: {shelly: {host: x}}` + "\n" + `fade: {colors: []}`))
	if !errors.Is(err, color.ErrEmptySequence) {
		t.Errorf("Parse() error = %v, want %v", err, color.ErrEmptySequence)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("RGBWFADE_TEST_SHELLY", "10.0.0.7")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "device:\n  shelly:\n    host: ${RGBWFADE_TEST_SHELLY}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Shelly.Host != "10.0.0.7" {
		t.Errorf("Device.Shelly.Host = %q, want 10.0.0.7", cfg.Device.Shelly.Host)
	}
}
