// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "ctcss.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.BlockLength() != 12000 {
		t.Errorf("default BlockLength() = %d, want 12000", cfg.BlockLength())
	}
	if cfg.Display.BarWidth != DefaultBarWidth {
		t.Errorf("default bar width = %d, want %d", cfg.Display.BarWidth, DefaultBarWidth)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
source:
  mode: file
  input_file: capture.raw
analysis:
  sample_rate: 8000
  block_duration: 0.5
  tones: [67.0, 100.0, 250.3]
  window: hann
stream:
  min_backoff: 1ms
  max_backoff: 50ms
  stall_timeout: 2s
display:
  mode: plain
  bar_width: 30
transport:
  udp_enabled: true
  udp_target_address: 127.0.0.1:7000
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if got := cfg.BlockLength(); got != 4000 {
		t.Errorf("BlockLength() = %d, want 4000", got)
	}
	set, err := cfg.ToneSet()
	if err != nil {
		t.Fatal(err)
	}
	if set.String() != "67.0,100.0,250.3" {
		t.Errorf("ToneSet() = %s", set)
	}
	if cfg.Stream.MaxBackoff != 50*time.Millisecond || cfg.Stream.StallTimeout != 2*time.Second {
		t.Errorf("durations not parsed: %+v", cfg.Stream)
	}
	// Unset keys keep their defaults.
	if cfg.Source.RTLFMPath != DefaultRTLFMPath || cfg.Source.Gain != DefaultGain {
		t.Errorf("defaults lost: %+v", cfg.Source)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"zero sample rate", "analysis: {sample_rate: 0}"},
		{"negative block", "analysis: {block_duration: -1}"},
		{"fractional block", "analysis: {sample_rate: 12000, block_duration: 0.00001}"},
		{"tone above nyquist", "analysis: {sample_rate: 400, tones: [67.0, 250.3]}"},
		{"duplicate tone", "analysis: {tones: [100.0, 100.0]}"},
		{"unknown window", "analysis: {window: kaiser}"},
		{"unknown source", "source: {mode: sdrplay}"},
		{"file without path", "source: {mode: wav}"},
		{"bad backoff", "stream: {min_backoff: 1s, max_backoff: 1ms}"},
		{"unknown display", "display: {mode: gui}"},
		{"zero bar width", "display: {bar_width: 0}"},
		{"bad udp address", "transport: {udp_enabled: true, udp_target_address: nowhere}"},
		{"mqtt without broker", "transport: {mqtt_enabled: true}"},
		{"bad log level", "log_level: chatty"},
		{"unknown channel", "source: {target: P17}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.content)
			cfg, err := LoadConfig(path)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if cfg != nil {
				t.Errorf("expected nil config on error")
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_SAMPLE_RATE", "8000")
	t.Setenv("ENV_BLOCK_DURATION", "0.25")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.1:9999")
	t.Setenv("ENV_MQTT_BROKER", "tcp://broker:1883")

	path := writeTempConfig(t, "analysis: {sample_rate: 12000}")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if got := cfg.BlockLength(); got != 2000 {
		t.Errorf("BlockLength() = %d, want 2000", got)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.1:9999" {
		t.Errorf("UDP overrides not applied: %+v", cfg.Transport)
	}
	if !cfg.Transport.MQTTEnabled || cfg.Transport.MQTTBroker != "tcp://broker:1883" {
		t.Errorf("MQTT overrides not applied: %+v", cfg.Transport)
	}
}

func TestConfig_DefaultToneSet(t *testing.T) {
	t.Parallel()
	set, err := Default().ToneSet()
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 20 || set.At(0) != 67.0 {
		t.Errorf("default tone set = %s", set)
	}
}

func TestConfig_StreamDefaults(t *testing.T) {
	t.Parallel()
	s := Default().Stream
	if s.MinBackoff != 5*time.Millisecond || s.MaxBackoff != 250*time.Millisecond {
		t.Errorf("backoff defaults = %v..%v, want 5ms..250ms", s.MinBackoff, s.MaxBackoff)
	}
	if s.StallTimeout != 3*time.Second {
		t.Errorf("stall timeout default = %v, want 3s", s.StallTimeout)
	}
}
