// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ctcss/internal/analysis"
	"ctcss/internal/log"
	"ctcss/internal/radio"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Force debug logging.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn", "error".
	LogFile   string          `yaml:"log_file"`  // Log destination while the TUI owns the terminal (empty discards).
	Source    SourceConfig    `yaml:"source"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Stream    StreamConfig    `yaml:"stream"`
	Recording RecordingConfig `yaml:"recording"`
	Display   DisplayConfig   `yaml:"display"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SourceConfig selects where demodulated audio comes from.
type SourceConfig struct {
	Mode            string `yaml:"mode"`              // rtl_fm, file, wav or device.
	RTLFMPath       string `yaml:"rtl_fm_path"`       // rtl_fm executable.
	Target          string `yaml:"target"`            // PMR446 channel (P1-P16) or frequency in MHz.
	Gain            int    `yaml:"gain"`              // Tuner gain in dB.
	PPM             int    `yaml:"ppm"`               // Frequency correction.
	DeviceIndex     int    `yaml:"device_index"`      // RTL-SDR dongle index.
	InputFile       string `yaml:"input_file"`        // Raw PCM or WAV file, "-" for stdin.
	InputDevice     int    `yaml:"input_device"`      // PortAudio device index, -1 for default.
	FramesPerBuffer int    `yaml:"frames_per_buffer"` // PortAudio frames per read.
}

// AnalysisConfig holds the block and tone settings.
type AnalysisConfig struct {
	SampleRate    float64   `yaml:"sample_rate"`    // Hz.
	BlockDuration float64   `yaml:"block_duration"` // Seconds, sample_rate*block_duration must be integral.
	Tones         []float64 `yaml:"tones"`          // Candidate frequencies in Hz, empty selects the CTCSS table.
	Window        string    `yaml:"window"`         // Taper applied before analysis.
}

// StreamConfig tunes the block reader.
type StreamConfig struct {
	MinBackoff   time.Duration `yaml:"min_backoff"`   // First wait after a zero-byte read.
	MaxBackoff   time.Duration `yaml:"max_backoff"`   // Upper bound for the wait.
	StallTimeout time.Duration `yaml:"stall_timeout"` // Report a stall after this long without data, 0 disables.
}

type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputDir  string `yaml:"output_dir"`
	OutputFile string `yaml:"output_file"` // Generated from the start time when empty.
}

type DisplayConfig struct {
	Mode     string `yaml:"mode"`      // auto, tui, plain or none.
	BarWidth int    `yaml:"bar_width"` // Characters for the strongest tone.
}

// TransportConfig holds the optional sinks that publish tone maps.
type TransportConfig struct {
	UDPEnabled       bool   `yaml:"udp_enabled"`
	UDPTargetAddress string `yaml:"udp_target_address"`
	WebSocketEnabled bool   `yaml:"ws_enabled"`
	WebSocketAddress string `yaml:"ws_address"`
	MQTTEnabled      bool   `yaml:"mqtt_enabled"`
	MQTTBroker       string `yaml:"mqtt_broker"` // e.g. tcp://localhost:1883
	MQTTTopic        string `yaml:"mqtt_topic"`
	MQTTClientID     string `yaml:"mqtt_client_id"`
	MQTTUsername     string `yaml:"mqtt_username"`
	MQTTPassword     string `yaml:"mqtt_password"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// configCandidates are searched in order when no path is given.
var configCandidates = []string{
	"ctcss.yaml",
	filepath.Join(os.Getenv("HOME"), ".config", "ctcss", "ctcss.yaml"),
}

// LoadConfig loads configuration from the YAML file at path. If path is
// empty, the default locations are searched and the built-in defaults are
// used when none exists. Environment overrides are applied last, then the
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig is LoadConfig without validation, for callers that layer
// further overrides (command-line flags) before calling Validate.
func ReadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range configCandidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Debugf("configuration: loaded %s", path)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// BlockLength returns the number of samples per analysed block.
func (c *Config) BlockLength() int {
	return int(math.Round(c.Analysis.SampleRate * c.Analysis.BlockDuration))
}

// ToneSet returns the configured candidate tones, or the CTCSS table when
// none are configured.
func (c *Config) ToneSet() (analysis.ToneSet, error) {
	tones := c.Analysis.Tones
	if len(tones) == 0 {
		tones = analysis.CTCSSTones()
	}
	return analysis.NewToneSet(tones, c.Analysis.SampleRate)
}

// Validate checks the configuration. Every failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return invalid("unknown log_level %q", c.LogLevel)
	}

	// Analysis
	a := c.Analysis
	if a.SampleRate <= 0 || math.IsNaN(a.SampleRate) || a.SampleRate > MaxSampleRate {
		return invalid("analysis.sample_rate must be in (0, %d], got %v", MaxSampleRate, a.SampleRate)
	}
	if a.BlockDuration <= 0 || math.IsNaN(a.BlockDuration) || math.IsInf(a.BlockDuration, 0) {
		return invalid("analysis.block_duration must be positive, got %v", a.BlockDuration)
	}
	product := a.SampleRate * a.BlockDuration
	if math.Abs(product-math.Round(product)) > 1e-6 {
		return invalid("analysis.sample_rate*block_duration must be a whole number of samples, got %v", product)
	}
	if c.BlockLength() < 1 {
		return invalid("analysis block must hold at least one sample")
	}
	if _, err := c.ToneSet(); err != nil {
		return fmt.Errorf("%w: analysis.tones: %w", ErrInvalidConfig, err)
	}
	if _, err := analysis.ParseWindowFunc(a.Window); err != nil {
		return fmt.Errorf("%w: analysis.window: %w", ErrInvalidConfig, err)
	}

	// Source
	switch c.Source.Mode {
	case SourceRTLFM:
		if c.Source.RTLFMPath == "" {
			return invalid("source.rtl_fm_path must be set")
		}
		if a.SampleRate != math.Trunc(a.SampleRate) {
			return invalid("analysis.sample_rate must be a whole number of Hz for rtl_fm, got %v", a.SampleRate)
		}
		if _, err := radio.ParseTarget(c.Source.Target); err != nil {
			return fmt.Errorf("%w: source.target: %w", ErrInvalidConfig, err)
		}
	case SourceFile, SourceWAV:
		if c.Source.InputFile == "" {
			return invalid("source.input_file must be set for mode %q", c.Source.Mode)
		}
	case SourceDevice:
		if c.Source.FramesPerBuffer <= 0 {
			return invalid("source.frames_per_buffer must be positive")
		}
	default:
		return invalid("unknown source.mode %q", c.Source.Mode)
	}

	// Stream
	s := c.Stream
	if s.MinBackoff <= 0 || s.MaxBackoff < s.MinBackoff {
		return invalid("stream backoff must satisfy 0 < min_backoff <= max_backoff")
	}
	if s.StallTimeout < 0 {
		return invalid("stream.stall_timeout must not be negative")
	}

	// Display
	switch c.Display.Mode {
	case DisplayAuto, DisplayTUI, DisplayPlain, DisplayNone:
	default:
		return invalid("unknown display.mode %q", c.Display.Mode)
	}
	if c.Display.BarWidth <= 0 || c.Display.BarWidth > MaxBarWidth {
		return invalid("display.bar_width must be in [1, %d]", MaxBarWidth)
	}

	// Transport
	t := c.Transport
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			return invalid("transport.udp_target_address %q: %v", t.UDPTargetAddress, err)
		}
	}
	if t.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(t.WebSocketAddress); err != nil {
			return invalid("transport.ws_address %q: %v", t.WebSocketAddress, err)
		}
	}
	if t.MQTTEnabled && (t.MQTTBroker == "" || t.MQTTTopic == "") {
		return invalid("transport.mqtt_broker and mqtt_topic must be set when MQTT is enabled")
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			return invalid("metrics.address %q: %v", c.Metrics.Address, err)
		}
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the loaded file.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
			log.Debugf("configuration: overriding debug from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}

	// ENV_SOURCE_{...}
	if val, ok := os.LookupEnv("ENV_SOURCE_MODE"); ok {
		c.Source.Mode = val
	}
	if val, ok := os.LookupEnv("ENV_SOURCE_TARGET"); ok {
		c.Source.Target = val
	}
	if val, ok := os.LookupEnv("ENV_RTL_FM_PATH"); ok {
		c.Source.RTLFMPath = val
	}

	// ENV_ANALYSIS_{...}
	if val, ok := os.LookupEnv("ENV_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Analysis.SampleRate = f
		}
	}
	if val, ok := os.LookupEnv("ENV_BLOCK_DURATION"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Analysis.BlockDuration = f
		}
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}

	// ENV_MQTT_{...}
	if val, ok := os.LookupEnv("ENV_MQTT_BROKER"); ok {
		c.Transport.MQTTBroker = val
		c.Transport.MQTTEnabled = val != ""
	}
	if val, ok := os.LookupEnv("ENV_MQTT_PASSWORD"); ok {
		c.Transport.MQTTPassword = val
	}

	if val, ok := os.LookupEnv("ENV_METRICS_ADDRESS"); ok {
		c.Metrics.Address = val
		c.Metrics.Enabled = val != ""
	}
}
