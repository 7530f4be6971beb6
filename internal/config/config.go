// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the monitor. The analysis defaults reproduce the
// classic setup: 12 kHz demodulated audio analysed in one-second blocks.
const (
	// Analysis
	DefaultSampleRate    = 12000 // Hz, rtl_fm output rate
	DefaultBlockDuration = 1.0   // seconds per analysed block
	DefaultWindow        = "rectangular"

	// Source
	DefaultSourceMode      = SourceRTLFM
	DefaultRTLFMPath       = "rtl_fm"
	DefaultTarget          = "P1"
	DefaultGain            = 40
	DefaultInputDevice     = -1 // PortAudio system default
	DefaultFramesPerBuffer = 1024

	// Stream
	DefaultMinBackoff   = 5 * time.Millisecond
	DefaultMaxBackoff   = 250 * time.Millisecond
	DefaultStallTimeout = 3 * time.Second

	// Display
	DefaultDisplayMode = DisplayAuto
	DefaultBarWidth    = 50

	// Transport
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultWebSocketAddress = ":8080"
	DefaultMQTTTopic        = "ctcss/tones"
	DefaultMetricsAddress   = ":9100"

	// Limits
	MaxSampleRate = 192000
	MaxBarWidth   = 500
)

// Source modes.
const (
	SourceRTLFM  = "rtl_fm"
	SourceFile   = "file"
	SourceWAV    = "wav"
	SourceDevice = "device"
)

// Display modes.
const (
	DisplayAuto  = "auto"
	DisplayTUI   = "tui"
	DisplayPlain = "plain"
	DisplayNone  = "none"
)

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Source: SourceConfig{
			Mode:            DefaultSourceMode,
			RTLFMPath:       DefaultRTLFMPath,
			Target:          DefaultTarget,
			Gain:            DefaultGain,
			InputDevice:     DefaultInputDevice,
			FramesPerBuffer: DefaultFramesPerBuffer,
		},
		Analysis: AnalysisConfig{
			SampleRate:    DefaultSampleRate,
			BlockDuration: DefaultBlockDuration,
			Window:        DefaultWindow,
		},
		Stream: StreamConfig{
			MinBackoff:   DefaultMinBackoff,
			MaxBackoff:   DefaultMaxBackoff,
			StallTimeout: DefaultStallTimeout,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
		},
		Display: DisplayConfig{
			Mode:     DefaultDisplayMode,
			BarWidth: DefaultBarWidth,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTargetAddress,
			WebSocketAddress: DefaultWebSocketAddress,
			MQTTTopic:        DefaultMQTTTopic,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
	}
}
