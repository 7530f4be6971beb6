// SPDX-License-Identifier: MIT
package cmd

import (
	"io"

	"ctcss/internal/audio"
	"ctcss/internal/config"
	"ctcss/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected on the command line. The empty command runs the monitor.
const (
	CommandMonitor  = ""
	CommandChannels = "channels"
	CommandTones    = "tones"
	CommandDevices  = "devices"
)

// Options is the result of parsing the command line.
type Options struct {
	Config  *config.Config // nil when only help or version was printed
	Command string
	Pick    bool // devices: choose interactively
}

// flagValues receives the raw flag values. Only flags the user set are
// copied onto the configuration.
type flagValues struct {
	configPath  string
	source      string
	input       string
	rtlFMPath   string
	device      int
	dongle      int
	sampleRate  float64
	block       float64
	gain        int
	ppm         int
	window      string
	display     string
	record      bool
	output      string
	verbose     bool
	pickDevices bool
}

// ParseArgs parses args (without the program name) and loads the
// configuration they point to. Help and version output go to out.
func ParseArgs(args []string, out io.Writer) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var flags flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [P1..P16 | frequency-MHz]",
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags, args)
			if err != nil {
				return err
			}
			options.Config = cfg
			options.Command = CommandMonitor
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	for _, sub := range []struct {
		name  string
		short string
	}{
		{CommandChannels, "List the PMR446 channel table"},
		{CommandTones, "List the candidate tones that will be analysed"},
		{CommandDevices, "List available audio input devices"},
	} {
		name := sub.name
		subCmd := &cobra.Command{
			Use:   name,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd, &flags, nil)
				if err != nil {
					return err
				}
				options.Config = cfg
				options.Command = name
				options.Pick = flags.pickDevices
				return nil
			},
		}
		if name == CommandDevices {
			subCmd.Flags().BoolVar(&flags.pickDevices, "pick", false,
				"Choose a device interactively and print the flag to use it")
		}
		rootCmd.AddCommand(subCmd)
	}

	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&flags.configPath, "config", "c", "",
		"Configuration file. Default is ./ctcss.yaml or ~/.config/ctcss/ctcss.yaml")

	// Source Configuration
	pf.StringVarP(&flags.source, "source", "m", config.DefaultSourceMode,
		"Sample source: rtl_fm, file, wav or device")
	pf.StringVarP(&flags.input, "input", "i", "",
		"Input file for the file and wav sources, '-' reads stdin")
	pf.StringVar(&flags.rtlFMPath, "rtl-fm", config.DefaultRTLFMPath,
		"Path to the rtl_fm executable")
	pf.IntVarP(&flags.device, "device", "d", config.DefaultInputDevice,
		"Input device ID for the device source. Use 'devices' command to see available devices.")
	pf.IntVar(&flags.dongle, "dongle", 0,
		"RTL-SDR device index for rtl_fm")
	pf.IntVarP(&flags.gain, "gain", "g", config.DefaultGain,
		"Tuner gain in dB for rtl_fm, 0 selects automatic gain")
	pf.IntVarP(&flags.ppm, "ppm", "p", 0,
		"Frequency correction in ppm for rtl_fm")

	// Analysis Configuration
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.Float64VarP(&flags.block, "block", "b", config.DefaultBlockDuration,
		"Block duration in seconds; sample-rate x block must be a whole number")
	pf.StringVarP(&flags.window, "window", "w", config.DefaultWindow,
		"Window applied before analysis: rectangular, hann, hamming, blackman")

	// Output Configuration
	pf.StringVar(&flags.display, "display", config.DefaultDisplayMode,
		"Display: auto, tui, plain or none")
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Record the analysed audio to a WAV file")
	pf.StringVarP(&flags.output, "output", "o", "",
		"Recording file name. Default is "+audio.RecordingNameFormat+" (UTC)")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// loadConfig reads the configuration file and applies the flags the user
// set explicitly, then validates the result.
func loadConfig(cmd *cobra.Command, f *flagValues, args []string) (*config.Config, error) {
	cfg, err := config.ReadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed

	if len(args) == 1 {
		cfg.Source.Target = args[0]
		if !changed("source") {
			cfg.Source.Mode = config.SourceRTLFM
		}
	}
	if changed("source") {
		cfg.Source.Mode = f.source
	}
	if changed("input") {
		cfg.Source.InputFile = f.input
	}
	if changed("rtl-fm") {
		cfg.Source.RTLFMPath = f.rtlFMPath
	}
	if changed("device") {
		cfg.Source.InputDevice = f.device
	}
	if changed("dongle") {
		cfg.Source.DeviceIndex = f.dongle
	}
	if changed("gain") {
		cfg.Source.Gain = f.gain
	}
	if changed("ppm") {
		cfg.Source.PPM = f.ppm
	}
	if changed("sample-rate") {
		cfg.Analysis.SampleRate = f.sampleRate
	}
	if changed("block") {
		cfg.Analysis.BlockDuration = f.block
	}
	if changed("window") {
		cfg.Analysis.Window = f.window
	}
	if changed("display") {
		cfg.Display.Mode = f.display
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = f.output
		cfg.Recording.Enabled = true
	}
	if changed("verbose") {
		cfg.Debug = f.verbose
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
