// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"ctcss/cmd"
	"ctcss/internal/analysis"
	"ctcss/internal/audio"
	"ctcss/internal/config"
	"ctcss/internal/log"
	"ctcss/internal/metrics"
	"ctcss/internal/monitor"
	"ctcss/internal/radio"
	"ctcss/internal/transport"
	"ctcss/internal/transport/udp"
	"ctcss/internal/tui"
	"ctcss/pkg/build"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

// main is the entry point for the tone monitor.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands if requested
//   - Open the sample source, sinks and optional recorder
//
// 2. Concurrent Phase (Hot Path):
//   - Run the engine until the stream ends or a signal arrives
//   - Serve metrics if enabled
//   - Drive the full-screen histogram on the main goroutine
//
// 3. Shutdown Phase (Cold Path):
//   - Close sinks and the recording
//   - Print a summary of the session
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		log.Fatal(err)
	}

	// One thread for the engine, one for UI and I/O.
	runtime.GOMAXPROCS(2)

	opts, err := cmd.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	if opts.Config == nil {
		return // help or version
	}
	cfg := opts.Config
	configureLogging(cfg)

	if opts.Command != cmd.CommandMonitor {
		if err := cmd.ExecuteCommand(opts, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func configureLogging(cfg *config.Config) {
	level, _ := log.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := uuid.NewString()
	log.Debugf("Session %s", session)

	tones, err := cfg.ToneSet()
	if err != nil {
		return err
	}
	window, err := analysis.ParseWindowFunc(cfg.Analysis.Window)
	if err != nil {
		return err
	}
	scanner, err := analysis.NewToneScanner(tones, cfg.Analysis.SampleRate, cfg.BlockLength(), window)
	if err != nil {
		return err
	}

	if cfg.Source.Mode == config.SourceDevice {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
	}

	src, label, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}

	var engineOpts []monitor.Option

	display, hist := openDisplay(cfg, label)
	if display != nil {
		engineOpts = append(engineOpts, monitor.WithSinks(display))
	}
	if hist != nil {
		engineOpts = append(engineOpts, monitor.WithStallHandler(hist.SetStalled))
	}

	sinks, err := openTransports(cfg, session, label)
	if err != nil {
		src.Close()
		return err
	}
	engineOpts = append(engineOpts, monitor.WithSinks(sinks...))

	// abort releases what has been opened so far when startup fails.
	abort := func(err error) error {
		src.Close()
		closeSinks(sinks)
		return err
	}

	var rec *audio.Recorder
	if cfg.Recording.Enabled {
		path := cfg.Recording.OutputFile
		if path == "" {
			path = audio.RecordingPath(cfg.Recording.OutputDir, time.Now())
		} else if cfg.Recording.OutputDir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Recording.OutputDir, path)
		}
		rec, err = audio.NewRecorder(path, int(cfg.Analysis.SampleRate))
		if err != nil {
			return abort(err)
		}
		engineOpts = append(engineOpts, monitor.WithRecorder(rec))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		engineOpts = append(engineOpts, monitor.WithMetrics(m))
	}

	engine, err := monitor.NewEngine(cfg, src, scanner, engineOpts...)
	if err != nil {
		if rec != nil {
			rec.Close()
		}
		return abort(err)
	}

	log.Infof("Monitoring %s: %d tones, %s blocks", label, tones.Len(),
		time.Duration(cfg.Analysis.BlockDuration*float64(time.Second)))

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		err := engine.Run(gctx)
		if hist != nil {
			hist.Close()
		}
		return err
	})

	if m != nil {
		g.Go(func() error {
			return m.Serve(gctx, cfg.Metrics.Address)
		})
	}

	if hist != nil {
		// The histogram owns the terminal until the user quits or the
		// stream ends.
		restore := redirectLogs(cfg)
		if err := hist.Run(); err != nil {
			log.Errorf("Display: %v", err)
		}
		cancel()
		restore()
	}

	runErr := g.Wait()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := engine.Close(); err != nil {
		log.Warnf("Error closing sinks: %v", err)
	}
	printSummary(os.Stderr, engine.Stats(), rec)

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// openSource starts the configured sample source and returns it with a
// label for display.
func openSource(ctx context.Context, cfg *config.Config) (radio.Source, string, error) {
	s := cfg.Source
	rate := cfg.Analysis.SampleRate

	switch s.Mode {
	case config.SourceRTLFM:
		target, err := radio.ParseTarget(s.Target)
		if err != nil {
			return nil, "", err
		}
		src, err := radio.StartRTLFM(ctx, radio.RTLFMConfig{
			Path:         s.RTLFMPath,
			FrequencyMHz: target.FrequencyMHz,
			SampleRate:   int(rate),
			Gain:         s.Gain,
			PPM:          s.PPM,
			DeviceIndex:  s.DeviceIndex,
		})
		if err != nil {
			return nil, "", err
		}
		return src, target.String(), nil

	case config.SourceFile:
		src, err := radio.OpenFile(s.InputFile)
		if err != nil {
			return nil, "", err
		}
		return src, src.Name(), nil

	case config.SourceWAV:
		src, err := radio.OpenWAV(s.InputFile, rate)
		if err != nil {
			return nil, "", err
		}
		return src, src.Name(), nil

	case config.SourceDevice:
		src, err := radio.OpenDevice(s.InputDevice, rate, s.FramesPerBuffer)
		if err != nil {
			return nil, "", err
		}
		return src, src.Name(), nil
	}
	return nil, "", fmt.Errorf("unknown source mode %q", s.Mode)
}

// openDisplay resolves the display mode. The histogram is returned
// separately because it must run on the main goroutine.
func openDisplay(cfg *config.Config, label string) (transport.Transport, *tui.Histogram) {
	stdoutTTY := isatty.IsTerminal(os.Stdout.Fd())
	stdinTTY := isatty.IsTerminal(os.Stdin.Fd())

	mode := cfg.Display.Mode
	if mode == config.DisplayAuto {
		// stdin may carry samples, and the TUI needs it for keys.
		usesStdin := cfg.Source.InputFile == "-" &&
			(cfg.Source.Mode == config.SourceFile || cfg.Source.Mode == config.SourceWAV)
		if stdoutTTY && stdinTTY && !usesStdin {
			mode = config.DisplayTUI
		} else {
			mode = config.DisplayPlain
		}
	}

	switch mode {
	case config.DisplayTUI:
		hist := tui.NewHistogram(label, cfg.Display.BarWidth)
		return hist, hist
	case config.DisplayPlain:
		return tui.NewPlainRenderer(os.Stdout, cfg.Display.BarWidth, stdoutTTY), nil
	default:
		return nil, nil
	}
}

// openTransports creates the network sinks that are enabled. On error every
// sink created so far is closed.
func openTransports(cfg *config.Config, session, label string) (sinks []transport.Transport, err error) {
	defer func() {
		if err != nil {
			closeSinks(sinks)
			sinks = nil
		}
	}()

	t := cfg.Transport
	if cfg.Debug {
		sinks = append(sinks, transport.NewLoggingTransport())
	}

	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			return sinks, err
		}
		pub, err := udp.NewPublisher(sender)
		if err != nil {
			sender.Close()
			return sinks, err
		}
		sinks = append(sinks, pub)
	}

	if t.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(t.WebSocketAddress, session, label)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, ws)
	}

	if t.MQTTEnabled {
		mq, err := transport.NewMQTTTransport(transport.MQTTConfig{
			Broker:   t.MQTTBroker,
			Topic:    t.MQTTTopic,
			ClientID: t.MQTTClientID,
			Username: t.MQTTUsername,
			Password: t.MQTTPassword,
		}, session, label)
		if err != nil {
			return sinks, err
		}
		sinks = append(sinks, mq)
	}

	return sinks, nil
}

func closeSinks(sinks []transport.Transport) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Warnf("Error closing sink: %v", err)
		}
	}
}

// redirectLogs sends log output to the configured log file, or discards
// it, while the histogram owns the terminal. The returned func restores
// the previous writer.
func redirectLogs(cfg *config.Config) func() {
	prev := log.Writer()
	var w io.Writer = io.Discard
	var f *os.File

	if cfg.LogFile != "" {
		var err error
		f, err = os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Warnf("Cannot open log file %s, discarding logs: %v", cfg.LogFile, err)
		} else {
			w = f
		}
	}

	log.SetOutput(w)
	return func() {
		log.SetOutput(prev)
		if f != nil {
			f.Close()
		}
	}
}

func printSummary(w io.Writer, s monitor.Stats, rec *audio.Recorder) {
	fmt.Fprintf(w, "\n%d blocks analysed in %s, %s read",
		s.Blocks, s.Elapsed.Round(time.Millisecond), humanize.Bytes(s.Bytes))
	if s.DroppedBytes > 0 {
		fmt.Fprintf(w, ", %s dropped", humanize.Bytes(s.DroppedBytes))
	}
	if s.Stalls > 0 {
		fmt.Fprintf(w, ", %s", english.Plural(int(s.Stalls), "stall", "stalls"))
	}
	if s.SinkErrors > 0 {
		fmt.Fprintf(w, ", %s", english.Plural(int(s.SinkErrors), "sink error", "sink errors"))
	}
	fmt.Fprintln(w)

	if rec != nil && rec.Frames() > 0 {
		fmt.Fprintf(w, "Recording saved to: %s (%s)\n", rec.Path(), s.Recorded.Round(time.Millisecond))
	}
}
