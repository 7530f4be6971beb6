// SPDX-License-Identifier: MIT
/*
Package monitor implements the run loop of the tone power monitor:
- Reads fixed-length blocks from a sample source
- Computes one ToneMap per block
- Forwards every map to the configured sinks
- Optionally records the analysed audio to WAV

Lifecycle:
- Run owns the source and closes it on every exit path
- Cancelling the context closes the source to release a pending read
- End of stream and cancellation are normal exits
*/
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"ctcss/internal/analysis"
	"ctcss/internal/audio"
	"ctcss/internal/config"
	"ctcss/internal/log"
	"ctcss/internal/metrics"
	"ctcss/internal/radio"
	"ctcss/internal/stream"
	"ctcss/internal/transport"

	"github.com/dustin/go-humanize"
)

// ErrAlreadyRunning is returned when Run is called more than once.
var ErrAlreadyRunning = errors.New("monitor: engine already started")

// Stats is a snapshot of the engine's counters.
type Stats struct {
	stream.Stats
	Maps       uint64        // tone maps delivered to the sinks
	SinkErrors uint64        // failed sink deliveries
	Recorded   time.Duration // audio written to the recording
	Elapsed    time.Duration // time since Run started
}

type Engine struct {
	// Core configuration and collaborators.
	config  *config.Config
	source  radio.Source
	scanner analysis.FixedBlockAnalyzer

	// Optional outputs.
	sinks    []transport.Transport
	recorder *audio.Recorder
	metrics  *metrics.Metrics
	onStall  []stream.StallFunc

	started    atomic.Bool
	startedAt  atomic.Int64
	reader     atomic.Pointer[stream.BlockReader]
	maps       atomic.Uint64
	sinkErrors atomic.Uint64
	closeOnce  sync.Once
}

type Option func(*Engine)

// WithSinks adds transports that receive every ToneMap.
func WithSinks(sinks ...transport.Transport) Option {
	return func(e *Engine) {
		for _, s := range sinks {
			if s != nil {
				e.sinks = append(e.sinks, s)
			}
		}
	}
}

// WithRecorder writes every analysed block to rec. Run closes it on exit.
func WithRecorder(rec *audio.Recorder) Option {
	return func(e *Engine) { e.recorder = rec }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStallHandler adds a callback for source stalls. It runs on a timer
// goroutine and must not block.
func WithStallHandler(fn stream.StallFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.onStall = append(e.onStall, fn)
		}
	}
}

// NewEngine creates an engine that analyses src with scanner. The engine
// takes ownership of src.
func NewEngine(cfg *config.Config, src radio.Source, scanner analysis.FixedBlockAnalyzer, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("monitor: nil config")
	}
	if src == nil {
		return nil, errors.New("monitor: nil source")
	}
	if scanner == nil {
		return nil, errors.New("monitor: nil scanner")
	}
	if scanner.BlockLength() <= 0 {
		return nil, fmt.Errorf("monitor: invalid block length %d", scanner.BlockLength())
	}

	e := &Engine{
		config:  cfg,
		source:  src,
		scanner: scanner,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run processes blocks until the source ends, ctx is cancelled or a read
// fails. It returns nil for the first two. Sink failures are logged and do
// not stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.startedAt.Store(time.Now().UnixNano())
	defer e.closeSource()

	// Closing the source is the only way to release a blocked Read.
	stop := context.AfterFunc(ctx, e.closeSource)
	defer stop()

	reader, err := stream.NewBlockReader(e.source, e.scanner.BlockLength(),
		stream.WithBackoff(e.config.Stream.MinBackoff, e.config.Stream.MaxBackoff),
		stream.WithStallHandler(e.config.Stream.StallTimeout, e.handleStall),
	)
	if err != nil {
		return err
	}
	defer reader.Stop()
	e.reader.Store(reader)

	log.Infof("Engine: analysing %s (%d samples per block)", e.source.Name(), e.scanner.BlockLength())

	recording := e.recorder != nil
	var seq uint64
	for {
		block, err := reader.Next(ctx)
		if err != nil {
			return e.finish(ctx, err)
		}
		seq++

		if recording {
			if err := e.recorder.Write(block); err != nil {
				log.Errorf("Engine: recording failed, disabling: %v", err)
				_ = e.recorder.Close()
				recording = false
			}
		}

		start := time.Now()
		tm, err := e.scanner.Scan(block)
		if err != nil {
			// Complete blocks are never empty.
			return fmt.Errorf("monitor: analyse block %d: %w", seq, err)
		}
		tm.Sequence = seq
		tm.Timestamp = start

		if e.metrics != nil {
			e.metrics.ObserveToneMap(tm, time.Since(start))
			e.metrics.ObserveStream(reader.Stats())
		}

		e.publish(tm)
	}
}

// finish maps the loop's terminal error to Run's result.
func (e *Engine) finish(ctx context.Context, err error) error {
	if e.metrics != nil {
		if r := e.reader.Load(); r != nil {
			e.metrics.ObserveStream(r.Stats())
		}
	}
	if e.recorder != nil {
		if cerr := e.recorder.Close(); cerr != nil {
			log.Errorf("Engine: closing recording: %v", cerr)
		} else {
			log.Infof("Engine: recorded %s to %s", e.recorder.Duration(), e.recorder.Path())
		}
	}

	switch {
	case errors.Is(err, stream.ErrShortBlock):
		log.Warnf("Engine: %v", err)
		return nil
	case errors.Is(err, io.EOF):
		log.Infof("Engine: end of stream from %s", e.source.Name())
		return nil
	case ctx.Err() != nil:
		log.Debugf("Engine: stopped: %v", context.Cause(ctx))
		return nil
	default:
		return fmt.Errorf("monitor: read %s: %w", e.source.Name(), err)
	}
}

func (e *Engine) publish(tm analysis.ToneMap) {
	for _, sink := range e.sinks {
		if err := sink.Send(tm); err != nil {
			e.sinkErrors.Add(1)
			if e.metrics != nil {
				e.metrics.SinkError()
			}
			log.Warnf("Engine: sink %T failed for block %d: %v", sink, tm.Sequence, err)
		}
	}
	e.maps.Add(1)
}

func (e *Engine) handleStall(stalled bool) {
	if stalled {
		var received uint64
		if r := e.reader.Load(); r != nil {
			received = r.Stats().Bytes
		}
		log.Warnf("Engine: %s stalled after %s, waiting for data",
			e.source.Name(), humanize.Bytes(received))
	} else {
		log.Infof("Engine: %s no longer stalled", e.source.Name())
	}

	if e.metrics != nil {
		e.metrics.SetStalled(stalled)
	}
	for _, fn := range e.onStall {
		fn(stalled)
	}
}

func (e *Engine) closeSource() {
	e.closeOnce.Do(func() {
		if err := e.source.Close(); err != nil {
			log.Warnf("Engine: closing %s: %v", e.source.Name(), err)
		}
	})
}

// Close closes every sink. Call it after Run has returned.
func (e *Engine) Close() error {
	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", sink, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the counters. It is safe to call while Run
// is active.
func (e *Engine) Stats() Stats {
	s := Stats{
		Maps:       e.maps.Load(),
		SinkErrors: e.sinkErrors.Load(),
	}
	if r := e.reader.Load(); r != nil {
		s.Stats = r.Stats()
	}
	if e.recorder != nil {
		s.Recorded = e.recorder.Duration()
	}
	if start := e.startedAt.Load(); start != 0 {
		s.Elapsed = time.Since(time.Unix(0, start))
	}
	return s
}
