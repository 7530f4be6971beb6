// SPDX-License-Identifier: MIT
package monitor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ctcss/internal/analysis"
	"ctcss/internal/audio"
	"ctcss/internal/config"
	"ctcss/internal/log"
	"ctcss/internal/metrics"
	"ctcss/pkg/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	testRate     = 12000
	testBlockLen = 1200 // 0.1 s
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// testSource wraps a reader as a radio.Source and records Close.
type testSource struct {
	io.Reader
	closer io.Closer
	closed atomic.Int32
}

func (s *testSource) Name() string { return "test" }

func (s *testSource) Close() error {
	s.closed.Add(1)
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Analysis.SampleRate = testRate
	cfg.Analysis.BlockDuration = 0.1
	cfg.Stream.MinBackoff = time.Millisecond
	cfg.Stream.MaxBackoff = 5 * time.Millisecond
	cfg.Stream.StallTimeout = 0
	return cfg
}

func testScanner(t *testing.T) *analysis.ToneScanner {
	t.Helper()
	tones, err := analysis.NewToneSet([]float64{67.0, 100.0, 250.3}, testRate)
	if err != nil {
		t.Fatal(err)
	}
	s, err := analysis.NewToneScanner(tones, testRate, testBlockLen, analysis.Rectangular)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// toneStream returns blocks and a half of a 100 Hz tone as PCM bytes.
func toneStream(blocks int) []byte {
	n := blocks*testBlockLen + testBlockLen/2
	return utils.EncodePCM16LE(utils.GenerateSineWave(n, testRate, 100, 8000))
}

func TestEngineRunFiniteStream(t *testing.T) {
	src := &testSource{Reader: bytes.NewReader(toneStream(3))}
	sink := &utils.MockTransport{}

	e, err := NewEngine(testConfig(), src, testScanner(t), WithSinks(sink))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := src.closed.Load(); got != 1 {
		t.Errorf("source closed %d times, want 1", got)
	}
	if sink.Count() != 3 {
		t.Fatalf("sink received %d maps, want 3", sink.Count())
	}
	for i, v := range sink.Sent {
		tm, ok := v.(analysis.ToneMap)
		if !ok {
			t.Fatalf("sink got %T, want analysis.ToneMap", v)
		}
		if tm.Sequence != uint64(i+1) {
			t.Errorf("map %d sequence = %d", i, tm.Sequence)
		}
		if tm.Timestamp.IsZero() {
			t.Errorf("map %d has no timestamp", i)
		}
		if len(tm.Readings) != 3 || tm.Readings[0].Frequency != 67.0 {
			t.Errorf("map %d readings not in declared order: %+v", i, tm.Readings)
		}
		if peak, _ := tm.Peak(); peak.Frequency != 100.0 {
			t.Errorf("map %d peak = %v Hz, want 100", i, peak.Frequency)
		}
	}

	stats := e.Stats()
	if stats.Blocks != 3 || stats.Maps != 3 {
		t.Errorf("Stats() blocks=%d maps=%d, want 3/3", stats.Blocks, stats.Maps)
	}
	if stats.DroppedBytes != testBlockLen {
		t.Errorf("Stats().DroppedBytes = %d, want %d", stats.DroppedBytes, testBlockLen)
	}
	if stats.Elapsed <= 0 {
		t.Error("Stats().Elapsed not set")
	}
}

func TestEngineRunEmptySource(t *testing.T) {
	src := &testSource{Reader: bytes.NewReader(nil)}
	sink := &utils.MockTransport{}

	e, err := NewEngine(testConfig(), src, testScanner(t), WithSinks(sink))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sink.Count() != 0 {
		t.Errorf("sink received %d maps, want 0", sink.Count())
	}
}

func TestEngineRunReadError(t *testing.T) {
	readErr := errors.New("usb transfer failed")
	src := &testSource{Reader: failingReader{readErr}}

	e, err := NewEngine(testConfig(), src, testScanner(t))
	if err != nil {
		t.Fatal(err)
	}
	err = e.Run(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("Run() error = %v, want %v", err, readErr)
	}
	if src.closed.Load() == 0 {
		t.Error("source not closed after read error")
	}
}

func TestEngineRunCancelReleasesRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := &testSource{Reader: pr, closer: pr}

	e, err := NewEngine(testConfig(), src, testScanner(t))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := src.closed.Load(); got != 1 {
		t.Errorf("source closed %d times, want 1", got)
	}
}

func TestEngineSinkFailureDoesNotStop(t *testing.T) {
	src := &testSource{Reader: bytes.NewReader(toneStream(2))}
	broken := &utils.MockTransport{SendErr: errors.New("connection refused")}
	healthy := &utils.MockTransport{}

	e, err := NewEngine(testConfig(), src, testScanner(t), WithSinks(broken, nil, healthy))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if healthy.Count() != 2 {
		t.Errorf("healthy sink received %d maps, want 2", healthy.Count())
	}
	if got := e.Stats().SinkErrors; got != 2 {
		t.Errorf("SinkErrors = %d, want 2", got)
	}

	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !broken.Closed || !healthy.Closed {
		t.Error("sinks not closed")
	}
}

func TestEngineRunTwice(t *testing.T) {
	src := &testSource{Reader: bytes.NewReader(nil)}
	e, err := NewEngine(testConfig(), src, testScanner(t))
	if err != nil {
		t.Fatal(err)
	}
	_ = e.Run(context.Background())
	if err := e.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestEngineRecorderAndMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.wav")
	rec, err := audio.NewRecorder(path, testRate)
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	src := &testSource{Reader: bytes.NewReader(toneStream(3))}

	e, err := NewEngine(testConfig(), src, testScanner(t), WithRecorder(rec), WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := e.Stats().Recorded; got != 300*time.Millisecond {
		t.Errorf("Recorded = %v, want 300ms", got)
	}
	if info, err := os.Stat(path); err != nil || info.Size() <= 3*testBlockLen*2 {
		t.Errorf("recording not written: %v", err)
	}

	expected := `
# HELP ctcss_blocks_total Complete blocks analysed
# TYPE ctcss_blocks_total counter
ctcss_blocks_total 3
# HELP ctcss_dropped_bytes_total Bytes of partial final blocks that were discarded
# TYPE ctcss_dropped_bytes_total counter
ctcss_dropped_bytes_total 1200
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"ctcss_blocks_total", "ctcss_dropped_bytes_total"); err != nil {
		t.Error(err)
	}
}

func TestEngineStallHandler(t *testing.T) {
	pr, pw := io.Pipe()
	src := &testSource{Reader: pr, closer: pr}
	cfg := testConfig()
	cfg.Stream.StallTimeout = 20 * time.Millisecond

	var mu sync.Mutex
	var events []bool
	stalled := make(chan struct{}, 1)
	onStall := func(s bool) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
		if s {
			select {
			case stalled <- struct{}{}:
			default:
			}
		}
	}

	e, err := NewEngine(cfg, src, testScanner(t), WithStallHandler(onStall))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case <-stalled:
	case <-time.After(5 * time.Second):
		t.Fatal("stall not reported")
	}

	go func() { _, _ = pw.Write(toneStream(1)) }()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 || !events[0] {
		t.Errorf("stall events = %v, want first event true", events)
	}
	if len(events) > 0 && events[len(events)-1] {
		t.Errorf("stall events = %v, want the stall cleared when Run returns", events)
	}
}

func TestNewEngineValidation(t *testing.T) {
	src := &testSource{Reader: bytes.NewReader(nil)}
	scanner := testScanner(t)

	if _, err := NewEngine(nil, src, scanner); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewEngine(testConfig(), nil, scanner); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := NewEngine(testConfig(), src, nil); err == nil {
		t.Error("expected error for nil scanner")
	}
}
