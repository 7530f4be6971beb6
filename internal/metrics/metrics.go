// SPDX-License-Identifier: MIT

// Package metrics exposes the monitor's tone powers and stream counters as
// Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ctcss/internal/analysis"
	"ctcss/internal/log"
	"ctcss/internal/stream"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ctcss"

// Metrics holds all collectors. Each instance owns its registry so several
// can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	tonePower    *prometheus.GaugeVec // Power per candidate frequency in the latest block.
	peakTone     prometheus.Gauge     // Frequency of the strongest tone in the latest block.
	level        prometheus.Gauge     // Block RMS level in dBFS.
	stalled      prometheus.Gauge     // 1 while the source is stalled.
	blocks       prometheus.Counter
	bytes        prometheus.Counter
	droppedBytes prometheus.Counter
	zeroReads    prometheus.Counter
	stalls       prometheus.Counter
	sinkErrors   prometheus.Counter
	scanDuration prometheus.Histogram

	last stream.Stats // counters already exported, for delta updates
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tonePower: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tone_power",
			Help:      "Relative power of each candidate tone in the latest block",
		}, []string{"frequency"}),
		peakTone: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peak_tone_hz",
			Help:      "Frequency of the strongest candidate tone in the latest block",
		}),
		level: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_level_dbfs",
			Help:      "RMS level of the latest block in dBFS",
		}),
		stalled: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_stalled",
			Help:      "1 while the sample source has stopped delivering data",
		}),
		blocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Complete blocks analysed",
		}),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_bytes_total",
			Help:      "Bytes read from the sample source",
		}),
		droppedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_bytes_total",
			Help:      "Bytes of partial final blocks that were discarded",
		}),
		zeroReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zero_reads_total",
			Help:      "Reads that returned no data",
		}),
		stalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stalls_total",
			Help:      "Stall episodes of the sample source",
		}),
		sinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed deliveries of tone maps to sinks",
		}),
		scanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Time spent computing the tone map of one block",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveToneMap records the readings of one block and how long it took to
// compute them.
func (m *Metrics) ObserveToneMap(tm analysis.ToneMap, scan time.Duration) {
	for _, r := range tm.Readings {
		m.tonePower.WithLabelValues(FrequencyLabel(r.Frequency)).Set(r.Power)
	}
	if peak, ok := tm.Peak(); ok {
		m.peakTone.Set(peak.Frequency)
	}
	m.level.Set(tm.Level)
	m.scanDuration.Observe(scan.Seconds())
}

// ObserveStream brings the counters up to date with a reader snapshot.
// Snapshots must be monotonic.
func (m *Metrics) ObserveStream(s stream.Stats) {
	m.blocks.Add(float64(s.Blocks - m.last.Blocks))
	m.bytes.Add(float64(s.Bytes - m.last.Bytes))
	m.droppedBytes.Add(float64(s.DroppedBytes - m.last.DroppedBytes))
	m.zeroReads.Add(float64(s.ZeroReads - m.last.ZeroReads))
	m.stalls.Add(float64(s.Stalls - m.last.Stalls))
	m.last = s
}

func (m *Metrics) SetStalled(stalled bool) {
	if stalled {
		m.stalled.Set(1)
		return
	}
	m.stalled.Set(0)
}

func (m *Metrics) SinkError() {
	m.sinkErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infof("Metrics: serving on %s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// FrequencyLabel formats a tone frequency the way it appears in labels.
func FrequencyLabel(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}
