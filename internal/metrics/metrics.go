// ABOUTME: Prometheus metrics for capture, playback and the channel
// ABOUTME: Implements the pipeline recorder interfaces and serves /metrics
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livetalk"

// Metrics contains all collectors for one client process
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	FramesSent    prometheus.Counter
	FramesDropped prometheus.Counter

	// Playback metrics
	ChunksReceived  prometheus.Counter
	ChunksScheduled prometheus.Counter
	ChunksMalformed prometheus.Counter
	Underruns       prometheus.Counter
	TurnsStarted    prometheus.Counter
	TurnsEnded      prometheus.Counter
	ScheduledAhead  prometheus.Gauge
	AheadSeconds    prometheus.Histogram
	Speaking        prometheus.Gauge

	// Channel metrics
	Interruptions prometheus.Counter
	Connections   prometheus.Counter
	ChannelErrors prometheus.Counter

	// Level metrics
	OutputLevel prometheus.Gauge
}

// New creates and registers all collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_sent_total",
			Help:      "Total number of microphone frames sent on the channel",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_dropped_total",
			Help:      "Total number of microphone frames dropped because the channel was closed or failed",
		}),

		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_received_total",
			Help:      "Total number of audio chunks received from the agent",
		}),
		ChunksScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_scheduled_total",
			Help:      "Total number of decoded buffers scheduled on the audio clock",
		}),
		ChunksMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_malformed_total",
			Help:      "Total number of audio chunks skipped because they failed to decode",
		}),
		Underruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_underruns_total",
			Help:      "Total number of times the playback cursor fell behind the clock",
		}),
		TurnsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_turns_started_total",
			Help:      "Total number of agent turns that became audible",
		}),
		TurnsEnded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_turns_ended_total",
			Help:      "Total number of agent turns that finished playing",
		}),
		ScheduledAhead: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_scheduled_ahead_seconds",
			Help:      "Audio scheduled beyond the current clock after the last pass",
		}),
		AheadSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_ahead_seconds",
			Help:      "Distribution of scheduled-ahead audio at each scheduling",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		}),
		Speaking: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_speaking",
			Help:      "1 while agent audio is playing",
		}),

		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_interruptions_total",
			Help:      "Total number of interruption signals received",
		}),
		Connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_connections_total",
			Help:      "Total number of channel connections opened",
		}),
		ChannelErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_errors_total",
			Help:      "Total number of channel errors reported",
		}),

		OutputLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_level",
			Help:      "RMS level of rendered output in [0,1]",
		}),
	}
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// capture.Recorder

func (m *Metrics) FrameSent()    { m.FramesSent.Inc() }
func (m *Metrics) FrameDropped() { m.FramesDropped.Inc() }

// playback.Recorder

func (m *Metrics) ChunkReceived()  { m.ChunksReceived.Inc() }
func (m *Metrics) ChunkMalformed() { m.ChunksMalformed.Inc() }
func (m *Metrics) Underrun()       { m.Underruns.Inc() }
func (m *Metrics) TurnStarted()    { m.TurnsStarted.Inc(); m.Speaking.Set(1) }
func (m *Metrics) TurnEnded()      { m.TurnsEnded.Inc(); m.Speaking.Set(0) }

func (m *Metrics) ChunkScheduled(ahead time.Duration) {
	m.ChunksScheduled.Inc()
	m.ScheduledAhead.Set(ahead.Seconds())
	m.AheadSeconds.Observe(ahead.Seconds())
}

// RecordInterruption counts an interruption signal
func (m *Metrics) RecordInterruption() { m.Interruptions.Inc() }

// RecordConnection counts an opened channel
func (m *Metrics) RecordConnection() { m.Connections.Inc() }

// RecordChannelError counts a channel error
func (m *Metrics) RecordChannelError() { m.ChannelErrors.Inc() }

// SetOutputLevel records the latest output RMS
func (m *Metrics) SetOutputLevel(level float64) { m.OutputLevel.Set(level) }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln, logger)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
