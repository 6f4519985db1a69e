// ABOUTME: Voice session orchestration
// ABOUTME: Wires channel events to the playback scheduler, capture and transcript
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Resonate-Protocol/livetalk-go/internal/config"
	"github.com/Resonate-Protocol/livetalk-go/internal/logging"
	"github.com/Resonate-Protocol/livetalk-go/internal/metrics"
	"github.com/Resonate-Protocol/livetalk-go/internal/ui"
	"github.com/Resonate-Protocol/livetalk-go/internal/version"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/output"
	"github.com/Resonate-Protocol/livetalk-go/pkg/capture"
	"github.com/Resonate-Protocol/livetalk-go/pkg/level"
	"github.com/Resonate-Protocol/livetalk-go/pkg/live"
	"github.com/Resonate-Protocol/livetalk-go/pkg/playback"
	"github.com/Resonate-Protocol/livetalk-go/pkg/transcript"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	transcriptLimit = 200
	statsInterval   = 250 * time.Millisecond
)

// Conn is one channel connection
type Conn interface {
	live.Sender
	Connect(ctx context.Context) error
	Close() error
}

// Dialer builds a connection that reports its events to h
type Dialer func(cfg live.Config, h live.Handler) Conn

// DialGemini is the default Dialer
func DialGemini(cfg live.Config, h live.Handler) Conn {
	return live.NewGeminiClient(cfg, h)
}

// Deps are the devices and collaborators a session drives
type Deps struct {
	Output     output.Device
	Microphone capture.Microphone
	Dial       Dialer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	// AfterFunc overrides the scheduler poll timer
	AfterFunc playback.AfterFunc
}

// Session is one voice conversation with an agent
type Session struct {
	cfg     config.Config
	deps    Deps
	id      string
	logger  *slog.Logger
	metrics *metrics.Metrics

	capture    *capture.Pipeline
	sampler    *level.Sampler
	transcript *transcript.Log

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	gen       uint64
	conn      Conn
	open      bool
	scheduler *playback.Scheduler
	decoder   *decode.Registry
	endpoint  string
	closed    bool
}

// New creates a session. Nothing is opened until Connect.
func New(cfg config.Config, deps Deps) (*Session, error) {
	if deps.Output == nil {
		return nil, fmt.Errorf("output device is required")
	}
	if deps.Microphone == nil {
		return nil, fmt.Errorf("microphone is required")
	}
	if deps.Dial == nil {
		deps.Dial = DialGemini
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	id := uuid.New().String()
	logger := deps.Logger.With(slog.String("session", id))

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		cfg:        cfg,
		deps:       deps,
		id:         id,
		logger:     logger,
		metrics:    deps.Metrics,
		transcript: transcript.New(transcriptLimit),
		ctx:        ctx,
		cancel:     cancel,
		endpoint:   cfg.ResolvedEndpoint(),
	}

	pipeline, err := capture.New(deps.Microphone, s, capture.Options{
		SampleRate: cfg.Audio.InputRate,
		FrameSize:  cfg.Audio.FrameSize,
		Logger:     logging.Component(logger, "capture"),
		Recorder:   deps.Metrics,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create capture pipeline: %w", err)
	}
	s.capture = pipeline

	opts := level.Options{
		Bands:      cfg.Sampler.Bands,
		Decay:      cfg.Sampler.Decay,
		Microphone: pipeline.Analyser(),
		Listening:  pipeline.Listening,
		Speaking:   s.Speaking,
	}
	// A nil tap must stay a nil interface
	if tap := deps.Output.Analyser(); tap != nil {
		opts.Playback = tap
	}
	s.sampler = level.New(opts)

	return s, nil
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// Sampler returns the level sampler for display
func (s *Session) Sampler() *level.Sampler {
	return s.sampler
}

// Transcript returns the conversation log
func (s *Session) Transcript() *transcript.Log {
	return s.transcript
}

// SetEndpoint changes the endpoint used by the next Connect
func (s *Session) SetEndpoint(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = endpoint
}

// Connect opens a new connection with a fresh playback scheduler. Any
// previous connection and its queued audio are discarded.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session closed")
	}

	oldConn, oldSched, oldDec := s.conn, s.scheduler, s.decoder

	s.gen++
	gen := s.gen
	s.open = false
	s.decoder = decode.NewRegistry(audio.OutputSampleRate)

	opts := s.cfg.PlaybackOptions()
	opts.Decoder = s.decoder
	opts.Logger = logging.Component(s.logger, "playback")
	opts.Recorder = s.metrics
	opts.OnSpeaking = s.onSpeaking
	opts.AfterFunc = s.deps.AfterFunc
	s.scheduler = playback.New(s.deps.Output, opts)

	liveCfg := s.cfg.LiveConfig()
	liveCfg.Endpoint = s.endpoint
	liveCfg.UserAgent = version.UserAgent()
	liveCfg.Logger = logging.Component(s.logger, "live")
	conn := s.deps.Dial(liveCfg, &connHandler{s: s, gen: gen})
	s.conn = conn
	s.mu.Unlock()

	closeStale(oldConn, oldSched, oldDec)

	if err := conn.Connect(ctx); err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.conn = nil
		}
		s.mu.Unlock()
		return fmt.Errorf("connect failed: %w", err)
	}

	s.logger.Info("connected", "endpoint", s.endpoint)
	return nil
}

func closeStale(conn Conn, sched *playback.Scheduler, dec *decode.Registry) {
	if conn != nil {
		conn.Close()
	}
	if sched != nil {
		sched.Close()
	}
	if dec != nil {
		dec.Close()
	}
}

// current returns the live connection, or nil before open and after close
func (s *Session) current() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	return s.conn
}

// SendMedia forwards one capture frame. It implements live.Sender for the
// capture pipeline.
func (s *Session) SendMedia(ctx context.Context, media live.Media) error {
	conn := s.current()
	if conn == nil {
		return live.ErrChannelClosed
	}
	return conn.SendMedia(ctx, media)
}

// SendText sends a typed message to the agent
func (s *Session) SendText(ctx context.Context, text string) error {
	conn := s.current()
	if conn == nil {
		return live.ErrChannelClosed
	}
	if err := conn.SendText(ctx, text); err != nil {
		return err
	}
	s.transcript.AddUserText(text)
	return nil
}

// StartListening opens the microphone and streams it to the agent
func (s *Session) StartListening() error {
	return s.capture.Start(s.ctx)
}

// StopListening releases the microphone
func (s *Session) StopListening() error {
	return s.capture.Stop()
}

// Listening reports whether the microphone is streaming
func (s *Session) Listening() bool {
	return s.capture.Listening()
}

// ToggleListening starts or stops the microphone
func (s *Session) ToggleListening() error {
	if s.capture.Listening() {
		return s.StopListening()
	}
	return s.StartListening()
}

// Speaking reports whether agent audio is playing
func (s *Session) Speaking() bool {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()
	return sched != nil && sched.Speaking()
}

func (s *Session) onSpeaking(speaking bool) {
	s.logger.Debug("agent speaking", "speaking", speaking)
}

// SetVolume sets output volume in percent
func (s *Session) SetVolume(volume int) {
	s.deps.Output.SetVolume(volume)
}

// SetMuted mutes or unmutes output
func (s *Session) SetMuted(muted bool) {
	s.deps.Output.SetMuted(muted)
}

// Status returns a display snapshot
func (s *Session) Status() ui.Status {
	s.mu.Lock()
	sched, open, endpoint := s.scheduler, s.open, s.endpoint
	s.mu.Unlock()

	volume, muted := s.deps.Output.Volume()
	st := ui.Status{
		Connected:  open,
		Endpoint:   endpoint,
		SessionID:  s.id,
		Listening:  s.capture.Listening(),
		Volume:     volume,
		Muted:      muted,
		Transcript: s.transcript.Tail(8),
	}
	if sched != nil {
		st.Playback = sched.Stats()
		st.Speaking = st.Playback.Speaking
	}
	return st
}

// Run supervises background work until ctx is done or the session closes.
// With the TUI disabled the sampler runs on its own ticker.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if s.cfg.Metrics.Addr != "" {
		g.Go(func() error {
			if err := s.metrics.Serve(ctx, s.cfg.Metrics.Addr, logging.Component(s.logger, "metrics")); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		s.statsLoop(ctx)
		return nil
	})

	if !s.cfg.UI.Enabled {
		g.Go(func() error {
			last := level.ModeIdle
			s.sampler.Run(ctx, s.cfg.Sampler.FPS, func([]float64) {
				if mode := s.sampler.Mode(); mode != last {
					s.logger.Debug("visualizer source changed", "mode", mode.String())
					last = mode
				}
			})
			return nil
		})
	}

	err := g.Wait()
	s.Close()
	return err
}

// statsLoop mirrors clocked state into gauges
func (s *Session) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if tap := s.deps.Output.Analyser(); tap != nil {
				s.metrics.SetOutputLevel(tap.Level())
			}
		}
	}
}

// Close stops capture and the connection. It is safe to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.open = false
	s.gen++
	conn, sched, dec := s.conn, s.scheduler, s.decoder
	s.conn, s.scheduler, s.decoder = nil, nil, nil
	s.mu.Unlock()

	s.cancel()

	var errs []error
	if err := s.capture.Stop(); err != nil {
		errs = append(errs, err)
	}
	closeStale(conn, sched, dec)

	s.logger.Info("session closed")
	return errors.Join(errs...)
}

// connHandler routes one connection's events. Events from a replaced
// connection are ignored.
type connHandler struct {
	s   *Session
	gen uint64
}

// scheduler returns the current scheduler when h is the live connection
func (h *connHandler) scheduler(requireOpen bool) (*playback.Scheduler, bool) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.gen != h.s.gen || (requireOpen && !h.s.open) {
		return nil, false
	}
	return h.s.scheduler, true
}

func (h *connHandler) OnOpen() {
	h.s.mu.Lock()
	if h.gen != h.s.gen {
		h.s.mu.Unlock()
		return
	}
	h.s.open = true
	h.s.mu.Unlock()

	h.s.metrics.RecordConnection()
	h.s.logger.Info("channel open")
}

func (h *connHandler) OnMessage(msg live.Message) {
	sched, ok := h.scheduler(true)
	if !ok {
		return
	}
	s := h.s

	for _, media := range msg.Audio {
		data, err := base64.StdEncoding.DecodeString(media.Data)
		if err != nil {
			s.logger.Warn("dropping audio chunk with bad encoding", "mime", media.MIMEType, "error", err)
			s.metrics.ChunkReceived()
			s.metrics.ChunkMalformed()
			continue
		}
		sched.Enqueue(audio.Chunk{Data: data, MIMEType: media.MIMEType})
	}

	switch {
	case msg.OutputTranscript != "":
		s.transcript.AppendAgent(msg.OutputTranscript)
	case msg.Text != "":
		s.transcript.AppendAgent(msg.Text)
	}
	if msg.InputTranscript != "" {
		s.transcript.AppendUser(msg.InputTranscript)
	}

	if msg.Interrupted {
		s.logger.Info("agent reported interruption; playback continues")
		s.metrics.RecordInterruption()
	}

	if msg.TurnComplete {
		sched.OnTurnBoundary()
		s.transcript.Finalize()
	}
}

func (h *connHandler) OnError(err error) {
	if _, ok := h.scheduler(false); !ok {
		return
	}
	h.s.metrics.RecordChannelError()
	h.s.logger.Error("channel error", "error", err)
}

func (h *connHandler) OnClose(err error) {
	h.s.mu.Lock()
	if h.gen != h.s.gen {
		h.s.mu.Unlock()
		return
	}
	h.s.open = false
	h.s.mu.Unlock()

	if err != nil {
		h.s.logger.Warn("channel closed", "error", err)
		return
	}
	h.s.logger.Info("channel closed")
}
