// ABOUTME: Tests for session orchestration
// ABOUTME: Uses a real timeline as the device with fake channel and microphone
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/livetalk-go/internal/config"
	"github.com/Resonate-Protocol/livetalk-go/internal/metrics"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/output"
	"github.com/Resonate-Protocol/livetalk-go/pkg/live"
	"github.com/Resonate-Protocol/livetalk-go/pkg/playback"
	"github.com/Resonate-Protocol/livetalk-go/pkg/transcript"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// timelineDevice is an output.Device whose clock only moves when rendered
type timelineDevice struct {
	*output.Timeline
	tap *output.Analyser
}

func (d *timelineDevice) Analyser() *output.Analyser { return d.tap }

type fakeMic struct {
	mu        sync.Mutex
	onSamples func([]float32)
	closes    int
}

func (m *fakeMic) Open(rate int, onSamples func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSamples = onSamples
	return nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSamples = nil
	m.closes++
	return nil
}

func (m *fakeMic) push(samples []float32) {
	m.mu.Lock()
	cb := m.onSamples
	m.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

type fakeConn struct {
	cfg        live.Config
	h          live.Handler
	connectErr error
	skipOpen   bool

	mu     sync.Mutex
	media  []live.Media
	texts  []string
	closes int
}

func (c *fakeConn) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	if !c.skipOpen {
		c.h.OnOpen()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	first := c.closes == 1
	c.mu.Unlock()
	if first {
		c.h.OnClose(nil)
	}
	return nil
}

func (c *fakeConn) SendMedia(ctx context.Context, media live.Media) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = append(c.media, media)
	return nil
}

func (c *fakeConn) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

type noTimer struct{}

func (noTimer) Stop() bool { return true }

type harness struct {
	session *Session
	device  *timelineDevice
	mic     *fakeMic
	metrics *metrics.Metrics
	conns   []*fakeConn

	pollMu sync.Mutex
	polls  []func()

	// template applied to the next dialed connection
	next fakeConn
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	cfg.Endpoint = "ws://agent.test/live"
	cfg.UI.Enabled = false
	return cfg
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		device: &timelineDevice{
			Timeline: output.NewTimeline(audio.OutputSampleRate, nil),
			tap:      output.NewAnalyser(1024, audio.OutputSampleRate),
		},
		mic:     &fakeMic{},
		metrics: metrics.New(),
	}

	session, err := New(testConfig(t), Deps{
		Output:     h.device,
		Microphone: h.mic,
		Metrics:    h.metrics,
		Dial: func(cfg live.Config, handler live.Handler) Conn {
			c := &fakeConn{cfg: cfg, h: handler, connectErr: h.next.connectErr, skipOpen: h.next.skipOpen}
			h.conns = append(h.conns, c)
			return c
		},
		AfterFunc: func(_ time.Duration, f func()) playback.Timer {
			h.pollMu.Lock()
			defer h.pollMu.Unlock()
			h.polls = append(h.polls, f)
			return noTimer{}
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	h.session = session
	return h
}

// firePoll runs the most recently armed scheduler poll
func (h *harness) firePoll(t *testing.T) {
	t.Helper()
	h.pollMu.Lock()
	if len(h.polls) == 0 {
		h.pollMu.Unlock()
		t.Fatal("no poll armed")
	}
	f := h.polls[len(h.polls)-1]
	h.polls = nil
	h.pollMu.Unlock()
	f()
}

func (h *harness) connect(t *testing.T) *fakeConn {
	t.Helper()
	if err := h.session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return h.conns[len(h.conns)-1]
}

// pcmMedia returns ms of 24kHz PCM16 as a channel payload
func pcmMedia(ms int) live.Media {
	samples := make([]float32, audio.OutputSampleRate*ms/1000)
	for i := range samples {
		samples[i] = 0.25
	}
	return live.Media{
		MIMEType: "audio/pcm;rate=24000",
		Data:     base64.StdEncoding.EncodeToString(audio.EncodePCM16(samples)),
	}
}

func TestNewRequiresDevices(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New(cfg, Deps{Microphone: &fakeMic{}}); err == nil {
		t.Error("expected error without output device")
	}
	device := &timelineDevice{Timeline: output.NewTimeline(24000, nil)}
	if _, err := New(cfg, Deps{Output: device}); err == nil {
		t.Error("expected error without microphone")
	}
}

func TestConnectPassesChannelConfig(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	if conn.cfg.Endpoint != "ws://agent.test/live" {
		t.Errorf("unexpected endpoint %s", conn.cfg.Endpoint)
	}
	if conn.cfg.UserAgent == "" {
		t.Error("expected a user agent")
	}
	if !h.session.Status().Connected {
		t.Error("expected connected status after open")
	}
	if got := testutil.ToFloat64(h.metrics.Connections); got != 1 {
		t.Errorf("expected 1 connection, got %v", got)
	}
}

func TestAudioIsScheduled(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	conn.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(100), pcmMedia(100)}})

	st := h.session.Status()
	if st.Playback.Scheduled != 2 {
		t.Fatalf("expected 2 scheduled buffers, got %d", st.Playback.Scheduled)
	}
	if st.Playback.Cursor != 550*time.Millisecond {
		t.Errorf("expected cursor at 550ms, got %v", st.Playback.Cursor)
	}
	if !st.Speaking || !h.session.Speaking() {
		t.Error("expected agent to be speaking")
	}
	if h.device.Pending() != 2 {
		t.Errorf("expected 2 buffers on the timeline, got %d", h.device.Pending())
	}
}

func TestBadEncodingCountsMalformed(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	conn.h.OnMessage(live.Message{Audio: []live.Media{
		{MIMEType: "audio/pcm;rate=24000", Data: "!!not base64!!"},
		{MIMEType: "audio/pcm;rate=24000", Data: ""},
		pcmMedia(20),
	}})

	if got := testutil.ToFloat64(h.metrics.ChunksMalformed); got != 2 {
		t.Errorf("expected 2 malformed chunks, got %v", got)
	}
	if got := testutil.ToFloat64(h.metrics.ChunksReceived); got != 3 {
		t.Errorf("expected 3 received chunks, got %v", got)
	}
	if h.session.Status().Playback.Scheduled != 1 {
		t.Error("expected the valid chunk to be scheduled")
	}
}

func TestTranscriptRouting(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	conn.h.OnMessage(live.Message{InputTranscript: "what's the "})
	conn.h.OnMessage(live.Message{InputTranscript: "weather"})
	conn.h.OnMessage(live.Message{OutputTranscript: "Sunny ", Text: "ignored"})
	conn.h.OnMessage(live.Message{Text: "today."})
	conn.h.OnMessage(live.Message{TurnComplete: true})

	entries := h.session.Transcript().Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Role != transcript.RoleUser || entries[0].Text != "what's the weather" {
		t.Errorf("unexpected user entry %+v", entries[0])
	}
	if entries[1].Role != transcript.RoleAgent || entries[1].Text != "Sunny today." || !entries[1].Final {
		t.Errorf("unexpected agent entry %+v", entries[1])
	}
}

func TestTurnCompleteReachesScheduler(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	conn.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(100)}, TurnComplete: true})

	// Play past the first turn so the next chunk starts a new one
	out := make([]float32, audio.OutputSampleRate)
	h.device.Render(out)
	h.firePoll(t)
	if h.session.Speaking() {
		t.Fatal("expected the first turn to have ended")
	}

	conn.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(100)}})

	st := h.session.Status()
	if st.Playback.Turns != 2 {
		t.Errorf("expected 2 turns, got %d", st.Playback.Turns)
	}
	// New turn starts StartDelay after the clock
	if st.Playback.Cursor != time.Second+450*time.Millisecond {
		t.Errorf("expected cursor at 1.45s, got %v", st.Playback.Cursor)
	}
}

func TestInterruptionDoesNotStopPlayback(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	conn.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(200)}})
	conn.h.OnMessage(live.Message{Interrupted: true})

	if got := testutil.ToFloat64(h.metrics.Interruptions); got != 1 {
		t.Errorf("expected 1 interruption, got %v", got)
	}
	if !h.session.Speaking() || h.device.Pending() != 1 {
		t.Error("expected playback to continue after interruption")
	}
}

func TestMessagesIgnoredBeforeOpenAndAfterClose(t *testing.T) {
	h := newHarness(t)
	h.next.skipOpen = true
	conn := h.connect(t)

	conn.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(100)}})
	if h.session.Status().Playback.Received != 0 {
		t.Error("expected message before open to be ignored")
	}

	conn.h.OnOpen()
	conn.h.OnClose(errors.New("going away"))
	conn.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(100)}})

	if h.session.Status().Playback.Received != 0 {
		t.Error("expected message after close to be ignored")
	}
	if h.session.Status().Connected {
		t.Error("expected disconnected status")
	}
}

func TestReconnectDiscardsPreviousConnection(t *testing.T) {
	h := newHarness(t)
	first := h.connect(t)
	first.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(100)}})

	second := h.connect(t)

	if first.closes != 1 {
		t.Errorf("expected first connection closed once, got %d", first.closes)
	}
	if h.session.Status().Playback.Received != 0 {
		t.Error("expected a fresh scheduler for the new connection")
	}

	first.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(100)}})
	if h.session.Status().Playback.Received != 0 {
		t.Error("expected stale connection events to be ignored")
	}

	second.h.OnMessage(live.Message{Audio: []live.Media{pcmMedia(100)}})
	if h.session.Status().Playback.Received != 1 {
		t.Error("expected the new connection to deliver audio")
	}
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.next.connectErr = errors.New("dial refused")

	if err := h.session.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if err := h.session.SendText(context.Background(), "hi"); !errors.Is(err, live.ErrChannelClosed) {
		t.Errorf("expected ErrChannelClosed, got %v", err)
	}
}

func TestSendText(t *testing.T) {
	h := newHarness(t)

	if err := h.session.SendText(context.Background(), "hello"); !errors.Is(err, live.ErrChannelClosed) {
		t.Errorf("expected ErrChannelClosed before connect, got %v", err)
	}

	conn := h.connect(t)
	if err := h.session.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if len(conn.texts) != 1 || conn.texts[0] != "hello" {
		t.Errorf("unexpected texts %v", conn.texts)
	}

	entries := h.session.Transcript().Entries()
	if len(entries) != 1 || entries[0].Role != transcript.RoleUser || !entries[0].Final {
		t.Errorf("expected typed text in transcript, got %+v", entries)
	}
}

func TestCaptureFlowsToConnection(t *testing.T) {
	h := newHarness(t)

	// Frames captured while disconnected are dropped
	if err := h.session.StartListening(); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	h.mic.push(make([]float32, audio.CaptureFrameSize))
	eventually(t, "dropped frame", func() bool {
		return testutil.ToFloat64(h.metrics.FramesDropped) == 1
	})

	conn := h.connect(t)
	h.mic.push(make([]float32, audio.CaptureFrameSize))

	eventually(t, "sent frame", func() bool {
		return testutil.ToFloat64(h.metrics.FramesSent) == 1
	})
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.media) != 1 {
		t.Fatalf("expected 1 frame sent, got %d", len(conn.media))
	}
	if conn.media[0].MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("unexpected MIME type %s", conn.media[0].MIMEType)
	}
	if got := testutil.ToFloat64(h.metrics.FramesSent); got != 1 {
		t.Errorf("expected 1 sent frame, got %v", got)
	}
}

// eventually polls cond until it holds or two seconds pass
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestToggleListening(t *testing.T) {
	h := newHarness(t)

	if err := h.session.ToggleListening(); err != nil {
		t.Fatalf("toggle on failed: %v", err)
	}
	if !h.session.Listening() {
		t.Error("expected listening")
	}
	if err := h.session.ToggleListening(); err != nil {
		t.Fatalf("toggle off failed: %v", err)
	}
	if h.session.Listening() {
		t.Error("expected not listening")
	}
	if h.mic.closes != 1 {
		t.Errorf("expected microphone closed once, got %d", h.mic.closes)
	}
}

func TestVolumeDelegatesToDevice(t *testing.T) {
	h := newHarness(t)

	h.session.SetVolume(40)
	h.session.SetMuted(true)

	st := h.session.Status()
	if st.Volume != 40 || !st.Muted {
		t.Errorf("unexpected volume state %d %v", st.Volume, st.Muted)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)
	if err := h.session.StartListening(); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	if err := h.session.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := h.session.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if conn.closes != 1 {
		t.Errorf("expected connection closed once, got %d", conn.closes)
	}
	if h.session.Listening() {
		t.Error("expected capture stopped")
	}
	if err := h.session.Connect(context.Background()); err == nil {
		t.Error("expected Connect after Close to fail")
	}
}

func TestRunReturnsOnClose(t *testing.T) {
	h := newHarness(t)

	done := make(chan error, 1)
	go func() { done <- h.session.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	h.session.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.session.Run(ctx) }()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
