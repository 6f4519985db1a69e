// ABOUTME: Capture pipeline: microphone -> frames -> PCM16 -> base64 -> channel
// ABOUTME: Owns start/stop lifecycle and drops frames while the channel is closed
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/output"
	"github.com/Resonate-Protocol/livetalk-go/pkg/live"
)

var (
	// ErrPermissionDenied means the OS refused microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable means no usable capture device exists
	ErrDeviceUnavailable = errors.New("microphone unavailable")
)

// Microphone delivers mono float samples at the requested rate
type Microphone interface {
	// Open acquires the device and starts calling onSamples.
	// Failures wrap ErrPermissionDenied or ErrDeviceUnavailable.
	Open(sampleRate int, onSamples func([]float32)) error

	// Close stops delivery and releases the device
	Close() error
}

// Recorder observes frame outcomes
type Recorder interface {
	FrameSent()
	FrameDropped()
}

type nopRecorder struct{}

func (nopRecorder) FrameSent()    {}
func (nopRecorder) FrameDropped() {}

// frameQueue bounds frames waiting for the sender goroutine
const frameQueue = 4

// Options configures a Pipeline. Zero values take the defaults.
type Options struct {
	SampleRate int
	FrameSize  int
	Logger     *slog.Logger
	Recorder   Recorder

	// AnalyserSize is the window of the visualization tap
	AnalyserSize int
}

// Pipeline streams microphone frames to a Sender
type Pipeline struct {
	mic      Microphone
	sender   live.Sender
	encoder  encode.Encoder
	tap      *output.Analyser
	logger   *slog.Logger
	recorder Recorder

	frameSize int

	mu        sync.Mutex
	running   bool
	opened    bool
	gen       uint64
	frames    chan []float32
	cancel    context.CancelFunc
	stopWatch func() bool

	// bufMu guards pending between the device callback and Stop
	bufMu   sync.Mutex
	pending []float32
}

// New creates a pipeline. The microphone is not touched until Start.
func New(mic Microphone, sender live.Sender, opts Options) (*Pipeline, error) {
	if mic == nil {
		return nil, fmt.Errorf("microphone is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.InputSampleRate
	}
	if opts.FrameSize <= 0 {
		opts.FrameSize = audio.CaptureFrameSize
	}
	if opts.AnalyserSize <= 0 {
		opts.AnalyserSize = 2048
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	encoder, err := encode.NewPCM(audio.Format{Codec: "pcm", SampleRate: opts.SampleRate, Channels: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	return &Pipeline{
		mic:       mic,
		sender:    sender,
		encoder:   encoder,
		tap:       output.NewAnalyser(opts.AnalyserSize, opts.SampleRate),
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		frameSize: opts.FrameSize,
		pending:   make([]float32, 0, opts.FrameSize*2),
	}, nil
}

// Start acquires the microphone and begins streaming. Device errors are
// returned to the caller. Cancelling ctx stops the pipeline.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.gen++
	gen := p.gen
	runCtx, cancel := context.WithCancel(ctx)
	frames := make(chan []float32, frameQueue)
	p.frames = frames
	p.cancel = cancel
	p.mu.Unlock()

	go p.sendLoop(runCtx, frames)

	p.logger.Info("starting capture", "sample_rate", p.tap.SampleRate(), "frame_size", p.frameSize)

	if err := p.mic.Open(p.tap.SampleRate(), p.onSamples); err != nil {
		p.mu.Lock()
		if p.gen == gen {
			p.running = false
			p.frames = nil
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	p.mu.Lock()
	if p.gen != gen || !p.running {
		// Stop won the race while the device was opening
		p.mu.Unlock()
		if err := p.mic.Close(); err != nil {
			p.logger.Warn("microphone close error", "error", err)
		}
		return nil
	}
	p.opened = true
	p.stopWatch = context.AfterFunc(ctx, func() { p.Stop() })
	p.mu.Unlock()

	return nil
}

// Stop releases the microphone. It never waits on the transport: no frame
// is queued after Stop returns, and a send already in flight gets a
// cancelled context.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.gen++
	opened := p.opened
	p.opened = false
	stopWatch := p.stopWatch
	p.stopWatch = nil
	cancel := p.cancel
	p.cancel = nil
	p.frames = nil
	p.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	// Queued frames are abandoned and an in-flight send sees a cancelled context
	if cancel != nil {
		cancel()
	}

	p.bufMu.Lock()
	p.pending = p.pending[:0]
	p.bufMu.Unlock()

	p.tap.Reset()

	if !opened {
		return nil
	}

	p.logger.Info("stopping capture")
	if err := p.mic.Close(); err != nil {
		return fmt.Errorf("failed to close microphone: %w", err)
	}
	return nil
}

// Listening reports whether the pipeline is running
func (p *Pipeline) Listening() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Analyser returns the visualization tap fed with raw microphone samples
func (p *Pipeline) Analyser() *output.Analyser {
	return p.tap
}

// onSamples is the microphone callback. It never waits on the transport:
// a frame that finds the queue full is dropped.
func (p *Pipeline) onSamples(samples []float32) {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()

	p.mu.Lock()
	running, frames := p.running, p.frames
	p.mu.Unlock()
	if !running || frames == nil {
		return
	}

	p.tap.Write(samples)
	p.pending = append(p.pending, samples...)

	sent := 0
	for len(p.pending)-sent >= p.frameSize {
		frame := make([]float32, p.frameSize)
		copy(frame, p.pending[sent:sent+p.frameSize])
		sent += p.frameSize

		select {
		case frames <- frame:
		default:
			p.recorder.FrameDropped()
		}
	}
	if sent > 0 {
		n := copy(p.pending, p.pending[sent:])
		p.pending = p.pending[:n]
	}
}

// sendLoop drains one run's frames until the run is cancelled
func (p *Pipeline) sendLoop(ctx context.Context, frames <-chan []float32) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-frames:
			if ctx.Err() != nil {
				return
			}
			p.emit(ctx, frame)
		}
	}
}

// emit encodes and sends one frame. Errors never stop the pipeline.
func (p *Pipeline) emit(ctx context.Context, frame []float32) {
	data, err := p.encoder.Encode(frame)
	if err != nil {
		p.logger.Warn("frame encode failed", "error", err)
		p.recorder.FrameDropped()
		return
	}

	media := live.Media{
		MIMEType: p.encoder.MIMEType(),
		Data:     base64.StdEncoding.EncodeToString(data),
	}

	err = p.sender.SendMedia(ctx, media)
	switch {
	case err == nil:
		p.recorder.FrameSent()
	case errors.Is(err, live.ErrChannelClosed), ctx.Err() != nil:
		p.recorder.FrameDropped()
	default:
		p.logger.Warn("frame send failed", "error", err)
		p.recorder.FrameDropped()
	}
}
