// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams the Timeline mixer through a persistent float32 oto player
package output

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoBufferSize bounds how far the device reads ahead of the speaker
const otoBufferSize = 40 * time.Millisecond

// Oto output implementation using oto library
type Oto struct {
	*Timeline

	logger *slog.Logger
	otoCtx *oto.Context
	player *oto.Player

	mu     sync.Mutex
	closed bool
}

// NewOto opens the default output device at sampleRate, mono.
// oto allows one context per process, so create a single Oto and share it.
func NewOto(sampleRate int, tap *Analyser, logger *slog.Logger) (*Oto, error) {
	if logger == nil {
		logger = slog.Default()
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   otoBufferSize,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	o := &Oto{
		Timeline: NewTimeline(sampleRate, tap),
		logger:   logger,
		otoCtx:   ctx,
	}

	// Persistent player pulling from the mixer; it renders silence between turns
	o.player = ctx.NewPlayer(o.Timeline)
	o.player.SetBufferSize(int(int64(sampleRate)*int64(otoBufferSize)/int64(time.Second)) * 4)
	o.player.Play()

	logger.Info("audio output initialized", "backend", "oto", "sample_rate", sampleRate, "channels", 1)
	return o, nil
}

// Latency returns the audio the player holds but has not yet played
func (o *Oto) Latency() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil {
		return 0
	}
	frames := o.player.BufferedSize() / 4
	return time.Duration(int64(frames) * int64(time.Second) / int64(o.SampleRate()))
}

// Suspend pauses the device and freezes the clock
func (o *Oto) Suspend() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	if err := o.otoCtx.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend oto context: %w", err)
	}
	return o.Timeline.Suspend()
}

// Resume restarts the device and the clock
func (o *Oto) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	if err := o.otoCtx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}
	return o.Timeline.Resume()
}

// Analyser returns the output tap
func (o *Oto) Analyser() *Analyser {
	return o.tap
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	o.Timeline.Close()
	if o.player != nil {
		if err := o.player.Close(); err != nil {
			o.logger.Warn("oto player close error", "error", err)
		}
		o.player = nil
	}
	// oto contexts cannot be destroyed; leave it suspended
	if err := o.otoCtx.Suspend(); err != nil {
		o.logger.Warn("oto context suspend error", "error", err)
	}
	return nil
}
