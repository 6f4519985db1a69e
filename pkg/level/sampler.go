// ABOUTME: Display-cadence sampler with source selection and geometric decay
// ABOUTME: Driven by the UI frame tick or by Run in headless mode
package level

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultBands = 8
	DefaultDecay = 0.9
	DefaultFPS   = 60

	// floor below which decayed values snap to zero
	floor = 1e-3
)

// Source yields band magnitudes in [0,1]. output.Analyser implements it.
type Source interface {
	Frequencies(bands int) []float64
}

// Mode names the stream a tick sampled
type Mode int

const (
	ModeIdle Mode = iota
	ModeMicrophone
	ModePlayback
)

func (m Mode) String() string {
	switch m {
	case ModeMicrophone:
		return "microphone"
	case ModePlayback:
		return "playback"
	default:
		return "idle"
	}
}

// Options configures a Sampler
type Options struct {
	Bands int
	Decay float64

	Microphone Source
	Playback   Source

	// Listening and Speaking report pipeline state; nil means false
	Listening func() bool
	Speaking  func() bool
}

// Sampler holds the latest band levels
type Sampler struct {
	opts Options

	mu     sync.Mutex
	levels []float64
	mode   Mode
}

// New creates a sampler with all levels at zero
func New(opts Options) *Sampler {
	if opts.Bands <= 0 {
		opts.Bands = DefaultBands
	}
	if opts.Decay <= 0 || opts.Decay >= 1 {
		opts.Decay = DefaultDecay
	}
	return &Sampler{
		opts:   opts,
		levels: make([]float64, opts.Bands),
	}
}

// Tick samples once and returns the new levels
func (s *Sampler) Tick() []float64 {
	mode := s.selectMode()

	var fresh []float64
	switch mode {
	case ModePlayback:
		fresh = s.opts.Playback.Frequencies(s.opts.Bands)
	case ModeMicrophone:
		fresh = s.opts.Microphone.Frequencies(s.opts.Bands)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = mode
	if fresh != nil {
		copy(s.levels, fresh)
	} else {
		for i, v := range s.levels {
			v *= s.opts.Decay
			if v < floor {
				v = 0
			}
			s.levels[i] = v
		}
	}
	return append([]float64(nil), s.levels...)
}

func (s *Sampler) selectMode() Mode {
	speaking := s.opts.Speaking != nil && s.opts.Speaking()
	listening := s.opts.Listening != nil && s.opts.Listening()

	switch {
	case speaking && s.opts.Playback != nil:
		return ModePlayback
	case listening && !speaking && s.opts.Microphone != nil:
		return ModeMicrophone
	default:
		return ModeIdle
	}
}

// Levels returns a copy of the latest levels
func (s *Sampler) Levels() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.levels...)
}

// Mode returns the stream sampled by the last tick
func (s *Sampler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Peak returns the loudest band of the latest levels
func (s *Sampler) Peak() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	peak := 0.0
	for _, v := range s.levels {
		peak = max(peak, v)
	}
	return peak
}

// Run ticks at fps until ctx is done, passing each snapshot to onTick.
// The TUI drives Tick from its own frame loop instead.
func (s *Sampler) Run(ctx context.Context, fps int, onTick func([]float64)) {
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			levels := s.Tick()
			if onTick != nil {
				onTick(levels)
			}
		}
	}
}
