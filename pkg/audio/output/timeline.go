// ABOUTME: Pure-Go mixer that renders scheduled buffers at absolute clock times
// ABOUTME: Its rendered frame count is the audio clock the playback scheduler reads
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/resample"
)

// State is the lifecycle state of a clock
type State int

const (
	StateRunning State = iota
	StateSuspended
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type voice struct {
	start   int64
	samples []float32
}

// Timeline mixes scheduled mono buffers into a float32 stream
type Timeline struct {
	rate int
	tap  *Analyser

	mu       sync.Mutex
	rendered int64
	voices   []voice
	state    State
	volume   int
	muted    bool
	scratch  []float32
}

// NewTimeline creates a running timeline at rate. tap may be nil.
func NewTimeline(rate int, tap *Analyser) *Timeline {
	return &Timeline{
		rate:   rate,
		tap:    tap,
		volume: 100,
	}
}

// SampleRate returns the rate the timeline renders at
func (t *Timeline) SampleRate() int {
	return t.rate
}

// CurrentTime returns the clock: frames rendered so far as a duration
func (t *Timeline) CurrentTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameTime(t.rendered)
}

func (t *Timeline) frameTime(frame int64) time.Duration {
	return time.Duration(frame * int64(time.Second) / int64(t.rate))
}

func (t *Timeline) timeFrame(at time.Duration) int64 {
	return (int64(at)*int64(t.rate) + int64(time.Second)/2) / int64(time.Second)
}

// State returns the current lifecycle state
func (t *Timeline) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Schedule queues buf to start at clock time at. A start already in the
// past plays from the current render position. Buffers at another rate
// are resampled first.
func (t *Timeline) Schedule(buf audio.Buffer, at time.Duration) error {
	if len(buf.Samples) == 0 {
		return nil
	}
	if buf.SampleRate != t.rate {
		buf = resample.Convert(buf, t.rate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateClosed:
		return ErrClosed
	case StateSuspended:
		return ErrClockSuspended
	}

	start := t.timeFrame(at)
	if start < t.rendered {
		start = t.rendered
	}
	t.voices = append(t.voices, voice{start: start, samples: buf.Samples})
	return nil
}

// Pending returns the number of buffers not yet fully rendered
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Suspend freezes the clock. Reads return silence without advancing it.
func (t *Timeline) Suspend() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateClosed {
		return ErrClosed
	}
	t.state = StateSuspended
	return nil
}

// Resume restarts a suspended clock
func (t *Timeline) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateClosed {
		return ErrClosed
	}
	t.state = StateRunning
	return nil
}

// Close drops all scheduled buffers. Further reads return EOF.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateClosed
	t.voices = nil
	return nil
}

// SetVolume sets the volume (0-100)
func (t *Timeline) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	t.mu.Lock()
	t.volume = volume
	t.mu.Unlock()
}

// SetMuted sets mute state
func (t *Timeline) SetMuted(muted bool) {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
}

// Volume returns current volume and mute state
func (t *Timeline) Volume() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume, t.muted
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}

// Render mixes the next len(out) frames into out and advances the clock.
// It returns false without touching the clock when not running.
func (t *Timeline) Render(out []float32) bool {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		clear(out)
		return false
	}

	clear(out)
	from := t.rendered
	to := from + int64(len(out))

	kept := t.voices[:0]
	for _, v := range t.voices {
		end := v.start + int64(len(v.samples))
		lo := max(v.start, from)
		hi := min(end, to)
		for f := lo; f < hi; f++ {
			out[f-from] += v.samples[f-v.start]
		}
		if end > to {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(t.voices); i++ {
		t.voices[i] = voice{}
	}
	t.voices = kept
	t.rendered = to
	gain := float32(getVolumeMultiplier(t.volume, t.muted))
	t.mu.Unlock()

	for i, s := range out {
		out[i] = audio.Clamp(s * gain)
	}
	if t.tap != nil {
		t.tap.Write(out)
	}
	return true
}

// Read implements io.Reader, producing little-endian float32 mono frames
func (t *Timeline) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}
	if t.State() == StateClosed {
		return 0, io.EOF
	}

	if cap(t.scratch) < frames {
		t.scratch = make([]float32, frames)
	}
	buf := t.scratch[:frames]
	t.Render(buf)

	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 4, nil
}
