// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for clocked playback backends
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

var (
	// ErrClockSuspended is returned when scheduling against a suspended clock.
	// It is resolved by Resume.
	ErrClockSuspended = errors.New("audio clock suspended")

	// ErrClosed is returned when using a closed device
	ErrClosed = errors.New("audio output closed")
)

// Device represents an audio output device with a schedulable clock
type Device interface {
	// CurrentTime returns the device clock
	CurrentTime() time.Duration

	// Schedule plays buf starting at clock time at
	Schedule(buf audio.Buffer, at time.Duration) error

	// Suspend freezes the clock and silences output
	Suspend() error

	// Resume restarts a suspended clock
	Resume() error

	// Analyser returns the tap fed with rendered output
	Analyser() *Analyser

	// SetVolume sets output gain in percent (0-100)
	SetVolume(volume int)

	// SetMuted silences output without touching the clock
	SetMuted(muted bool)

	// Volume reports the current gain and mute state
	Volume() (int, bool)

	// Close releases output resources
	Close() error
}

// Open creates the configured backend: "oto" (default) or "malgo"
func Open(backend string, sampleRate int, tap *Analyser, logger *slog.Logger) (Device, error) {
	switch backend {
	case "", "oto":
		return NewOto(sampleRate, tap, logger)
	case "malgo":
		return NewMalgo(sampleRate, tap, logger)
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", backend)
	}
}
