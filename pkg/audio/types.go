// ABOUTME: Audio type definitions
// ABOUTME: Defines audio formats, wire chunks and decoded buffers
package audio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// InputSampleRate is the microphone rate sent to the agent
	InputSampleRate = 16000

	// OutputSampleRate is the rate of agent audio
	OutputSampleRate = 24000

	// CaptureFrameSize is the number of samples per capture frame
	CaptureFrameSize = 4096

	// MIMEPCM is the base MIME type for raw little-endian PCM16
	MIMEPCM = "audio/pcm"
)

// Format describes a PCM stream
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
}

// MIMEType renders the format the way the channel expects it,
// e.g. "audio/pcm;rate=16000"
func (f Format) MIMEType() string {
	if f.Codec == "" || f.Codec == "pcm" {
		return fmt.Sprintf("%s;rate=%d", MIMEPCM, f.SampleRate)
	}
	return "audio/" + f.Codec
}

// ParseMIME extracts codec and sample rate from a MIME string such as
// "audio/pcm;rate=24000". Missing rates fall back to defaultRate.
func ParseMIME(mime string, defaultRate int) (Format, error) {
	parts := strings.Split(mime, ";")
	base := strings.ToLower(strings.TrimSpace(parts[0]))
	if !strings.HasPrefix(base, "audio/") {
		return Format{}, fmt.Errorf("not an audio mime type: %q", mime)
	}

	format := Format{
		Codec:      strings.TrimPrefix(base, "audio/"),
		SampleRate: defaultRate,
		Channels:   1,
	}
	if format.Codec == "l16" {
		format.Codec = "pcm"
	}

	for _, param := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "rate":
			rate, err := strconv.Atoi(value)
			if err != nil || rate <= 0 {
				return Format{}, fmt.Errorf("invalid rate in mime type %q", mime)
			}
			format.SampleRate = rate
		case "channels":
			channels, err := strconv.Atoi(value)
			if err != nil || channels <= 0 {
				return Format{}, fmt.Errorf("invalid channels in mime type %q", mime)
			}
			format.Channels = channels
		}
	}

	return format, nil
}

// Chunk is one encoded audio payload as delivered by the channel.
// Data is raw bytes (already base64-decoded by the transport).
type Chunk struct {
	Data     []byte
	MIMEType string
}

// Buffer represents decoded mono audio normalized to [-1, 1)
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer
func (b Buffer) Duration() time.Duration {
	return SamplesToDuration(len(b.Samples), b.SampleRate)
}

// SamplesToDuration converts a sample count at rate to a duration
func SamplesToDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(samples) * int64(time.Second) / int64(rate))
}

// DurationToSamples converts a duration to a sample count at rate
func DurationToSamples(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}
