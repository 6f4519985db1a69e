// ABOUTME: PCM audio encoder
// ABOUTME: Encodes float samples to 16-bit little-endian PCM bytes
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

// PCMEncoder encodes PCM16 audio
type PCMEncoder struct {
	format audio.Format
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", format.SampleRate)
	}

	if format.Channels != 1 {
		return nil, fmt.Errorf("unsupported channel count: %d (supported: 1)", format.Channels)
	}

	return &PCMEncoder{format: format}, nil
}

// Encode converts float samples to PCM16 bytes. Out of range input is clipped.
func (e *PCMEncoder) Encode(samples []float32) ([]byte, error) {
	return audio.EncodePCM16(samples), nil
}

// MIMEType returns e.g. "audio/pcm;rate=16000"
func (e *PCMEncoder) MIMEType() string {
	return e.format.MIMEType()
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
