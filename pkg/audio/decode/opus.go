// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus packets to normalized float samples
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusFrame is 120ms at 48kHz, the largest frame an Opus packet can carry
const maxOpusFrame = 5760

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	pcm     []float32
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		pcm:     make([]float32, maxOpusFrame*format.Channels),
	}, nil
}

// Decode converts one Opus packet to a mono buffer
func (d *OpusDecoder) Decode(data []byte) (audio.Buffer, error) {
	n, err := d.decoder.DecodeFloat32(data, d.pcm)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("opus decode failed: %w", err)
	}

	samples := make([]float32, n*d.format.Channels)
	copy(samples, d.pcm[:n*d.format.Channels])

	return audio.Buffer{
		Samples:    audio.Downmix(samples, d.format.Channels),
		SampleRate: d.format.SampleRate,
	}, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
