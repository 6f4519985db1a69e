// ABOUTME: PCM audio decoder
// ABOUTME: Decodes little-endian PCM16 audio to normalized float samples
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

// PCMDecoder decodes PCM16 audio
type PCMDecoder struct {
	sampleRate int
	channels   int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", format.SampleRate)
	}

	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}

	return &PCMDecoder{
		sampleRate: format.SampleRate,
		channels:   channels,
	}, nil
}

// Decode converts PCM16 bytes to a mono buffer
func (d *PCMDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data)%(2*d.channels) != 0 {
		return audio.Buffer{}, fmt.Errorf("pcm payload of %d bytes is not a whole number of %d-channel frames",
			len(data), d.channels)
	}

	samples, err := audio.DecodePCM16(data)
	if err != nil {
		return audio.Buffer{}, err
	}

	return audio.Buffer{
		Samples:    audio.Downmix(samples, d.channels),
		SampleRate: d.sampleRate,
	}, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
