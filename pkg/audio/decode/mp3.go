// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes self-contained MP3 payloads to normalized float samples
package decode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MP3 audio. Each chunk must hold whole MP3 frames.
type MP3Decoder struct{}

// NewMP3 creates a new MP3 decoder
func NewMP3(format audio.Format) (Decoder, error) {
	if format.Codec != "mpeg" && format.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", format.Codec)
	}
	return &MP3Decoder{}, nil
}

// Decode converts MP3 bytes to a mono buffer at the stream's own rate
func (d *MP3Decoder) Decode(data []byte) (audio.Buffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	// go-mp3 always yields 16-bit little-endian stereo
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("mp3 decode error: %w", err)
	}
	pcm = pcm[:len(pcm)-len(pcm)%4]
	if len(pcm) == 0 {
		return audio.Buffer{}, fmt.Errorf("mp3 payload held no audio frames")
	}

	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return audio.Buffer{}, err
	}

	return audio.Buffer{
		Samples:    audio.Downmix(samples, 2),
		SampleRate: decoder.SampleRate(),
	}, nil
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	return nil
}
