// ABOUTME: Decoder interface and MIME-keyed registry
// ABOUTME: Selects a decoder per chunk MIME type and normalizes failures
package decode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

// ErrMalformedChunk marks a chunk that could not be decoded
var ErrMalformedChunk = errors.New("malformed audio chunk")

// Decoder decodes one encoded payload into a mono buffer
type Decoder interface {
	// Decode converts encoded audio data to normalized samples
	Decode(data []byte) (audio.Buffer, error)

	// Close releases decoder resources
	Close() error
}

// New creates a decoder for the given format
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	case "mpeg", "mp3":
		return NewMP3(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}
}

// Registry caches one decoder per MIME type
type Registry struct {
	defaultRate int

	mu       sync.Mutex
	decoders map[string]Decoder
}

// NewRegistry creates a registry; defaultRate applies when a MIME type carries no rate
func NewRegistry(defaultRate int) *Registry {
	return &Registry{
		defaultRate: defaultRate,
		decoders:    make(map[string]Decoder),
	}
}

// Decode decodes a chunk. Every failure wraps ErrMalformedChunk.
func (r *Registry) Decode(chunk audio.Chunk) (audio.Buffer, error) {
	if len(chunk.Data) == 0 {
		return audio.Buffer{}, fmt.Errorf("%w: empty payload", ErrMalformedChunk)
	}

	dec, err := r.decoderFor(chunk.MIMEType)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}

	buf, err := dec.Decode(chunk.Data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}
	return buf, nil
}

func (r *Registry) decoderFor(mime string) (Decoder, error) {
	if mime == "" {
		mime = audio.MIMEPCM
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dec, ok := r.decoders[mime]; ok {
		return dec, nil
	}

	format, err := audio.ParseMIME(mime, r.defaultRate)
	if err != nil {
		return nil, err
	}

	dec, err := New(format)
	if err != nil {
		return nil, err
	}
	r.decoders[mime] = dec
	return dec, nil
}

// Close releases all cached decoders
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for mime, dec := range r.decoders {
		if err := dec.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.decoders, mime)
	}
	return errors.Join(errs...)
}
