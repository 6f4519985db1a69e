// ABOUTME: Audio decoder package for inbound agent audio
// ABOUTME: Provides Decoder interface and implementations for PCM16, Opus, MP3
// Package decode turns encoded chunks from the channel into normalized mono buffers.
//
// Supports: PCM16 little-endian (audio/pcm;rate=N), Opus (audio/opus), MP3 (audio/mpeg)
//
// All decoders output float32 samples in [-1, 1) at the chunk's native rate.
// Any failure is reported as ErrMalformedChunk so callers can skip the chunk
// and keep going.
//
// Example:
//
//	reg := decode.NewRegistry(audio.OutputSampleRate)
//	buf, err := reg.Decode(chunk)
//	if errors.Is(err, decode.ErrMalformedChunk) {
//	    // log and skip
//	}
package decode
