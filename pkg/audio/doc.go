// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Chunk and PCM16 sample conversion functions
// Package audio provides the audio types shared by the capture and playback pipelines.
//
// This package defines:
//   - Format: sample rate and channel count of a PCM stream, parsed from MIME metadata
//   - Chunk: an encoded audio payload as carried over the channel
//   - Buffer: decoded, normalized float samples ready for scheduling
//
// It also provides the PCM16 conversions used on both sides of the wire:
//   - float32 -> int16 with clamping (capture)
//   - int16 -> float32 normalization (playback)
//
// Example:
//
//	pcm := audio.EncodePCM16(frame)           // []float32 -> little-endian bytes
//	samples, err := audio.DecodePCM16(pcm)    // bytes -> []float32
package audio
