// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts float audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation. Handles both upsampling and downsampling.
// A Resampler carries its fractional position between calls so a stream
// can be converted chunk by chunk; Convert handles a single whole buffer.
//
// Example:
//
//	r := resample.New(24000, 48000, 1)
//	n := r.Resample(input, output)
//
//	out := resample.Convert(buf, 48000)
package resample
