// ABOUTME: PCM16 sample conversions
// ABOUTME: Converts between normalized float samples and little-endian int16 bytes
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// MaxInt16 is the largest positive PCM16 sample
	MaxInt16 = 32767
	// MinInt16 is the most negative PCM16 sample
	MinInt16 = -32768
)

// Clamp limits x to [-1.0, 1.0]. NaN maps to silence.
func Clamp(x float32) float32 {
	if x != x {
		return 0
	}
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// FloatToPCM16 converts a normalized sample to int16.
// Positive values scale by 32767 and negative values by 32768 so that
// both 1.0 and -1.0 land on the extremes of the int16 range without wrapping.
func FloatToPCM16(x float32) int16 {
	c := float64(Clamp(x))
	var v float64
	if c < 0 {
		v = math.Round(c * 32768)
	} else {
		v = math.Round(c * 32767)
	}
	if v > MaxInt16 {
		v = MaxInt16
	} else if v < MinInt16 {
		v = MinInt16
	}
	return int16(v)
}

// PCM16ToFloat normalizes an int16 sample to [-1, 1)
func PCM16ToFloat(s int16) float32 {
	return float32(s) / 32768.0
}

// EncodePCM16 converts float samples to little-endian PCM16 bytes
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToPCM16(s)))
	}
	return out
}

// DecodePCM16 converts little-endian PCM16 bytes to normalized floats.
// An odd byte count means a truncated payload and is rejected.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("truncated pcm16 payload: %d bytes", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = PCM16ToFloat(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples, nil
}

// Int16ToFloat normalizes a slice of int16 samples
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = PCM16ToFloat(s)
	}
	return out
}

// Downmix averages interleaved channels into mono
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
