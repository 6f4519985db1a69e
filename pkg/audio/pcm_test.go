// ABOUTME: Tests for PCM16 conversions
// ABOUTME: Tests clamping, scaling and byte round-trips
package audio

import (
	"math"
	"testing"
)

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0, 0},
		{"full scale positive", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"half positive", 0.5, 16384},
		{"half negative", -0.5, -16384},
		{"clipped positive", 1.7, 32767},
		{"clipped negative", -3.2, -32768},
		{"nan", float32(math.NaN()), 0},
		{"positive infinity", float32(math.Inf(1)), 32767},
		{"negative infinity", float32(math.Inf(-1)), -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FloatToPCM16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestPCM16ToFloat(t *testing.T) {
	if got := PCM16ToFloat(-32768); got != -1.0 {
		t.Errorf("expected -1.0, got %f", got)
	}
	if got := PCM16ToFloat(0); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
	if got := PCM16ToFloat(32767); got >= 1.0 || got < 0.9999 {
		t.Errorf("expected just under 1.0, got %f", got)
	}
}

func TestEncodeDecodeExtremes(t *testing.T) {
	data := EncodePCM16([]float32{1.0, -1.0})

	if len(data) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(data))
	}

	// 32767 = 0x7FFF, -32768 = 0x8000 little-endian
	want := []byte{0xFF, 0x7F, 0x00, 0x80}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("byte %d: expected 0x%02X, got 0x%02X", i, want[i], data[i])
		}
	}

	samples, err := DecodePCM16(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got := FloatToPCM16(samples[0]); got != 32767 {
		t.Errorf("expected 32767 after round trip, got %d", got)
	}
	if got := FloatToPCM16(samples[1]); got != -32768 {
		t.Errorf("expected -32768 after round trip, got %d", got)
	}
}

func TestDecodePCM16Truncated(t *testing.T) {
	_, err := DecodePCM16([]byte{0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected error for odd byte count")
	}
}

func TestDecodePCM16Empty(t *testing.T) {
	samples, err := DecodePCM16(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected 0 samples, got %d", len(samples))
	}
}

func TestDownmix(t *testing.T) {
	out := Downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}

	if len(out) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("frame %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}
