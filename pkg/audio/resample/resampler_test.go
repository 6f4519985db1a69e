// ABOUTME: Tests for the linear resampler
// ABOUTME: Tests interpolation, streaming state and whole-buffer conversion
package resample

import (
	"math"
	"testing"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

func TestResampleUpsampleInterpolates(t *testing.T) {
	r := New(24000, 48000, 1)

	input := []float32{0, 1, 0}
	output := make([]float32, 8)
	n := r.Resample(input, output)

	want := []float32{0, 0.5, 1, 0.5}
	if n != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), n)
	}
	for i, w := range want {
		if math.Abs(float64(output[i]-w)) > 1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, output[i], w)
		}
	}
}

func TestResampleDownsample(t *testing.T) {
	r := New(48000, 24000, 1)

	input := []float32{0, 0.1, 0.2, 0.3, 0.4, 0.5}
	output := make([]float32, 3)
	n := r.Resample(input, output)

	if n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	if output[1] != 0.2 || output[2] != 0.4 {
		t.Errorf("expected every other sample, got %v", output)
	}
}

func TestResampleStereoKeepsChannels(t *testing.T) {
	r := New(24000, 48000, 2)

	input := []float32{1, -1, 1, -1}
	output := make([]float32, 4)
	n := r.Resample(input, output)

	if n != 4 {
		t.Fatalf("expected 4 samples, got %d", n)
	}
	for i := 0; i < n; i += 2 {
		if output[i] != 1 || output[i+1] != -1 {
			t.Errorf("frame %d mixed channels: %v", i/2, output[i:i+2])
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	r := New(24000, 48000, 1)
	if n := r.Resample(nil, make([]float32, 4)); n != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", n)
	}
}

func TestOutputSamplesNeeded(t *testing.T) {
	r := New(24000, 48000, 1)
	if got := r.OutputSamplesNeeded(2400); got != 4800 {
		t.Errorf("expected 4800, got %d", got)
	}
}

func TestConvertPreservesDuration(t *testing.T) {
	buf := audio.Buffer{Samples: make([]float32, 2400), SampleRate: 24000}
	for i := range buf.Samples {
		buf.Samples[i] = 0.25
	}

	out := Convert(buf, 48000)

	if out.SampleRate != 48000 {
		t.Errorf("expected rate 48000, got %d", out.SampleRate)
	}
	if out.Duration() != buf.Duration() {
		t.Errorf("duration changed: %v -> %v", buf.Duration(), out.Duration())
	}
	for i, s := range out.Samples {
		if s != 0.25 {
			t.Fatalf("sample %d: got %f, want 0.25", i, s)
		}
	}
}

func TestConvertSameRate(t *testing.T) {
	buf := audio.Buffer{Samples: []float32{0.1, 0.2}, SampleRate: 24000}
	out := Convert(buf, 24000)
	if len(out.Samples) != 2 || out.SampleRate != 24000 {
		t.Errorf("expected passthrough, got %+v", out)
	}
}
