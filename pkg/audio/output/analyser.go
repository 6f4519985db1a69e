// ABOUTME: Spectral analysis tap over a ring buffer of recent samples
// ABOUTME: Produces coarse band magnitudes in [0,1] and an RMS level
package output

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	// MinDecibels maps to 0 in Frequencies
	MinDecibels = -100.0
	// MaxDecibels maps to 1 in Frequencies
	MaxDecibels = -30.0
)

// Analyser keeps the most recent fftSize samples written to it.
// Writers are the audio callbacks; readers are the level sampler.
type Analyser struct {
	fftSize    int
	sampleRate int
	hann       []float64

	mu    sync.Mutex
	ring  []float32
	pos   int
	count int
}

// NewAnalyser creates an analyser over a window of fftSize samples
func NewAnalyser(fftSize, sampleRate int) *Analyser {
	if fftSize < 2 {
		fftSize = 2048
	}
	return &Analyser{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		hann:       window.Hann(fftSize),
		ring:       make([]float32, fftSize),
	}
}

// SampleRate returns the rate of the analysed stream
func (a *Analyser) SampleRate() int {
	return a.sampleRate
}

// Write appends samples, overwriting the oldest
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % a.fftSize
	}
	a.count = min(a.count+len(samples), a.fftSize)
}

// Reset clears the window to silence
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	a.pos = 0
	a.count = 0
}

// snapshot returns the window oldest first
func (a *Analyser) snapshot() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]float64, a.fftSize)
	for i := range out {
		out[i] = float64(a.ring[(a.pos+i)%a.fftSize])
	}
	return out
}

// Level returns the RMS of the current window
func (a *Analyser) Level() float64 {
	samples := a.snapshot()
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Frequencies returns bands magnitudes in [0,1]. Bins are grouped on a
// logarithmic scale; each band takes its loudest bin.
func (a *Analyser) Frequencies(bands int) []float64 {
	if bands <= 0 {
		return nil
	}

	samples := a.snapshot()
	for i := range samples {
		samples[i] *= a.hann[i]
	}
	spectrum := fft.FFTReal(samples)

	// Hann coherent gain is 0.5, so a full scale sine peaks at N/4
	norm := float64(a.fftSize) / 4
	bins := a.fftSize / 2
	out := make([]float64, bands)

	lo := 1
	for b := 0; b < bands; b++ {
		hi := int(math.Round(math.Pow(float64(bins), float64(b+1)/float64(bands))))
		if hi <= lo {
			hi = lo + 1
		}
		if hi > bins || b == bands-1 {
			hi = bins
		}

		peak := MinDecibels
		for k := lo; k < hi && k < len(spectrum); k++ {
			mag := cmplx.Abs(spectrum[k]) / norm
			if mag <= 0 {
				continue
			}
			peak = max(peak, 20*math.Log10(mag))
		}
		out[b] = DecibelsToUnit(peak)

		if hi < bins {
			lo = hi
		}
	}
	return out
}

// DecibelsToUnit maps MinDecibels..MaxDecibels linearly onto [0,1]
func DecibelsToUnit(db float64) float64 {
	v := (db - MinDecibels) / (MaxDecibels - MinDecibels)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
