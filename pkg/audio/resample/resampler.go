// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Used to bring agent audio to the output device rate
package resample

import "github.com/Resonate-Protocol/livetalk-go/pkg/audio"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels <= 0 {
		channels = 1
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample converts input samples to output sample rate using linear interpolation
// input: interleaved samples at inputRate
// output: interleaved samples at outputRate
// Returns the number of samples written to output.
func (r *Resampler) Resample(input []float32, output []float32) int {
	if len(input) == 0 {
		return 0
	}

	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels

	outIdx := 0
	for outIdx < outputFrames {
		inputIdx := int(r.position)
		if inputIdx >= inputFrames-1 {
			break
		}

		frac := float32(r.position - float64(inputIdx))
		for ch := 0; ch < r.channels; ch++ {
			a := input[inputIdx*r.channels+ch]
			b := input[(inputIdx+1)*r.channels+ch]
			output[outIdx*r.channels+ch] = a*(1-frac) + b*frac
		}

		outIdx++
		r.position += r.ratio
	}

	// Keep the fractional part and rebase onto the next chunk
	consumed := int(r.position)
	if consumed > inputFrames-1 {
		consumed = inputFrames - 1
	}
	r.position -= float64(consumed)

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// Convert resamples a whole mono buffer to rate. The result keeps the
// buffer's duration; the last input sample is held to fill the tail.
func Convert(buf audio.Buffer, rate int) audio.Buffer {
	if buf.SampleRate == rate || buf.SampleRate <= 0 || len(buf.Samples) == 0 {
		return audio.Buffer{Samples: buf.Samples, SampleRate: rate}
	}

	outLen := int(int64(len(buf.Samples)) * int64(rate) / int64(buf.SampleRate))
	out := make([]float32, outLen)

	r := New(buf.SampleRate, rate, 1)
	n := r.Resample(buf.Samples, out)

	last := buf.Samples[len(buf.Samples)-1]
	for i := n; i < outLen; i++ {
		out[i] = last
	}

	return audio.Buffer{Samples: out, SampleRate: rate}
}
