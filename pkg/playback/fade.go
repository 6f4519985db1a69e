// ABOUTME: Linear edge fades for scheduled buffers
// ABOUTME: Suppresses clicks where chunk boundaries meet
package playback

import (
	"time"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

// ApplyFade returns a copy of buf with a linear fade-in and fade-out of
// length fade at its edges. Short buffers fade over half their length.
func ApplyFade(buf audio.Buffer, fade time.Duration) audio.Buffer {
	out := audio.Buffer{
		Samples:    make([]float32, len(buf.Samples)),
		SampleRate: buf.SampleRate,
	}
	copy(out.Samples, buf.Samples)

	n := audio.DurationToSamples(fade, buf.SampleRate)
	if n > len(out.Samples)/2 {
		n = len(out.Samples) / 2
	}
	if n <= 0 {
		return out
	}

	last := len(out.Samples) - 1
	for i := 0; i < n; i++ {
		gain := float32(i) / float32(n)
		out.Samples[i] *= gain
		out.Samples[last-i] *= gain
	}
	return out
}
