// ABOUTME: Audio output package for clocked, scheduled playback
// ABOUTME: Provides the Timeline mixer, oto and malgo devices and the Analyser tap
// Package output provides the audio clock that playback is scheduled against.
//
// A Timeline renders buffers that were scheduled at absolute clock times
// into a continuous mono float32 stream, writing silence wherever nothing
// is scheduled. Its clock is the number of frames rendered so far, so a
// buffer scheduled to start where the previous one ended plays gaplessly.
// Devices (oto, malgo) pull from the Timeline and own the suspended state.
//
// Example:
//
//	tap := output.NewAnalyser(2048, 24000)
//	dev, err := output.NewOto(24000, tap, logger)
//	err = dev.Schedule(buf, dev.CurrentTime()+350*time.Millisecond)
package output
