// ABOUTME: Microphone capture pipeline for outbound agent audio
// ABOUTME: Slices the mic signal into PCM16 frames and hands them to the channel
// Package capture acquires the microphone and streams fixed-size frames to
// a live.Sender as base64 PCM16 media payloads.
//
// Frames are sent in capture order. When the channel is closed the frame is
// dropped; capture never blocks on transport readiness. Stop is effective
// immediately and is safe to call any number of times from any state.
//
// Example:
//
//	p, err := capture.New(capture.NewMalgoMicrophone(logger), client, capture.Options{})
//	if err := p.Start(ctx); err != nil {
//		return err // ErrPermissionDenied or ErrDeviceUnavailable
//	}
//	defer p.Stop()
package capture
