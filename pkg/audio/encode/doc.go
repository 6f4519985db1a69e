// ABOUTME: Audio encoder package for outbound microphone frames
// ABOUTME: Provides the Encoder interface and the PCM16 implementation
// Package encode turns normalized float frames into wire bytes.
//
// Only little-endian PCM16 is supported, which is what the live
// channel accepts for realtime input.
//
// Example:
//
//	encoder, err := encode.NewPCM(audio.Format{Codec: "pcm", SampleRate: 16000, Channels: 1})
//	data, err := encoder.Encode(frame)
//	mime := encoder.MIMEType() // "audio/pcm;rate=16000"
package encode
