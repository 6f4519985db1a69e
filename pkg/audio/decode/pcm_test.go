// ABOUTME: Tests for PCM decoder
// ABOUTME: Tests PCM16 decoding, downmix and validation
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

func TestNewPCM(t *testing.T) {
	format := audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 1}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
}

func TestPCMDecodeMono(t *testing.T) {
	decoder, err := NewPCM(audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 1})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	// 0x4000 = 16384 -> 0.5, 0xC000 = -16384 -> -0.5
	buf, err := decoder.Decode([]byte{0x00, 0x40, 0x00, 0xC0})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if buf.SampleRate != 24000 {
		t.Errorf("expected rate 24000, got %d", buf.SampleRate)
	}
	if len(buf.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(buf.Samples))
	}
	if buf.Samples[0] != 0.5 || buf.Samples[1] != -0.5 {
		t.Errorf("expected [0.5 -0.5], got %v", buf.Samples)
	}
}

func TestPCMDecodeStereoDownmix(t *testing.T) {
	decoder, err := NewPCM(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	buf, err := decoder.Decode([]byte{0x00, 0x40, 0x00, 0x00})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(buf.Samples) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(buf.Samples))
	}
	if buf.Samples[0] != 0.25 {
		t.Errorf("expected 0.25, got %f", buf.Samples[0])
	}
}

func TestPCMDecodeTruncated(t *testing.T) {
	decoder, err := NewPCM(audio.Format{Codec: "pcm", SampleRate: 24000, Channels: 1})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if _, err := decoder.Decode([]byte{0x00, 0x40, 0x00}); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestNewPCM_InvalidCodec(t *testing.T) {
	decoder, err := NewPCM(audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2})
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}

	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}

	expectedError := "invalid codec for PCM decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}
