// ABOUTME: Tests for Opus decoder
// ABOUTME: Tests Opus decoder creation and validation
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/livetalk-go/pkg/audio"
)

func TestNewOpus(t *testing.T) {
	format := audio.Format{Codec: "opus", SampleRate: 24000, Channels: 1}

	decoder, err := NewOpus(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
}

func TestNewOpus_InvalidCodec(t *testing.T) {
	decoder, err := NewOpus(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2})
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}

	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}

	expectedError := "invalid codec for Opus decoder: pcm"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestNewOpus_InvalidRate(t *testing.T) {
	if _, err := NewOpus(audio.Format{Codec: "opus", SampleRate: 44100, Channels: 1}); err == nil {
		t.Fatal("expected error for sample rate opus does not support")
	}
}
