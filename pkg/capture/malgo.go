// ABOUTME: Malgo-based microphone implementation
// ABOUTME: Captures mono float32 through miniaudio and maps device errors
package capture

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoMicrophone captures from the default input device
type MalgoMicrophone struct {
	logger *slog.Logger

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
}

// NewMalgoMicrophone creates a microphone; the device is opened by Open
func NewMalgoMicrophone(logger *slog.Logger) *MalgoMicrophone {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoMicrophone{logger: logger}
}

// Open initializes and starts the capture device
func (m *MalgoMicrophone) Open(sampleRate int, onSamples func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return fmt.Errorf("microphone already open")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return classify("failed to initialize malgo context", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			onSamples(decodeFloat32(pInput, int(frameCount)))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		freeContext(ctx, m.logger)
		return classify("failed to initialize capture device", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(ctx, m.logger)
		return classify("failed to start capture device", err)
	}

	m.malgoCtx = ctx
	m.device = device

	m.logger.Info("microphone opened", "backend", "malgo", "sample_rate", sampleRate, "channels", 1)
	return nil
}

// Close stops the device and frees the context. Safe to call more than once.
func (m *MalgoMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.logger.Warn("capture device stop error", "error", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoCtx != nil {
		freeContext(m.malgoCtx, m.logger)
		m.malgoCtx = nil
	}
	return nil
}

func freeContext(ctx *malgo.AllocatedContext, logger *slog.Logger) {
	if err := ctx.Uninit(); err != nil {
		logger.Warn("malgo context uninit error", "error", err)
	}
	ctx.Free()
}

// decodeFloat32 copies little-endian float32 frames out of the device buffer
func decodeFloat32(data []byte, frames int) []float32 {
	if frames*4 > len(data) {
		frames = len(data) / 4
	}
	out := make([]float32, frames)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// classify maps a miniaudio failure onto the capture error taxonomy
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%s: %w: %v", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrDeviceUnavailable, err)
}
