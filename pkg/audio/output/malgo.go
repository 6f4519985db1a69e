// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Drives the Timeline mixer from a miniaudio playback callback
package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	*Timeline

	logger   *slog.Logger
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	mu     sync.Mutex
	closed bool
}

// NewMalgo opens the default playback device at sampleRate, mono float32
func NewMalgo(sampleRate int, tap *Analyser, logger *slog.Logger) (*Malgo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	m := &Malgo{
		Timeline: NewTimeline(sampleRate, tap),
		logger:   logger,
		malgoCtx: ctx,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			// Read always fills whole frames; silence when suspended
			_, _ = m.Timeline.Read(pOutput[:int(frameCount)*4])
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		m.freeContext()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.freeContext()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}
	m.device = device

	logger.Info("audio output initialized", "backend", "malgo", "sample_rate", sampleRate, "channels", 1)
	return m, nil
}

// Suspend stops the device and freezes the clock
func (m *Malgo) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.device == nil {
		return ErrClosed
	}

	if err := m.Timeline.Suspend(); err != nil {
		return err
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

// Resume restarts the device and the clock. It fails with ErrClosed once
// the device has been released.
func (m *Malgo) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.device == nil {
		return ErrClosed
	}

	if !m.device.IsStarted() {
		if err := m.device.Start(); err != nil {
			return fmt.Errorf("failed to start device: %w", err)
		}
	}
	return m.Timeline.Resume()
}

// Analyser returns the output tap
func (m *Malgo) Analyser() *Analyser {
	return m.tap
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	m.Timeline.Close()
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.logger.Warn("device stop error", "error", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	m.freeContext()
	return nil
}

func (m *Malgo) freeContext() {
	if m.malgoCtx == nil {
		return
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		m.logger.Warn("malgo context uninit error", "error", err)
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
}
