package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"

	"snore-monitor-service/internal/observability/metrics"
	"snore-monitor-service/internal/service/signal"
)

const micQueue = 32

// MicSource captures from the default input device through miniaudio.
type MicSource struct {
	sampleRate   int
	frameSamples int
	metrics      *metrics.Metrics

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	frames  chan signal.Frame
	pending []int16
	closed  chan struct{}
	once    sync.Once
}

// NewMicSource creates a microphone source. Nothing is acquired until Open.
func NewMicSource(sampleRate, frameSamples int) *MicSource {
	if sampleRate <= 0 {
		sampleRate = signal.SampleRateHz
	}
	if frameSamples <= 0 {
		frameSamples = DefaultFrameSamples
	}
	return &MicSource{
		sampleRate:   sampleRate,
		frameSamples: frameSamples,
		metrics:      metrics.DefaultMetrics,
		frames:       make(chan signal.Frame, micQueue),
		closed:       make(chan struct{}),
	}
}

// Open initializes the audio backend and starts the capture device.
func (m *MicSource) Open(ctx context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("component", "mic").Msg(message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: m.onData,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("open microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("start microphone: %w", err)
	}

	m.mu.Lock()
	m.mctx = mctx
	m.device = device
	m.mu.Unlock()

	log.Info().Int("sampleRate", m.sampleRate).Int("frameSamples", m.frameSamples).Msg("Microphone capture started")
	return nil
}

// onData runs on the audio thread. It never blocks: frames that do not fit
// the queue are dropped.
func (m *MicSource) onData(_, input []byte, frameCount uint32) {
	n := int(frameCount)
	if len(input) < n*2 {
		n = len(input) / 2
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.pending = append(m.pending, int16(binary.LittleEndian.Uint16(input[i*2:])))
		if len(m.pending) == m.frameSamples {
			frame := signal.Frame{Samples: m.pending, At: time.Now()}
			m.pending = make([]int16, 0, m.frameSamples)
			select {
			case m.frames <- frame:
			default:
				m.metrics.RecordCaptureError("overrun")
			}
		}
	}
}

// Read returns the next captured frame.
func (m *MicSource) Read(ctx context.Context) (signal.Frame, error) {
	select {
	case <-ctx.Done():
		return signal.Frame{}, ctx.Err()
	case <-m.closed:
		return signal.Frame{}, ErrClosed
	case f := <-m.frames:
		return f, nil
	}
}

// Close stops the device and releases the backend.
func (m *MicSource) Close() error {
	m.once.Do(func() {
		close(m.closed)
		m.mu.Lock()
		device, mctx := m.device, m.mctx
		m.device, m.mctx = nil, nil
		m.mu.Unlock()

		if device != nil {
			device.Uninit()
		}
		if mctx != nil {
			if err := mctx.Uninit(); err != nil {
				log.Warn().Err(err).Msg("Failed to release audio context")
			}
			mctx.Free()
		}
		log.Info().Msg("Microphone capture stopped")
	})
	return nil
}

// CaptureDevices lists the names of the available input devices.
func CaptureDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}
