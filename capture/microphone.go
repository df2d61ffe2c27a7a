package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/verbalist-ai/voicelink/shared"
	"github.com/verbalist-ai/voicelink/tools"
)

// chunkDuration is the device period, the cadence at which capture
// callbacks fire.
const chunkDuration = 20 * time.Millisecond

// ChunkHandler receives one PCM16 chunk per device callback. The slice
// is owned by the handler.
type ChunkHandler func(pcm []byte)

type Microphone struct {
	logger  shared.LoggerAdapter
	stream  *Stream
	onChunk ChunkHandler
	onError func(err error)

	mu      sync.Mutex
	device  *malgo.Device
	started bool
	muted   bool

	window *tools.SampleWindow
}

func NewMicrophone(logger shared.LoggerAdapter, stream *Stream, onChunk ChunkHandler, onError func(error)) (*Microphone, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if stream == nil {
		return nil, errors.New("stream is required")
	}
	if stream.Permission() != PermissionGranted {
		return nil, errors.New("stream permission is not granted")
	}
	if onChunk == nil {
		return nil, errors.New("chunk handler is required")
	}
	return &Microphone{
		logger:  logger,
		stream:  stream,
		onChunk: onChunk,
		onError: onError,
		window:  tools.NewSampleWindow(tools.FFTWindowSize),
	}, nil
}

func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return shared.ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(m.stream.Channels())
	cfg.SampleRate = uint32(m.stream.SampleRate())
	// The period is counted in frames, so channels do not factor in.
	cfg.PeriodSizeInFrames = uint32(tools.FrameSamples(chunkDuration, m.stream.SampleRate(), 1))
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(m.stream.malgoCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.onData(input)
		},
		Stop: func() {
			m.onStopped()
		},
	})
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("starting capture device: %w", err)
	}
	m.device = device
	m.started = true
	m.logger.Info("microphone started",
		zap.Int("sampleRate", m.stream.SampleRate()),
		zap.Int("channels", m.stream.Channels()),
	)
	return nil
}

func (m *Microphone) onData(input []byte) {
	if len(input) == 0 {
		return
	}
	m.mu.Lock()
	muted := m.muted
	m.mu.Unlock()
	if muted {
		return
	}
	chunk := make([]byte, len(input))
	copy(chunk, input)
	m.window.PushPCM16(chunk)
	m.onChunk(chunk)
}

func (m *Microphone) onStopped() {
	m.mu.Lock()
	stillRunning := m.started
	m.mu.Unlock()
	if stillRunning && m.onError != nil {
		m.onError(errors.New("capture device stopped unexpectedly"))
	}
}

func (m *Microphone) Stop() {
	m.mu.Lock()
	device := m.device
	m.device = nil
	started := m.started
	m.started = false
	m.mu.Unlock()
	if !started || device == nil {
		return
	}
	device.Uninit()
	m.window.Reset()
	m.logger.Info("microphone stopped")
}

// Mute drops chunks at the device boundary. The device keeps running so
// unmuting is instant.
func (m *Microphone) Mute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.muted {
		return
	}
	m.muted = true
	m.window.Reset()
	m.logger.Debug("microphone muted")
}

func (m *Microphone) Unmute() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.muted {
		return
	}
	m.muted = false
	m.logger.Debug("microphone unmuted")
}

func (m *Microphone) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// FFT returns the magnitude spectrum of recent input, all zeros while
// muted or silent.
func (m *Microphone) FFT() []float64 {
	return tools.FFTMagnitudes(m.window.Snapshot(), tools.FFTBins)
}
