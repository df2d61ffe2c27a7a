// Package player renders assistant speech. PCM16 frames from the socket
// land in a drop-oldest ring that the audio device drains at its own
// pace, so a stalled device can never back-pressure the read loop.
package player

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/verbalist-ai/voicelink/shared"
	"github.com/verbalist-ai/voicelink/tools"
)

type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) withDefaults() Format {
	if f.SampleRate <= 0 {
		f.SampleRate = 16000
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	return f
}

const (
	// queueDepth bounds how much undelivered speech the ring holds.
	queueDepth  = 10 * time.Second
	otoBufferMs = 50
)

type engine interface {
	Play()
	Close() error
}

// playbackTap sits between the ring and the device. It zeroes audio
// while muted, keeping the playback clock running, and feeds whatever
// actually reaches the device into the spectrum window.
type playbackTap struct {
	queue  *pcmQueue
	window *tools.SampleWindow
	muted  *atomic.Bool
}

func (t *playbackTap) Read(p []byte) (int, error) {
	n, err := t.queue.Read(p)
	if n > 0 {
		if t.muted.Load() {
			clear(p[:n])
		}
		t.window.PushPCM16(p[:n])
	}
	return n, err
}

type Player struct {
	logger shared.LoggerAdapter

	mu          sync.Mutex
	initialized bool
	format      Format
	queue       *pcmQueue
	engine      engine

	muted  atomic.Bool
	window *tools.SampleWindow

	newEngine func(ctx context.Context, format Format, r io.Reader) (engine, error)
}

func New(logger shared.LoggerAdapter) (*Player, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	return &Player{
		logger:    logger,
		window:    tools.NewSampleWindow(tools.FFTWindowSize),
		newEngine: newOtoEngine,
	}, nil
}

// Init binds the player to an output format and starts the device. A
// second Init with the same format is a no-op so sessions can reconnect
// without recreating the player; the underlying audio context cannot be
// re-created with a different format within one process.
func (p *Player) Init(ctx context.Context, format Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	format = format.withDefaults()
	if p.initialized {
		if p.format != format {
			return shared.ErrFormatMismatch
		}
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	queue := newPCMQueue(tools.FrameBytes(queueDepth, format.SampleRate, format.Channels))
	tap := &playbackTap{queue: queue, window: p.window, muted: &p.muted}
	eng, err := p.newEngine(ctx, format, tap)
	if err != nil {
		return fmt.Errorf("initializing playback engine: %w", err)
	}
	eng.Play()
	p.queue = queue
	p.engine = eng
	p.format = format
	p.initialized = true
	p.logger.Info("player initialized",
		zap.Int("sampleRate", format.SampleRate),
		zap.Int("channels", format.Channels),
	)
	return nil
}

// Enqueue appends one clip frame for playback. id identifies the
// assistant message the frame belongs to and is only used for logging.
func (p *Player) Enqueue(id string, pcm []byte) error {
	p.mu.Lock()
	queue := p.queue
	initialized := p.initialized
	p.mu.Unlock()
	if !initialized {
		return shared.ErrPlayerNotInitialized
	}
	if len(pcm) == 0 {
		return nil
	}
	if dropped := queue.Write(pcm); dropped > 0 {
		p.logger.Warn("playback queue dropped audio",
			zap.String("id", id),
			zap.Int("droppedBytes", dropped),
		)
	}
	return nil
}

// IsPlaying reports whether undelivered speech remains. The device may
// still be draining its last buffered chunk for a few milliseconds after
// this turns false.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	queue := p.queue
	p.mu.Unlock()
	return queue != nil && queue.Pending() > 0
}

// ClearQueue discards queued speech but leaves the spectrum window
// alone, for interruptions where playback continues shortly after.
func (p *Player) ClearQueue() {
	p.mu.Lock()
	queue := p.queue
	p.mu.Unlock()
	if queue == nil {
		return
	}
	if n := queue.Reset(); n > 0 {
		p.logger.Debug("playback queue cleared", zap.Int("droppedBytes", n))
	}
}

// StopAll silences the player: queued speech is dropped and the spectrum
// collapses to zero.
func (p *Player) StopAll() {
	p.ClearQueue()
	p.window.Reset()
}

func (p *Player) Mute() {
	p.muted.Store(true)
	p.logger.Debug("player muted")
}

func (p *Player) Unmute() {
	p.muted.Store(false)
	p.logger.Debug("player unmuted")
}

func (p *Player) IsAudioMuted() bool {
	return p.muted.Load()
}

// FFT returns the magnitude spectrum of recently played audio, all
// zeros while muted.
func (p *Player) FFT() []float64 {
	return tools.FFTMagnitudes(p.window.Snapshot(), tools.FFTBins)
}

func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil
	}
	p.queue.Close()
	err := p.engine.Close()
	p.queue = nil
	p.engine = nil
	p.initialized = false
	p.window.Reset()
	if err != nil {
		return fmt.Errorf("closing playback engine: %w", err)
	}
	return nil
}

// The process-wide audio context. oto permits exactly one, so every
// player in the process shares it and must agree on the format.
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoReady  chan struct{}
	otoFormat Format
)

func otoContext(format Format) (*oto.Context, chan struct{}, error) {
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx != nil {
		if otoFormat != format {
			return nil, nil, shared.ErrFormatMismatch
		}
		return otoCtx, otoReady, nil
	}
	octx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   otoBufferMs * time.Millisecond,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating audio context: %w", err)
	}
	otoCtx = octx
	otoReady = ready
	otoFormat = format
	return octx, ready, nil
}

type otoEngine struct {
	player *oto.Player
}

func newOtoEngine(ctx context.Context, format Format, r io.Reader) (engine, error) {
	octx, ready, err := otoContext(format)
	if err != nil {
		return nil, err
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &otoEngine{player: octx.NewPlayer(r)}, nil
}

func (e *otoEngine) Play() {
	e.player.Play()
}

func (e *otoEngine) Close() error {
	return e.player.Close()
}
