// Package capture acquires the local microphone through miniaudio and
// streams PCM16 chunks to the voice session.
package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/verbalist-ai/voicelink/shared"
)

type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

type StreamOptions struct {
	SampleRate int
	Channels   int
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.Channels <= 0 {
		o.Channels = 1
	}
	return o
}

// Stream is the outcome of a capture acquisition attempt. A denied
// stream carries no device context and only reports the refusal; a
// granted one owns the miniaudio context and the negotiated format.
type Stream struct {
	logger     shared.LoggerAdapter
	permission Permission
	sampleRate int
	channels   int
	malgoCtx   *malgo.AllocatedContext
	denyCause  error

	mu     sync.Mutex
	closed bool
}

// RequestStream initializes a capture context for the requested format.
// Device-level refusal is not an error: it yields a denied Stream so the
// caller can distinguish "no microphone" from programmer mistakes.
// miniaudio converts between device and requested formats, so a granted
// stream always carries the requested values.
func RequestStream(ctx context.Context, logger shared.LoggerAdapter, opts StreamOptions) (*Stream, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio: " + strings.TrimSpace(message))
	})
	if err != nil {
		logger.Warn("capture context init failed, treating microphone as denied", zap.Error(err))
		return &Stream{
			logger:     logger,
			permission: PermissionDenied,
			denyCause:  err,
		}, nil
	}
	logger.Info("capture stream acquired",
		zap.Int("sampleRate", opts.SampleRate),
		zap.Int("channels", opts.Channels),
	)
	return &Stream{
		logger:     logger,
		permission: PermissionGranted,
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		malgoCtx:   mctx,
	}, nil
}

func (s *Stream) Permission() Permission { return s.permission }

func (s *Stream) SampleRate() int { return s.sampleRate }

func (s *Stream) Channels() int { return s.channels }

// DenyCause reports why acquisition was refused, nil for granted streams.
func (s *Stream) DenyCause() error { return s.denyCause }

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.malgoCtx == nil {
		return nil
	}
	s.closed = true
	if err := s.malgoCtx.Uninit(); err != nil {
		return fmt.Errorf("uninitializing capture context: %w", err)
	}
	s.malgoCtx.Free()
	s.logger.Debug("capture stream closed")
	return nil
}
