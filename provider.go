package voicelink

import (
	"fmt"
	"sync"

	"github.com/verbalist-ai/voicelink/shared"
)

// Provider establishes the scope a voice session lives in. The session
// handle is obtainable only between Start and Close; asking for it
// outside that window is a programming error, reported as
// shared.ErrOutsideProviderScope. Sessions are never constructible
// directly.
type Provider struct {
	logger shared.LoggerAdapter
	opts   *Options

	mu      sync.Mutex
	session *Session
	started bool
	closed  bool
}

func New(opts *Options) (*Provider, error) {
	if opts == nil {
		return nil, shared.ErrNoConfig
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("validating options: %w", err)
	}
	return &Provider{logger: opts.Logger, opts: opts}, nil
}

// Start brings the provider into scope: it builds the socket client,
// player and message store and wires the session between them. Nothing
// connects yet; that is the session's Connect.
func (p *Provider) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return shared.ErrOutsideProviderScope
	}
	if p.started {
		return shared.ErrProviderStarted
	}
	session, err := newSession(p.logger, p.opts)
	if err != nil {
		return fmt.Errorf("building voice session: %w", err)
	}
	p.session = session
	p.started = true
	p.logger.Info("voice provider started")
	return nil
}

func (p *Provider) Session() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.closed {
		return nil, shared.ErrOutsideProviderScope
	}
	return p.session, nil
}

// Close leaves the scope: the session disconnects, the playback device
// is released, and Session fails from here on. Closing an unstarted or
// already closed provider is a no-op.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed || !p.started {
		p.closed = true
		p.mu.Unlock()
		return nil
	}
	session := p.session
	p.closed = true
	p.mu.Unlock()

	session.shutdown()
	p.logger.Info("voice provider closed")
	return nil
}
