package voicelink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/verbalist-ai/voicelink/capture"
	"github.com/verbalist-ai/voicelink/client"
	"github.com/verbalist-ai/voicelink/messages"
	"github.com/verbalist-ai/voicelink/player"
	"github.com/verbalist-ai/voicelink/shared"
)

// Collaborator seams. The concrete types from client, capture and player
// satisfy them; tests substitute fakes through the unexported session
// hooks.
type transport interface {
	SetConfig(cfg *client.Config) error
	Connect(ctx context.Context) error
	Disconnect() error
	SendAudio(pcm []byte) error
	SendSessionSettings(settings client.SessionSettings) error
	SendUserInput(text string) error
	SendAssistantInput(text string) error
	SendPauseAssistant() error
	SendResumeAssistant() error
	ReadyState() client.ReadyState
}

type audioStream interface {
	Permission() capture.Permission
	SampleRate() int
	Channels() int
	Close() error
}

type microphone interface {
	Start(ctx context.Context) error
	Stop()
	Mute()
	Unmute()
	IsMuted() bool
	FFT() []float64
}

type soundPlayer interface {
	Init(ctx context.Context, format player.Format) error
	Enqueue(id string, pcm []byte) error
	ClearQueue()
	StopAll()
	Mute()
	Unmute()
	IsAudioMuted() bool
	IsPlaying() bool
	FFT() []float64
	Close() error
}

var (
	_ transport   = (*client.Client)(nil)
	_ audioStream = (*capture.Stream)(nil)
	_ microphone  = (*capture.Microphone)(nil)
	_ soundPlayer = (*player.Player)(nil)
)

// Session orchestrates one voice conversation: it drives the connect and
// disconnect lifecycle across the socket client, microphone and player,
// reduces their failures to a single VoiceError, and derives the session
// status from the outcome. Status and error are owned exclusively by the
// session; everything else in a Snapshot is read from the collaborator
// that owns it.
//
// Sessions are handed out by a Provider and stay valid until the
// provider closes.
type Session struct {
	logger shared.LoggerAdapter
	opts   *Options

	transport transport
	player    soundPlayer
	store     *messages.Store

	// teardowns tracks fail-over teardowns still in flight so the next
	// Connect does not race them for the socket and player.
	teardowns sync.WaitGroup

	mu         sync.Mutex
	status     Status
	verr       *VoiceError
	connecting bool
	closed     bool
	muted      bool
	paused     bool
	permission capture.Permission
	stream     audioStream
	mic        microphone
	meta       *client.ChatMetadata
	rev        uint64
	snap       *Snapshot
	snapRev    uint64

	// acquireStream and newMicrophone are swappable for tests.
	acquireStream func(ctx context.Context, opts capture.StreamOptions) (audioStream, error)
	newMicrophone func(stream audioStream) (microphone, error)
}

func newSession(logger shared.LoggerAdapter, opts *Options) (*Session, error) {
	cl, err := client.New(logger)
	if err != nil {
		return nil, fmt.Errorf("creating voice client: %w", err)
	}
	pl, err := player.New(logger)
	if err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}
	s := &Session{
		logger:    logger,
		opts:      opts,
		transport: cl,
		player:    pl,
		store:     messages.New(),
		status:    Status{Value: StatusDisconnected},
	}
	s.acquireStream = func(ctx context.Context, so capture.StreamOptions) (audioStream, error) {
		return capture.RequestStream(ctx, logger, so)
	}
	s.newMicrophone = func(stream audioStream) (microphone, error) {
		cs, ok := stream.(*capture.Stream)
		if !ok {
			return nil, errors.New("stream carries no capture device")
		}
		return capture.NewMicrophone(logger, cs, s.handleMicChunk, s.handleMicError)
	}
	for _, register := range []func() error{
		func() error { return cl.RegisterOpenHandler(s.handleSocketOpen) },
		func() error { return cl.RegisterCloseHandler(s.handleSocketClose) },
		func() error { return cl.RegisterMessageHandler(s.handleServerEvent) },
		func() error { return cl.RegisterAudioHandler(s.handleServerAudio) },
		func() error { return cl.RegisterErrorHandler(s.handleSocketError) },
	} {
		if err := register(); err != nil {
			return nil, fmt.Errorf("wiring voice client: %w", err)
		}
	}
	return s, nil
}

// Connect runs one full connection attempt: clear the previous error,
// acquire the microphone, dial the socket with the negotiated audio
// format, then start capture and playback together. Any failure is
// terminal for the attempt and leaves the session in the error state;
// there is no retry here, the consumer decides when to call Connect
// again. A second Connect while one is in flight is rejected with
// shared.ErrConnectInProgress rather than queued.
//
// Disconnect during an in-flight Connect does not cancel the pending
// steps; it only tears collaborator state down immediately.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return shared.ErrSessionClosed
	}
	if s.connecting || s.status.Value == StatusConnecting {
		s.mu.Unlock()
		return shared.ErrConnectInProgress
	}
	if s.status.Value == StatusConnected {
		s.mu.Unlock()
		return shared.ErrAlreadyConnected
	}
	s.connecting = true
	s.verr = nil
	s.meta = nil
	s.setStatusLocked(Status{Value: StatusConnecting})
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	// A fail-over from the previous connection may still be winding its
	// teardown down; let it finish before reusing the socket and player.
	s.teardowns.Wait()

	stream, err := s.acquireStream(ctx, capture.StreamOptions{
		SampleRate: s.opts.SampleRate,
		Channels:   s.opts.Channels,
	})
	if err != nil {
		return s.fail(newMicError(err.Error()))
	}
	s.mu.Lock()
	s.permission = stream.Permission()
	s.mu.Unlock()
	if stream.Permission() != capture.PermissionGranted {
		_ = stream.Close()
		return s.fail(newMicError(ReasonMicrophoneDenied))
	}
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	// The device's negotiated format wins over whatever the options
	// asked for; the backend must hear what the hardware produces.
	cfg := s.opts.clientConfig()
	cfg.SampleRate = stream.SampleRate()
	cfg.Channels = stream.Channels()
	if err := s.transport.SetConfig(cfg); err != nil {
		s.logger.Error("configuring voice client failed", err)
		return s.fail(newSocketError(ReasonSocketFailed))
	}
	if err := s.transport.Connect(ctx); err != nil {
		s.logger.Error("connecting voice client failed", err)
		return s.fail(newSocketError(ReasonSocketFailed))
	}

	// Capture and playback start together and both run to completion;
	// either failure is classified and fails the attempt over.
	var wg sync.WaitGroup
	var micErr, playerErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		micErr = s.startMicrophone(ctx, stream)
	}()
	go func() {
		defer wg.Done()
		playerErr = s.player.Init(ctx, player.Format{
			SampleRate: stream.SampleRate(),
			Channels:   stream.Channels(),
		})
	}()
	wg.Wait()
	if micErr != nil {
		s.updateError(newMicError(micErr.Error()))
	}
	if playerErr != nil {
		s.updateError(newAudioError(playerErr.Error()))
	}
	if micErr != nil || playerErr != nil {
		if verr := s.Error(); verr != nil {
			return verr
		}
		return nil
	}

	s.mu.Lock()
	if s.status.Value != StatusConnecting {
		// A disconnect or a collaborator failure won the race while the
		// startups were settling. The attempt is over, but the dial above
		// may have opened a socket the winner never saw; tear it down
		// again rather than leave it running under a dead status.
		verr := s.verr
		set := s.captureCollaboratorsLocked()
		s.mu.Unlock()
		s.teardown(set)
		if verr != nil {
			return verr
		}
		return nil
	}
	s.setStatusLocked(Status{Value: StatusConnected})
	s.mu.Unlock()
	s.logger.Info("voice session connected",
		zap.Int("sampleRate", stream.SampleRate()),
		zap.Int("channels", stream.Channels()),
	)
	return nil
}

// fail classifies a terminal connect failure and reports it to the
// caller as well.
func (s *Session) fail(verr *VoiceError) error {
	s.updateError(verr)
	return verr
}

func (s *Session) startMicrophone(ctx context.Context, stream audioStream) error {
	mic, err := s.newMicrophone(stream)
	if err != nil {
		return fmt.Errorf("creating microphone: %w", err)
	}
	if err := mic.Start(ctx); err != nil {
		return fmt.Errorf("starting microphone: %w", err)
	}
	s.mu.Lock()
	if s.stream == nil {
		// A teardown already ran; don't leave the device running.
		s.mu.Unlock()
		mic.Stop()
		return nil
	}
	s.mic = mic
	muted := s.muted
	s.bumpLocked()
	s.mu.Unlock()
	if muted {
		mic.Mute()
	}
	return nil
}

// Disconnect ends the session: the socket, playback, capture and the
// transcript are all torn down no matter what state the session is in.
// A denied microphone permission always forces the error status,
// trumping the disconnect intent; otherwise the status is reset to
// disconnected unless it already reports an error or the caller asked
// to keep it with disconnectOnError.
func (s *Session) Disconnect(disconnectOnError bool) {
	s.mu.Lock()
	if s.permission == capture.PermissionDenied {
		s.setStatusLocked(Status{Value: StatusError, Reason: ReasonMicrophoneDenied})
	} else if s.status.Value != StatusError && !disconnectOnError {
		s.setStatusLocked(Status{Value: StatusDisconnected})
	}
	s.paused = false
	set := s.captureCollaboratorsLocked()
	s.mu.Unlock()
	s.teardown(set)
	s.logger.Info("voice session disconnected")
}

// updateError is the single funnel for collaborator failures: it stores
// the classified error, notifies the consumer once per error, and
// applies the fail-over rule, which forces an error surfacing while the
// session is connecting or connected into the error status with a full
// teardown.
func (s *Session) updateError(verr *VoiceError) {
	s.mu.Lock()
	s.verr = verr
	s.bumpLocked()
	failover := verr != nil &&
		(s.status.Value == StatusConnecting || s.status.Value == StatusConnected)
	var set teardownSet
	if failover {
		s.setStatusLocked(Status{Value: StatusError, Reason: verr.Message})
		set = s.captureCollaboratorsLocked()
	}
	s.mu.Unlock()
	if verr != nil {
		s.logger.Error("voice session error", verr, zap.String("kind", string(verr.Kind)))
		if s.opts.OnError != nil {
			s.opts.OnError(verr)
		}
	}
	if failover {
		// Teardown leaves the caller's goroutine: failures arrive on the
		// socket read pump and the device callbacks, and tearing their
		// owner down from there would deadlock the pump waiting on
		// itself.
		s.teardowns.Add(1)
		go func() {
			defer s.teardowns.Done()
			s.teardown(set)
		}()
	}
}

// teardownSet pins the collaborators of one connection attempt so a
// late-running teardown cannot touch the collaborators of the next one.
type teardownSet struct {
	mic    microphone
	stream audioStream
}

func (s *Session) captureCollaboratorsLocked() teardownSet {
	set := teardownSet{mic: s.mic, stream: s.stream}
	s.mic = nil
	s.stream = nil
	return set
}

func (s *Session) teardown(set teardownSet) {
	if err := s.transport.Disconnect(); err != nil {
		s.logger.Warn("disconnecting voice client failed", zap.Error(err))
	}
	s.player.StopAll()
	if set.mic != nil {
		set.mic.Stop()
	}
	if set.stream != nil {
		if err := set.stream.Close(); err != nil {
			s.logger.Warn("closing capture stream failed", zap.Error(err))
		}
	}
	if !s.opts.KeepMessagesOnDisconnect {
		s.store.Clear()
	}
	s.bump()
}

// shutdown is the provider-close path: disconnect, then release the
// playback device for good.
func (s *Session) shutdown() {
	s.Disconnect(false)
	if err := s.player.Close(); err != nil {
		s.logger.Warn("closing player failed", zap.Error(err))
	}
	s.mu.Lock()
	s.closed = true
	s.bumpLocked()
	s.mu.Unlock()
}

// Mute drops microphone input without stopping the device. The choice
// is sticky: connecting while muted starts the microphone muted.
func (s *Session) Mute() {
	s.mu.Lock()
	s.muted = true
	mic := s.mic
	s.bumpLocked()
	s.mu.Unlock()
	if mic != nil {
		mic.Mute()
	}
}

func (s *Session) Unmute() {
	s.mu.Lock()
	s.muted = false
	mic := s.mic
	s.bumpLocked()
	s.mu.Unlock()
	if mic != nil {
		mic.Unmute()
	}
}

// MuteAudio silences assistant playback while keeping its timing, so
// unmuting resumes mid-sentence instead of replaying a backlog.
func (s *Session) MuteAudio() {
	s.player.Mute()
	s.bump()
}

func (s *Session) UnmuteAudio() {
	s.player.Unmute()
	s.bump()
}

// SendUserInput injects text as a user turn, as if it had been spoken.
func (s *Session) SendUserInput(text string) error {
	if err := s.transport.SendUserInput(text); err != nil {
		return fmt.Errorf("sending user input: %w", err)
	}
	return nil
}

// SendAssistantInput makes the assistant speak the given text verbatim.
func (s *Session) SendAssistantInput(text string) error {
	if err := s.transport.SendAssistantInput(text); err != nil {
		return fmt.Errorf("sending assistant input: %w", err)
	}
	return nil
}

// SendSessionSettings updates prompt, variables or context of the
// running chat in place.
func (s *Session) SendSessionSettings(settings client.SessionSettings) error {
	if err := s.transport.SendSessionSettings(settings); err != nil {
		return fmt.Errorf("sending session settings: %w", err)
	}
	return nil
}

// PauseAssistant stops the assistant from listening and speaking until
// ResumeAssistant. Queued speech is dropped so a resume does not replay
// stale audio.
func (s *Session) PauseAssistant() error {
	if err := s.transport.SendPauseAssistant(); err != nil {
		return fmt.Errorf("pausing assistant: %w", err)
	}
	s.mu.Lock()
	s.paused = true
	s.bumpLocked()
	s.mu.Unlock()
	s.player.ClearQueue()
	return nil
}

func (s *Session) ResumeAssistant() error {
	if err := s.transport.SendResumeAssistant(); err != nil {
		return fmt.Errorf("resuming assistant: %w", err)
	}
	s.mu.Lock()
	s.paused = false
	s.bumpLocked()
	s.mu.Unlock()
	return nil
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Error returns the current classified error, nil outside failures. It
// is cleared by the next Connect, not by Disconnect.
func (s *Session) Error() *VoiceError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verr
}

// ReadyState reports the raw socket lifecycle, which is distinct from
// the derived session status.
func (s *Session) ReadyState() client.ReadyState {
	return s.transport.ReadyState()
}

// Messages returns the transcript accumulated so far, oldest first.
func (s *Session) Messages() []messages.Message {
	return s.store.All()
}

// ChatMetadata returns the chat and chat group ids of the current chat,
// nil before the backend has announced them. The chat group id can seed
// Options.ResumedChatGroupID to continue a conversation later.
func (s *Session) ChatMetadata() *client.ChatMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *Session) handleSocketOpen() {
	s.store.AddConnected()
	s.bump()
	s.logger.Info("voice socket opened")
	if s.opts.SystemPrompt != "" || len(s.opts.Variables) > 0 {
		settings := client.SessionSettings{
			SystemPrompt: s.opts.SystemPrompt,
			Variables:    s.opts.Variables,
		}
		if err := s.transport.SendSessionSettings(settings); err != nil {
			s.logger.Warn("sending initial session settings failed", zap.Error(err))
		}
	}
	if s.opts.OnOpen != nil {
		s.opts.OnOpen()
	}
}

func (s *Session) handleSocketClose(code int, reason string) {
	s.store.AddDisconnected()
	s.mu.Lock()
	remoteClose := s.status.Value == StatusConnected && s.verr == nil
	s.bumpLocked()
	s.mu.Unlock()
	s.logger.Info("voice socket closed", zap.Int("code", code), zap.String("reason", reason))
	if s.opts.OnClose != nil {
		s.opts.OnClose()
	}
	if remoteClose {
		// The backend ended the chat cleanly; mirror an explicit
		// disconnect so status does not claim a live session over a
		// closed socket.
		s.teardowns.Add(1)
		go func() {
			defer s.teardowns.Done()
			s.Disconnect(false)
		}()
	}
}

func (s *Session) handleServerEvent(ev client.ServerEvent) {
	switch e := ev.(type) {
	case *client.ChatMetadata:
		s.store.AddChatMetadata(e)
		s.mu.Lock()
		s.meta = e
		s.mu.Unlock()
		s.logger.Info("chat metadata received",
			zap.String("chatID", e.ChatID),
			zap.String("chatGroupID", e.ChatGroupID),
		)
	case *client.UserMessage:
		s.notifyMessage(s.store.AddUserMessage(e))
	case *client.AssistantMessage:
		s.notifyMessage(s.store.AddAssistantMessage(e))
	case *client.UserInterruption:
		// The user talked over the assistant; whatever speech is still
		// queued is stale now.
		s.player.ClearQueue()
	case *client.AssistantEnd:
		s.logger.Debug("assistant turn ended")
	default:
		s.logger.Debug("ignoring server event", zap.String("type", string(ev.ServerEventType())))
	}
	s.bump()
}

func (s *Session) notifyMessage(m messages.Message) {
	if s.opts.OnMessage != nil {
		s.opts.OnMessage(m)
	}
}

func (s *Session) handleServerAudio(id string, pcm []byte) {
	if err := s.player.Enqueue(id, pcm); err != nil {
		s.updateError(newAudioError(err.Error()))
		return
	}
	s.bump()
}

func (s *Session) handleSocketError(err error) {
	var ee *client.ErrorEvent
	if errors.As(err, &ee) {
		s.updateError(newSocketError(ee.Message))
		return
	}
	s.updateError(newSocketError(err.Error()))
}

func (s *Session) handleMicChunk(pcm []byte) {
	if err := s.transport.SendAudio(pcm); err != nil {
		// The device can outlive the socket for a moment during
		// teardown; a dead socket already surfaces through the close
		// path, so dropped chunks are only logged.
		s.logger.Debug("dropping microphone chunk", zap.Error(err))
		return
	}
	s.bump()
}

func (s *Session) handleMicError(err error) {
	s.updateError(newMicError(err.Error()))
}

func (s *Session) setStatusLocked(status Status) {
	s.status = status
	s.rev++
}

func (s *Session) bumpLocked() {
	s.rev++
}

func (s *Session) bump() {
	s.mu.Lock()
	s.rev++
	s.mu.Unlock()
}
