package voicelink

import (
	"github.com/verbalist-ai/voicelink/client"
	"github.com/verbalist-ai/voicelink/messages"
	"github.com/verbalist-ai/voicelink/tools"
)

// Snapshot is one coherent view of the session for rendering: status and
// error as owned by the session, everything else projected from the
// collaborator that owns it. Snapshots are immutable; mutate nothing in
// them.
type Snapshot struct {
	Status Status
	Error  *VoiceError

	IsError           bool
	IsSocketError     bool
	IsAudioError      bool
	IsMicrophoneError bool

	IsMuted      bool
	IsAudioMuted bool
	IsPlaying    bool
	IsPaused     bool

	Messages         []messages.Message
	LastVoiceMessage *messages.Message
	LastUserMessage  *messages.Message
	ChatMetadata     *client.ChatMetadata

	MicFFT    []float64
	PlayerFFT []float64

	ReadyState client.ReadyState
}

// Snapshot assembles the current view. Successive calls return the same
// pointer until some input changes, so consumers that compare pointers
// can skip re-rendering for free.
func (s *Session) Snapshot() *Snapshot {
	// Playback drains on the device goroutine without touching the
	// session revision, so the playing side is checked live: a draining
	// player means a moving spectrum, and the cache only holds while
	// both the cached and the current state are idle.
	playing := s.player.IsPlaying()
	s.mu.Lock()
	rev := s.rev
	if s.snap != nil && s.snapRev == rev && !playing && !s.snap.IsPlaying {
		snap := s.snap
		s.mu.Unlock()
		return snap
	}
	snap := &Snapshot{
		Status:       s.status,
		Error:        s.verr,
		IsMuted:      s.muted,
		IsPaused:     s.paused,
		ChatMetadata: s.meta,
	}
	mic := s.mic
	s.mu.Unlock()

	if snap.Error != nil {
		snap.IsError = true
		switch snap.Error.Kind {
		case ErrorKindSocket:
			snap.IsSocketError = true
		case ErrorKindAudio:
			snap.IsAudioError = true
		case ErrorKindMic:
			snap.IsMicrophoneError = true
		}
	}

	snap.Messages = s.store.All()
	if m, ok := s.store.LastVoiceMessage(); ok {
		snap.LastVoiceMessage = &m
	}
	if m, ok := s.store.LastUserMessage(); ok {
		snap.LastUserMessage = &m
	}

	if mic != nil {
		snap.MicFFT = mic.FFT()
	} else {
		snap.MicFFT = make([]float64, tools.FFTBins)
	}
	snap.PlayerFFT = s.player.FFT()
	snap.IsAudioMuted = s.player.IsAudioMuted()
	snap.IsPlaying = playing
	snap.ReadyState = s.transport.ReadyState()

	s.mu.Lock()
	if s.rev == rev {
		s.snap = snap
		s.snapRev = rev
	}
	s.mu.Unlock()
	return snap
}
