package voicelink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbalist-ai/voicelink/client"
	"github.com/verbalist-ai/voicelink/tools"
)

func TestSnapshotReferentialStability(t *testing.T) {
	h := newHarness(t)

	first := h.session.Snapshot()
	second := h.session.Snapshot()
	assert.Same(t, first, second, "unchanged state must reuse the snapshot")

	h.session.Mute()
	third := h.session.Snapshot()
	assert.NotSame(t, second, third)
	assert.True(t, third.IsMuted)
	assert.False(t, second.IsMuted, "old snapshots stay frozen")

	fourth := h.session.Snapshot()
	assert.Same(t, third, fourth)
}

func TestSnapshotTracksLivePlayback(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	idle := h.session.Snapshot()
	require.False(t, idle.IsPlaying)

	// The queue drains on the device goroutine, with no session event
	// in between.
	h.player.mu.Lock()
	h.player.playing = true
	h.player.mu.Unlock()

	playing := h.session.Snapshot()
	assert.NotSame(t, idle, playing)
	assert.True(t, playing.IsPlaying)

	// While speech drains the spectrum keeps moving, so nothing is
	// reused.
	assert.NotSame(t, playing, h.session.Snapshot())

	h.player.mu.Lock()
	h.player.playing = false
	h.player.mu.Unlock()

	drained := h.session.Snapshot()
	assert.False(t, drained.IsPlaying)
	assert.Same(t, drained, h.session.Snapshot(), "idle playback caches again")
}

func TestSnapshotChangesOnServerEvents(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	before := h.session.Snapshot()
	h.session.handleServerEvent(&client.AssistantMessage{
		Type:    client.EventTypeAssistantMessage,
		Message: client.Transcript{Role: client.RoleAssistant, Content: "hello there"},
	})
	<-h.msgs

	after := h.session.Snapshot()
	assert.NotSame(t, before, after)
	require.Len(t, after.Messages, 1)
	require.NotNil(t, after.LastVoiceMessage)
	assert.Equal(t, "hello there", after.LastVoiceMessage.Content)
	assert.Nil(t, after.LastUserMessage)
}

func TestSnapshotProjection(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	snap := h.session.Snapshot()
	assert.Equal(t, StatusConnected, snap.Status.Value)
	assert.Nil(t, snap.Error)
	assert.False(t, snap.IsError)
	assert.False(t, snap.IsSocketError)
	assert.False(t, snap.IsAudioError)
	assert.False(t, snap.IsMicrophoneError)
	assert.Equal(t, client.ReadyStateOpen, snap.ReadyState)
	assert.Len(t, snap.MicFFT, tools.FFTBins)
	assert.Len(t, snap.PlayerFFT, tools.FFTBins)
	assert.False(t, snap.IsPlaying)
	assert.Nil(t, snap.ChatMetadata)
}

func TestSnapshotWithoutMicrophoneHasSilentFFT(t *testing.T) {
	h := newHarness(t)
	snap := h.session.Snapshot()
	require.Len(t, snap.MicFFT, tools.FFTBins)
	for _, bin := range snap.MicFFT {
		assert.Zero(t, bin)
	}
}

func TestSnapshotErrorKinds(t *testing.T) {
	tests := []struct {
		name  string
		verr  *VoiceError
		check func(t *testing.T, snap *Snapshot)
	}{
		{
			name: "Socket",
			verr: newSocketError("lost connection"),
			check: func(t *testing.T, snap *Snapshot) {
				assert.True(t, snap.IsSocketError)
				assert.False(t, snap.IsAudioError)
				assert.False(t, snap.IsMicrophoneError)
			},
		},
		{
			name: "Audio",
			verr: newAudioError("device gone"),
			check: func(t *testing.T, snap *Snapshot) {
				assert.True(t, snap.IsAudioError)
				assert.False(t, snap.IsSocketError)
				assert.False(t, snap.IsMicrophoneError)
			},
		},
		{
			name: "Microphone",
			verr: newMicError("capture stalled"),
			check: func(t *testing.T, snap *Snapshot) {
				assert.True(t, snap.IsMicrophoneError)
				assert.False(t, snap.IsSocketError)
				assert.False(t, snap.IsAudioError)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.session.updateError(tt.verr)
			got := waitErr(t, h.errs)
			assert.Equal(t, tt.verr.Kind, got.Kind)

			snap := h.session.Snapshot()
			assert.True(t, snap.IsError)
			assert.Equal(t, tt.verr, snap.Error)
			tt.check(t, snap)
		})
	}
}

func TestSnapshotErrorClearedByReconnect(t *testing.T) {
	h := newHarness(t)
	h.transport.connectErr = errors.New("refused")
	require.Error(t, h.session.Connect(context.Background()))
	require.True(t, h.session.Snapshot().IsError)

	h.transport.mu.Lock()
	h.transport.connectErr = nil
	h.transport.mu.Unlock()
	require.NoError(t, h.session.Connect(context.Background()))
	snap := h.session.Snapshot()
	assert.False(t, snap.IsError)
	assert.Nil(t, snap.Error)
	assert.Equal(t, StatusConnected, snap.Status.Value)
}
