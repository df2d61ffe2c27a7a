package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbalist-ai/voicelink/shared"
	"github.com/verbalist-ai/voicelink/tools"
)

func grantedStream() *Stream {
	return &Stream{
		logger:     shared.NewNopLogger(),
		permission: PermissionGranted,
		sampleRate: 16000,
		channels:   1,
	}
}

func TestStreamOptionsDefaults(t *testing.T) {
	opts := StreamOptions{}.withDefaults()
	assert.Equal(t, 16000, opts.SampleRate)
	assert.Equal(t, 1, opts.Channels)

	opts = StreamOptions{SampleRate: 48000, Channels: 2}.withDefaults()
	assert.Equal(t, 48000, opts.SampleRate)
	assert.Equal(t, 2, opts.Channels)
}

func TestRequestStreamGuards(t *testing.T) {
	t.Run("No logger", func(t *testing.T) {
		_, err := RequestStream(context.Background(), nil, StreamOptions{})
		assert.ErrorIs(t, err, shared.ErrNoLogger)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := RequestStream(ctx, shared.NewNopLogger(), StreamOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDeniedStream(t *testing.T) {
	cause := errors.New("no capture backend")
	s := &Stream{
		logger:     shared.NewNopLogger(),
		permission: PermissionDenied,
		denyCause:  cause,
	}
	assert.Equal(t, PermissionDenied, s.Permission())
	assert.Zero(t, s.SampleRate())
	assert.Zero(t, s.Channels())
	assert.ErrorIs(t, s.DenyCause(), cause)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestNewMicrophoneGuards(t *testing.T) {
	onChunk := func([]byte) {}

	t.Run("No logger", func(t *testing.T) {
		_, err := NewMicrophone(nil, grantedStream(), onChunk, nil)
		assert.ErrorIs(t, err, shared.ErrNoLogger)
	})

	t.Run("Nil stream", func(t *testing.T) {
		_, err := NewMicrophone(shared.NewNopLogger(), nil, onChunk, nil)
		assert.Error(t, err)
	})

	t.Run("Denied stream", func(t *testing.T) {
		denied := &Stream{logger: shared.NewNopLogger(), permission: PermissionDenied}
		_, err := NewMicrophone(shared.NewNopLogger(), denied, onChunk, nil)
		assert.Error(t, err)
	})

	t.Run("Nil chunk handler", func(t *testing.T) {
		_, err := NewMicrophone(shared.NewNopLogger(), grantedStream(), nil, nil)
		assert.Error(t, err)
	})
}

func TestMicrophoneChunkDelivery(t *testing.T) {
	var chunks [][]byte
	mic, err := NewMicrophone(shared.NewNopLogger(), grantedStream(), func(pcm []byte) {
		chunks = append(chunks, pcm)
	}, nil)
	require.NoError(t, err)

	input := []byte{0x01, 0x02, 0x03, 0x04}
	mic.onData(input)
	require.Len(t, chunks, 1)
	assert.Equal(t, input, chunks[0])

	// The chunk must be a copy, not a view into the device buffer.
	input[0] = 0xFF
	assert.Equal(t, byte(0x01), chunks[0][0])

	mic.onData(nil)
	assert.Len(t, chunks, 1)
}

func TestMicrophoneMute(t *testing.T) {
	var delivered int
	mic, err := NewMicrophone(shared.NewNopLogger(), grantedStream(), func([]byte) {
		delivered++
	}, nil)
	require.NoError(t, err)

	assert.False(t, mic.IsMuted())
	mic.onData([]byte{0x01, 0x00})
	assert.Equal(t, 1, delivered)

	mic.Mute()
	assert.True(t, mic.IsMuted())
	mic.onData([]byte{0x01, 0x00})
	assert.Equal(t, 1, delivered)

	// Muting twice stays muted, unmuting twice stays unmuted.
	mic.Mute()
	assert.True(t, mic.IsMuted())
	mic.Unmute()
	mic.Unmute()
	assert.False(t, mic.IsMuted())
	mic.onData([]byte{0x01, 0x00})
	assert.Equal(t, 2, delivered)
}

func TestMicrophoneFFT(t *testing.T) {
	mic, err := NewMicrophone(shared.NewNopLogger(), grantedStream(), func([]byte) {}, nil)
	require.NoError(t, err)

	out := mic.FFT()
	require.Len(t, out, tools.FFTBins)
	for _, v := range out {
		assert.Zero(t, v)
	}

	// A loud alternating signal must register some spectral energy.
	loud := make([]byte, 2048)
	for i := 0; i < len(loud); i += 4 {
		loud[i] = 0xFF
		loud[i+1] = 0x7F
		loud[i+2] = 0x00
		loud[i+3] = 0x80
	}
	mic.onData(loud)
	var total float64
	for _, v := range mic.FFT() {
		total += v
	}
	assert.Greater(t, total, 0.0)

	// Muting resets the window so the spectrum decays immediately.
	mic.Mute()
	out = mic.FFT()
	for _, v := range out {
		assert.Zero(t, v)
	}
}

func TestMicrophoneStopBeforeStart(t *testing.T) {
	mic, err := NewMicrophone(shared.NewNopLogger(), grantedStream(), func([]byte) {}, nil)
	require.NoError(t, err)
	// Must be a no-op rather than a panic.
	mic.Stop()
}
