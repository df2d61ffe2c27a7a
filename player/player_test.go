package player

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbalist-ai/voicelink/shared"
	"github.com/verbalist-ai/voicelink/tools"
)

func TestPCMQueue(t *testing.T) {
	t.Run("Write then read", func(t *testing.T) {
		q := newPCMQueue(16)
		assert.Zero(t, q.Write([]byte{1, 2, 3, 4}))
		assert.Equal(t, 4, q.Pending())

		buf := make([]byte, 8)
		n, err := q.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])
		assert.Zero(t, q.Pending())
	})

	t.Run("Overflow drops oldest", func(t *testing.T) {
		q := newPCMQueue(4)
		assert.Zero(t, q.Write([]byte{1, 2, 3}))
		assert.Equal(t, 2, q.Write([]byte{4, 5, 6}))

		buf := make([]byte, 8)
		n, err := q.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte{3, 4, 5, 6}, buf[:n])
	})

	t.Run("Oversized write keeps the tail", func(t *testing.T) {
		q := newPCMQueue(3)
		assert.Equal(t, 2, q.Write([]byte{1, 2, 3, 4, 5}))

		buf := make([]byte, 8)
		n, err := q.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte{3, 4, 5}, buf[:n])
	})

	t.Run("Read blocks until write", func(t *testing.T) {
		q := newPCMQueue(16)
		got := make(chan []byte, 1)
		go func() {
			buf := make([]byte, 8)
			n, err := q.Read(buf)
			if err != nil {
				return
			}
			got <- buf[:n]
		}()

		time.Sleep(20 * time.Millisecond)
		q.Write([]byte{9})
		select {
		case data := <-got:
			assert.Equal(t, []byte{9}, data)
		case <-time.After(2 * time.Second):
			t.Fatal("reader never woke up")
		}
	})

	t.Run("Close drains then EOF", func(t *testing.T) {
		q := newPCMQueue(16)
		q.Write([]byte{1, 2})
		q.Close()

		buf := make([]byte, 8)
		n, err := q.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = q.Read(buf)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("Close unblocks a waiting reader", func(t *testing.T) {
		q := newPCMQueue(16)
		done := make(chan error, 1)
		go func() {
			buf := make([]byte, 8)
			_, err := q.Read(buf)
			done <- err
		}()

		time.Sleep(20 * time.Millisecond)
		q.Close()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, io.EOF)
		case <-time.After(2 * time.Second):
			t.Fatal("reader never woke up")
		}
	})

	t.Run("Write after close is dropped", func(t *testing.T) {
		q := newPCMQueue(16)
		q.Close()
		assert.Equal(t, 3, q.Write([]byte{1, 2, 3}))
		assert.Zero(t, q.Pending())
	})

	t.Run("Reset reports dropped bytes", func(t *testing.T) {
		q := newPCMQueue(16)
		q.Write([]byte{1, 2, 3})
		assert.Equal(t, 3, q.Reset())
		assert.Zero(t, q.Pending())
		assert.Zero(t, q.Reset())
	})
}

type fakeEngine struct {
	reader  io.Reader
	playing atomic.Bool
	closed  atomic.Bool
}

func (f *fakeEngine) Play() { f.playing.Store(true) }

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

func newFakePlayer(t *testing.T) (*Player, *fakeEngine) {
	t.Helper()
	p, err := New(shared.NewNopLogger())
	require.NoError(t, err)
	eng := &fakeEngine{}
	p.newEngine = func(_ context.Context, _ Format, r io.Reader) (engine, error) {
		eng.reader = r
		return eng, nil
	}
	return p, eng
}

func TestPlayerGuards(t *testing.T) {
	t.Run("No logger", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, shared.ErrNoLogger)
	})

	t.Run("Enqueue before init", func(t *testing.T) {
		p, _ := newFakePlayer(t)
		assert.ErrorIs(t, p.Enqueue("a1", []byte{1, 2}), shared.ErrPlayerNotInitialized)
	})

	t.Run("Operations before init are no-ops", func(t *testing.T) {
		p, _ := newFakePlayer(t)
		p.StopAll()
		p.ClearQueue()
		assert.False(t, p.IsPlaying())
		assert.NoError(t, p.Close())
	})
}

func TestPlayerInit(t *testing.T) {
	p, eng := newFakePlayer(t)
	format := Format{SampleRate: 16000, Channels: 1}

	require.NoError(t, p.Init(context.Background(), format))
	assert.True(t, eng.playing.Load())

	t.Run("Same format is a no-op", func(t *testing.T) {
		assert.NoError(t, p.Init(context.Background(), format))
	})

	t.Run("Different format is rejected", func(t *testing.T) {
		assert.ErrorIs(t, p.Init(context.Background(), Format{SampleRate: 48000, Channels: 2}), shared.ErrFormatMismatch)
	})

	t.Run("Zero format gets defaults and matches", func(t *testing.T) {
		assert.NoError(t, p.Init(context.Background(), Format{}))
	})
}

func TestPlayerEnqueueAndPlayback(t *testing.T) {
	p, eng := newFakePlayer(t)
	require.NoError(t, p.Init(context.Background(), Format{}))

	assert.False(t, p.IsPlaying())
	require.NoError(t, p.Enqueue("a1", []byte{0x01, 0x02, 0x03, 0x04}))
	assert.True(t, p.IsPlaying())

	// Simulate the device pulling audio through the tap.
	buf := make([]byte, 8)
	n, err := eng.reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf[:n])
	assert.False(t, p.IsPlaying())

	require.NoError(t, p.Enqueue("a1", nil))
	assert.False(t, p.IsPlaying())
}

func TestPlayerMuteZeroesPlayback(t *testing.T) {
	p, eng := newFakePlayer(t)
	require.NoError(t, p.Init(context.Background(), Format{}))

	assert.False(t, p.IsAudioMuted())
	p.Mute()
	assert.True(t, p.IsAudioMuted())

	require.NoError(t, p.Enqueue("a1", []byte{0x11, 0x22, 0x33, 0x44}))
	buf := make([]byte, 8)
	n, err := eng.reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf[:n])

	p.Unmute()
	require.NoError(t, p.Enqueue("a1", []byte{0x11, 0x22}))
	n, err = eng.reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22}, buf[:n])
}

func TestPlayerClearAndStop(t *testing.T) {
	p, eng := newFakePlayer(t)
	require.NoError(t, p.Init(context.Background(), Format{}))

	loud := make([]byte, 512)
	for i := 0; i < len(loud); i += 2 {
		loud[i] = 0xFF
		loud[i+1] = 0x7F
	}
	require.NoError(t, p.Enqueue("a1", loud))

	// Pull some audio so the spectrum window has content.
	buf := make([]byte, 256)
	_, err := eng.reader.Read(buf)
	require.NoError(t, err)
	var total float64
	for _, v := range p.FFT() {
		total += v
	}
	assert.Greater(t, total, 0.0)

	p.ClearQueue()
	assert.False(t, p.IsPlaying())
	total = 0
	for _, v := range p.FFT() {
		total += v
	}
	assert.Greater(t, total, 0.0, "ClearQueue keeps the spectrum window")

	require.NoError(t, p.Enqueue("a2", loud))
	p.StopAll()
	assert.False(t, p.IsPlaying())
	for _, v := range p.FFT() {
		assert.Zero(t, v)
	}
}

func TestPlayerClose(t *testing.T) {
	p, eng := newFakePlayer(t)
	require.NoError(t, p.Init(context.Background(), Format{}))
	require.NoError(t, p.Enqueue("a1", []byte{1, 2}))

	require.NoError(t, p.Close())
	assert.True(t, eng.closed.Load())
	assert.ErrorIs(t, p.Enqueue("a1", []byte{1}), shared.ErrPlayerNotInitialized)

	// A closed player can be initialized again for the next session.
	require.NoError(t, p.Init(context.Background(), Format{}))
	require.NoError(t, p.Enqueue("a2", []byte{3, 4}))
	assert.True(t, p.IsPlaying())
}

func TestPlayerFFTLength(t *testing.T) {
	p, _ := newFakePlayer(t)
	out := p.FFT()
	require.Len(t, out, tools.FFTBins)
	for _, v := range out {
		assert.Zero(t, v)
	}
}
