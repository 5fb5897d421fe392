package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/jack"
	"github.com/opd-ai/jack/jacktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayer(t *testing.T, bufferSamples int) (*jacktest.Server, *jack.Client, *Player) {
	t.Helper()
	srv := jacktest.NewServerWith(48000, 64)
	client, _, err := jack.Open(srv, "player", jack.NoStartServer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	out, err := client.RegisterOutputAudioPort("out")
	require.NoError(t, err)

	p := NewPlayer(out, bufferSamples)
	p.PollInterval = time.Millisecond
	require.NoError(t, jack.SetProcessHandler(client, p))
	require.NoError(t, client.Activate())
	return srv, client, p
}

type failingSource struct{ calls int }

func (f *failingSource) SampleRate() uint32 { return 48000 }

func (f *failingSource) Next() ([]float32, error) {
	f.calls++
	if f.calls > 2 {
		return nil, errors.New("disk on fire")
	}
	return []float32{0.1, 0.2}, nil
}

func TestPlayerProcessCopiesAndPads(t *testing.T) {
	srv, _, p := newTestPlayer(t, 128)

	in := make([]float32, 40)
	for i := range in {
		in[i] = 0.25
	}
	require.Equal(t, 40, p.ring.Write(in))

	srv.Cycle(64)
	got := srv.Samples("player:out")
	require.Len(t, got, 64)
	for i := 0; i < 40; i++ {
		assert.Equal(t, float32(0.25), got[i], "sample %d", i)
	}
	for i := 40; i < 64; i++ {
		assert.Zero(t, got[i], "sample %d", i)
	}

	st := p.Stats()
	assert.Equal(t, uint64(40), st.Played)
	assert.Zero(t, st.Underruns, "short reads outside a feed are not underruns")
	assert.Zero(t, st.Buffered)
}

func TestPlayerCountsUnderrunsWhileFeeding(t *testing.T) {
	srv, _, p := newTestPlayer(t, 128)
	p.feeding.Store(true)

	srv.Cycle(64)
	srv.Cycle(64)
	assert.Equal(t, uint64(2), p.Stats().Underruns)
}

func TestPlayerFeedPlaysWholeSource(t *testing.T) {
	srv, client, p := newTestPlayer(t, 256)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				srv.CycleQuiet(64)
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()

	err := p.Feed(ctx, NewToneSource(48000, 440, 0.5, 3000), client.SampleRate())
	close(stop)
	wg.Wait()

	require.NoError(t, err)
	st := p.Stats()
	assert.Equal(t, uint64(3000), st.Played)
	assert.Zero(t, st.Buffered)
	assert.False(t, p.feeding.Load())
}

func TestPlayerFeedAppliesEffects(t *testing.T) {
	_, _, p := newTestPlayer(t, 4096)
	silence, err := NewGainEffect(0)
	require.NoError(t, err)
	p.Effects = NewEffectChain(silence)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for p.ring.Len() < 960 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	err = p.Feed(ctx, NewToneSource(48000, 440, 1, 960), 48000)
	assert.ErrorIs(t, err, context.Canceled)

	out := make([]float32, 960)
	require.Equal(t, 960, p.ring.Read(out))
	for _, v := range out {
		require.Zero(t, v)
	}
}

func TestPlayerFeedResamples(t *testing.T) {
	_, _, p := newTestPlayer(t, 8192)

	// nothing drains the ring, so stop as soon as everything is queued
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for p.ring.Len() < 1998 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := p.Feed(ctx, NewToneSource(24000, 440, 0.5, 1000), 48000)
	assert.ErrorIs(t, err, context.Canceled)
	// 24 kHz doubled to 48 kHz; the final interpolation point needs a
	// sample that never arrives
	assert.Equal(t, 1998, p.ring.Len())
	assert.Zero(t, p.Stats().Played)
}

func TestPlayerFeedErrors(t *testing.T) {
	_, _, p := newTestPlayer(t, 1024)

	err := p.Feed(context.Background(), &failingSource{}, 48000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")

	err = p.Feed(context.Background(), NewToneSource(0, 440, 1, 10), 48000)
	assert.Error(t, err, "zero source rate")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Feed(ctx, NewToneSource(48000, 440, 1, 10), 48000)
	assert.ErrorIs(t, err, context.Canceled)

	p.feeding.Store(true)
	err = p.Feed(context.Background(), NewToneSource(48000, 440, 1, 10), 48000)
	assert.ErrorIs(t, err, ErrAlreadyFeeding)
}
