package jacktest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/opd-ai/jack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOpen(t *testing.T, s *Server, name string) jack.ClientHandle {
	t.Helper()
	h, bits := s.Open(name, jack.NoStartServer)
	require.NotZero(t, h, "open %s: status 0x%x", name, bits)
	return h
}

func TestServerAssignsUniqueNames(t *testing.T) {
	s := NewServer()
	mustOpen(t, s, "dup")

	h, bits := s.Open("dup", 0)
	require.NotZero(t, h)
	assert.Equal(t, jack.NameNotUnique.Bits(), bits)
	assert.Equal(t, "dup-01", s.ClientName(h))

	h, _ = s.Open("dup", 0)
	assert.Equal(t, "dup-02", s.ClientName(h))

	h, bits = s.Open("dup", jack.UseExactName)
	assert.Zero(t, h)
	assert.Equal(t, (jack.Failure | jack.NameNotUnique).Bits(), bits)
}

func TestServerFailNext(t *testing.T) {
	s := NewServer()
	s.FailNext(CallOpen, 1)

	h, bits := s.Open("x", 0)
	assert.Zero(t, h)
	assert.True(t, jack.DecodeStatus(bits).Contains(jack.Failure))

	h, _ = s.Open("x", 0)
	assert.NotZero(t, h)
	assert.Equal(t, 2, s.Calls(CallOpen))
}

func TestServerRegisterPortRules(t *testing.T) {
	s := NewServer()
	h := mustOpen(t, s, "c")

	p := s.RegisterPort(h, "out", jack.DefaultAudioType, jack.PortIsOutput, 0)
	require.NotZero(t, p)
	assert.Equal(t, "c:out", s.PortName(p))
	assert.NotNil(t, s.PortBuffer(p, 256))
	assert.Nil(t, s.PortBuffer(p, 257), "cycle longer than the buffer")

	assert.Zero(t, s.RegisterPort(h, "out", jack.DefaultAudioType, jack.PortIsOutput, 0), "duplicate name")
	assert.Zero(t, s.RegisterPort(h, "a:b", jack.DefaultAudioType, jack.PortIsOutput, 0), "colon in name")
	assert.Zero(t, s.RegisterPort(h, "none", jack.DefaultAudioType, 0, 0), "no direction")
	assert.Zero(t, s.RegisterPort(999, "orphan", jack.DefaultAudioType, jack.PortIsInput, 0), "unknown client")

	midi := s.RegisterPort(h, "midi", jack.DefaultMidiType, jack.PortIsInput, 0)
	require.NotZero(t, midi)
	assert.Nil(t, s.PortBuffer(midi, 16), "midi ports carry no audio buffer")
}

func TestPortBufferDoesNotWaitForWriters(t *testing.T) {
	s := NewServer()
	h := mustOpen(t, s, "c")
	p := s.RegisterPort(h, "out", jack.DefaultAudioType, jack.PortIsOutput, 0)
	require.NotZero(t, p)

	entered := make(chan struct{})
	locked := make(chan struct{})
	got := make(chan unsafe.Pointer, 1)
	require.Zero(t, s.SetProcessCallback(h, func(n uint32, _ uintptr) int {
		close(entered)
		<-locked
		got <- s.PortBuffer(p, n)
		return 0
	}, 0))
	require.Zero(t, s.Activate(h))

	go s.CycleQuiet(64)
	<-entered

	// A writer such as SetSampleRate or Connect holds mu while the
	// callback asks for its buffer.
	s.mu.Lock()
	close(locked)
	select {
	case buf := <-got:
		s.mu.Unlock()
		assert.NotNil(t, buf)
	case <-time.After(2 * time.Second):
		s.mu.Unlock()
		t.Fatal("PortBuffer blocked behind the server lock")
	}

	require.Zero(t, s.Deactivate(h))
	require.Zero(t, s.UnregisterPort(h, p))
	assert.Nil(t, s.PortBuffer(p, 64), "unregistered ports have no buffer")
}

func TestServerUnregisterChecksOwner(t *testing.T) {
	s := NewServer()
	a := mustOpen(t, s, "a")
	b := mustOpen(t, s, "b")

	p := s.RegisterPort(a, "in", jack.DefaultAudioType, jack.PortIsInput, 0)
	assert.Equal(t, -1, s.UnregisterPort(b, p))
	assert.Equal(t, 0, s.UnregisterPort(a, p))
	assert.Equal(t, -1, s.UnregisterPort(a, p))
}

func TestServerConnectRules(t *testing.T) {
	s := NewServer()
	h := mustOpen(t, s, "c")
	s.RegisterPort(h, "out", jack.DefaultAudioType, jack.PortIsOutput, 0)
	s.RegisterPort(h, "in", jack.DefaultAudioType, jack.PortIsInput, 0)
	s.RegisterPort(h, "midi_in", jack.DefaultMidiType, jack.PortIsInput, 0)

	assert.Equal(t, -1, s.Connect(h, "c:in", "c:out"), "wrong direction")
	assert.Equal(t, -1, s.Connect(h, "c:out", "c:midi_in"), "type mismatch")
	assert.Equal(t, -1, s.Connect(h, "c:out", "c:missing"))
	assert.Equal(t, 0, s.Connect(h, "c:out", "c:in"))
	assert.Equal(t, 17, s.Connect(h, "c:out", "c:in"), "already connected")

	assert.Equal(t, int(jack.Failure.Bits()), s.Disconnect(h, "c:out", "c:midi_in"))
	assert.Equal(t, 0, s.Disconnect(h, "c:out", "c:in"))
	assert.Empty(t, s.Connections())
}

func TestServerCallbacksRefusedWhileActive(t *testing.T) {
	s := NewServer()
	h := mustOpen(t, s, "c")
	noop := func(uint32, uintptr) int { return 0 }

	assert.Equal(t, 0, s.SetProcessCallback(h, noop, 0))
	assert.Equal(t, 0, s.Activate(h))
	assert.Equal(t, -1, s.SetProcessCallback(h, noop, 0))
	assert.Equal(t, -1, s.SetXRunCallback(h, func(uintptr) int { return 0 }, 0))
	assert.Equal(t, 0, s.Deactivate(h))
	assert.Equal(t, 0, s.SetProcessCallback(h, noop, 0))
}

func TestServerCycleMixesConnectedOutputs(t *testing.T) {
	s := NewServer()
	h := mustOpen(t, s, "c")
	s.RegisterPort(h, "l", jack.DefaultAudioType, jack.PortIsOutput, 0)
	s.RegisterPort(h, "r", jack.DefaultAudioType, jack.PortIsOutput, 0)
	s.RegisterPort(h, "in", jack.DefaultAudioType, jack.PortIsInput, 0)
	require.Equal(t, 0, s.Connect(h, "c:l", "c:in"))
	require.Equal(t, 0, s.Connect(h, "c:r", "c:in"))

	require.NoError(t, s.Feed("c:l", []float32{0.25, 0.5}))
	require.NoError(t, s.Feed("c:r", []float32{0.25, 0.25}))
	assert.Error(t, s.Feed("c:missing", nil))

	var calls int
	s.SetProcessCallback(h, func(n uint32, arg uintptr) int {
		calls++
		assert.Equal(t, uintptr(42), arg)
		return 0
	}, 42)
	s.Activate(h)

	assert.Equal(t, []int{0}, s.Cycle(2))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []float32{0.5, 0.75}, s.Samples("c:in")[:2])
}

func TestServerCloseDestroysPortsAndConnections(t *testing.T) {
	s := NewServer()
	a := mustOpen(t, s, "a")
	b := mustOpen(t, s, "b")
	s.RegisterPort(a, "out", jack.DefaultAudioType, jack.PortIsOutput, 0)
	s.RegisterPort(b, "in", jack.DefaultAudioType, jack.PortIsInput, 0)

	var events []int
	s.SetPortConnectCallback(b, func(_, _ jack.PortID, connect int, _ uintptr) {
		events = append(events, connect)
	}, 0)

	require.Equal(t, 0, s.Connect(b, "a:out", "b:in"))
	require.Equal(t, 0, s.Close(a))

	assert.Empty(t, s.Connections())
	_, ok := s.PortID("a:out")
	assert.False(t, ok)
	assert.Empty(t, s.ClientName(a))
	assert.Equal(t, -1, s.Close(a))

	assert.Equal(t, 2, s.Flush())
	assert.Equal(t, []int{1, 0}, events)
}

func TestServerActivateDeliversSampleRate(t *testing.T) {
	s := NewServer()
	h := mustOpen(t, s, "c")

	var got []uint32
	s.SetSampleRateCallback(h, func(rate uint32, _ uintptr) int {
		got = append(got, rate)
		return 0
	}, 0)
	s.Activate(h)
	s.SetSampleRate(44100)

	assert.Equal(t, 2, s.Flush())
	assert.Equal(t, []uint32{48000, 44100}, got)
	assert.Equal(t, uint32(44100), s.SampleRate(h))
	assert.Zero(t, s.Flush())
}

func TestServerPeriod(t *testing.T) {
	s := NewServer()
	assert.Equal(t, 256*time.Second/48000, s.Period())
}

func TestServerRunDrivesCycles(t *testing.T) {
	s := NewServer()
	h := mustOpen(t, s, "c")

	var cycles, xruns atomic.Int64
	s.SetProcessCallback(h, func(uint32, uintptr) int {
		cycles.Add(1)
		return 0
	}, 0)
	s.SetXRunCallback(h, func(uintptr) int {
		xruns.Add(1)
		return 0
	}, 0)
	s.Activate(h)
	s.XRun()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, cycles.Load())
	assert.LessOrEqual(t, xruns.Load(), int64(1))
}
