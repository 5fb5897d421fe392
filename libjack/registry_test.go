package libjack

import (
	"testing"

	"github.com/opd-ai/jack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddLookupRemove(t *testing.T) {
	var r registry

	h, err := r.add(0xdead)
	require.NoError(t, err)
	assert.Equal(t, jack.ClientHandle(1), h)

	raw, ok := r.lookup(h)
	require.True(t, ok)
	assert.Equal(t, uintptr(0xdead), raw)

	r.remove(h)
	_, ok = r.lookup(h)
	assert.False(t, ok)

	_, ok = r.lookup(0)
	assert.False(t, ok)
	_, ok = r.lookup(MaxClients + 1)
	assert.False(t, ok)
}

func TestRegistryFull(t *testing.T) {
	var r registry
	for i := 0; i < MaxClients; i++ {
		_, err := r.add(uintptr(i + 1))
		require.NoError(t, err)
	}
	_, err := r.add(0xbeef)
	assert.ErrorIs(t, err, ErrTooManyClients)

	r.remove(3)
	h, err := r.add(0xbeef)
	require.NoError(t, err)
	assert.Equal(t, jack.ClientHandle(3), h)
}

func TestInstallRestoresOnFailure(t *testing.T) {
	var s callbackSlots
	first := &xrunEntry{arg: 1}
	second := &xrunEntry{arg: 2}

	assert.Zero(t, install(&s.xrun, first, func() int { return 0 }))
	assert.Equal(t, -1, install(&s.xrun, second, func() int { return -1 }))
	assert.Same(t, first, s.xrun.Load())
}

func TestInstallNilEmptiesSlot(t *testing.T) {
	h := withClient(t)
	slot := uintptr(h)
	s := clients.slot(slot)

	var rates int
	require.Zero(t, install(&s.sampleRate, &sampleRateEntry{
		fn: func(uint32, uintptr) int { rates++; return 0 },
	}, func() int { return 0 }))
	require.Zero(t, install(&s.sampleRate, nil, func() int { return 0 }))

	assert.Nil(t, s.sampleRate.Load())
	assert.Zero(t, dispatchSampleRate(96000, slot))
	assert.Zero(t, rates)
}

func withClient(t *testing.T) jack.ClientHandle {
	t.Helper()
	h, err := clients.add(0x1000)
	require.NoError(t, err)
	t.Cleanup(func() { clients.remove(h) })
	return h
}

func TestDispatchProcess(t *testing.T) {
	h := withClient(t)
	slot := uintptr(h)

	assert.Zero(t, dispatchProcess(64, slot), "nothing installed")
	assert.Equal(t, -1, dispatchProcess(64, 0))

	var gotFrames uint32
	var gotArg uintptr
	clients.slot(slot).process.Store(&processEntry{
		fn: func(n uint32, arg uintptr) int {
			gotFrames, gotArg = n, arg
			return 7
		},
		arg: 99,
	})
	assert.Equal(t, 7, dispatchProcess(64, slot))
	assert.Equal(t, uint32(64), gotFrames)
	assert.Equal(t, uintptr(99), gotArg)

	clients.slot(slot).process.Store(&processEntry{
		fn: func(uint32, uintptr) int { panic("boom") },
	})
	assert.Equal(t, -1, dispatchProcess(64, slot))
}

func TestDispatchMetadata(t *testing.T) {
	h := withClient(t)
	slot := uintptr(h)
	s := clients.slot(slot)

	var rate uint32
	s.sampleRate.Store(&sampleRateEntry{fn: func(r uint32, _ uintptr) int { rate = r; return 0 }})
	assert.Zero(t, dispatchSampleRate(44100, slot))
	assert.Equal(t, uint32(44100), rate)

	var connected int
	s.connect.Store(&portConnectEntry{fn: func(_, _ jack.PortID, c int, _ uintptr) { connected = c }})
	dispatchPortConnect(1, 2, 1, slot)
	assert.Equal(t, 1, connected)

	var xruns int
	s.xrun.Store(&xrunEntry{fn: func(uintptr) int { xruns++; return 0 }})
	assert.Zero(t, dispatchXRun(slot))
	assert.Equal(t, 1, xruns)

	clients.remove(h)
	assert.Zero(t, dispatchXRun(slot), "removed clients have no callbacks")
	assert.Equal(t, -1, dispatchXRun(MaxClients+1))
}

func TestNormalizeDisconnect(t *testing.T) {
	assert.Equal(t, 0, normalizeDisconnect(0))
	assert.Equal(t, int(jack.Failure.Bits()), normalizeDisconnect(-1))
	assert.Equal(t, int((jack.Failure | jack.NoSuchClient).Bits()),
		normalizeDisconnect(int((jack.Failure | jack.NoSuchClient).Bits())))
	assert.Equal(t, int(jack.Failure.Bits()), normalizeDisconnect(0x4000))
}

func TestDispatchProcessDoesNotAllocate(t *testing.T) {
	h := withClient(t)
	slot := uintptr(h)
	clients.slot(slot).process.Store(&processEntry{fn: func(uint32, uintptr) int { return 0 }})

	allocs := testing.AllocsPerRun(100, func() { dispatchProcess(128, slot) })
	assert.Zero(t, allocs)
}
