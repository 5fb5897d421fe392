package libjack

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/jack"
)

// MaxClients is the number of clients one process can open through libjack.
const MaxClients = 64

var (
	// ErrUnavailable is returned by New when the package was built without
	// the "jack" build tag.
	ErrUnavailable = errors.New("libjack: built without jack support")

	// ErrTooManyClients is returned when every client slot is in use.
	ErrTooManyClients = errors.New("libjack: too many clients")
)

type processEntry struct {
	fn  jack.ProcessCallback
	arg uintptr
}

type sampleRateEntry struct {
	fn  jack.SampleRateCallback
	arg uintptr
}

type portConnectEntry struct {
	fn  jack.PortConnectCallback
	arg uintptr
}

type xrunEntry struct {
	fn  jack.XRunCallback
	arg uintptr
}

// callbackSlots holds the Go callbacks of one client. They are read from
// libjack threads with atomic loads.
type callbackSlots struct {
	process    atomic.Pointer[processEntry]
	sampleRate atomic.Pointer[sampleRateEntry]
	connect    atomic.Pointer[portConnectEntry]
	xrun       atomic.Pointer[xrunEntry]
}

func (s *callbackSlots) reset() {
	s.process.Store(nil)
	s.sampleRate.Store(nil)
	s.connect.Store(nil)
	s.xrun.Store(nil)
}

// registry maps client handles to raw libjack client pointers. A handle is
// its slot index plus one, which is also the callback argument given to
// libjack.
type registry struct {
	mu    sync.RWMutex
	raw   [MaxClients]uintptr
	slots [MaxClients]callbackSlots
}

var clients registry

func (r *registry) add(raw uintptr) (jack.ClientHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.raw {
		if r.raw[i] == 0 {
			r.raw[i] = raw
			r.slots[i].reset()
			return jack.ClientHandle(i + 1), nil
		}
	}
	return 0, ErrTooManyClients
}

func (r *registry) lookup(h jack.ClientHandle) (uintptr, bool) {
	if h == 0 || h > MaxClients {
		return 0, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw := r.raw[h-1]
	return raw, raw != 0
}

func (r *registry) remove(h jack.ClientHandle) {
	if h == 0 || h > MaxClients {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw[h-1] = 0
	r.slots[h-1].reset()
}

// slot returns the callbacks for the slot number libjack handed back. It
// takes no lock.
func (r *registry) slot(n uintptr) *callbackSlots {
	if n == 0 || n > MaxClients {
		return nil
	}
	return &r.slots[n-1]
}

// install stores e in p and calls set. If set fails the previous entry is
// restored. A nil e empties the slot, so dispatch does nothing.
func install[E any](p *atomic.Pointer[E], e *E, set func() int) int {
	old := p.Swap(e)
	if ret := set(); ret != 0 {
		p.Store(old)
		return ret
	}
	return 0
}

func dispatchProcess(nframes uint32, slot uintptr) (ret int) {
	s := clients.slot(slot)
	if s == nil {
		return -1
	}
	e := s.process.Load()
	if e == nil {
		return 0
	}
	// A panic must not unwind into libjack's thread.
	defer func() {
		if recover() != nil {
			ret = -1
		}
	}()
	return e.fn(nframes, e.arg)
}

func dispatchSampleRate(rate uint32, slot uintptr) int {
	s := clients.slot(slot)
	if s == nil {
		return -1
	}
	e := s.sampleRate.Load()
	if e == nil {
		return 0
	}
	return e.fn(rate, e.arg)
}

func dispatchPortConnect(a, b jack.PortID, connect int, slot uintptr) {
	s := clients.slot(slot)
	if s == nil {
		return
	}
	if e := s.connect.Load(); e != nil {
		e.fn(a, b, connect, e.arg)
	}
}

func dispatchXRun(slot uintptr) int {
	s := clients.slot(slot)
	if s == nil {
		return -1
	}
	e := s.xrun.Load()
	if e == nil {
		return 0
	}
	return e.fn(e.arg)
}

// normalizeDisconnect maps libjack's disconnect result onto a status
// bitmask. libjack reports plain -1 on most failures, which carries no
// flags.
func normalizeDisconnect(ret int) int {
	if ret < 0 {
		return int(jack.Failure.Bits())
	}
	if _, ok := jack.StatusFromBits(uint32(ret)); !ok {
		return int(jack.Failure.Bits())
	}
	return ret
}
