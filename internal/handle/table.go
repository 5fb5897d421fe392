// Package handle maps Go values to opaque integer handles that can cross a
// foreign callback boundary as a context pointer.
//
// A value registered with New stays reachable until its handle is deleted.
// Load is lock-free and allocation-free so it can run on a realtime thread;
// New and Delete take a mutex and must not.
package handle

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Handle identifies a registered value. The zero Handle is never issued.
type Handle uintptr

// A handle packs a slot index in its low bits and the slot's generation
// above them. On 64-bit platforms the generation has 40 bits.
const (
	ptrBits   = 32 << (^uintptr(0) >> 63)
	indexBits = 24
	indexMask = 1<<indexBits - 1
	genMask   = 1<<(ptrBits-indexBits) - 1
)

// ErrInvalidHandle is returned when deleting a handle that is not live,
// including one that was already deleted.
var ErrInvalidHandle = errors.New("invalid handle")

// ErrTableFull is returned when every index is in use or retired.
var ErrTableFull = errors.New("handle table full")

type entry struct {
	gen   uint64
	value any
}

type slot struct {
	cur atomic.Pointer[entry]
	gen uint64 // guarded by Table.mu
}

// Stats counts registrations over the lifetime of a table.
type Stats struct {
	Live      int
	Allocated uint64
	Released  uint64
	Retired   int // slots whose generations are used up
}

// Table is a generation-checked handle table. The zero value is ready to
// use.
type Table struct {
	mu    sync.Mutex
	slots atomic.Pointer[[]*slot]
	free  []uint32

	// maxGen is the last generation a slot may carry before it is retired.
	// Zero means genMask.
	maxGen  uint64
	retired atomic.Int64

	live      atomic.Int64
	allocated atomic.Uint64
	released  atomic.Uint64
}

func (h Handle) split() (idx uint32, gen uint64) {
	v := uint64(h)
	return uint32(v&indexMask) - 1, (v >> indexBits) & genMask
}

func makeHandle(idx uint32, gen uint64) Handle {
	return Handle((gen&genMask)<<indexBits | uint64(idx+1))
}

func (t *Table) genLimit() uint64 {
	if t.maxGen == 0 || t.maxGen > genMask {
		return genMask
	}
	return t.maxGen
}

// New registers v and returns its handle.
func (t *Table) New(v any) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		var cur []*slot
		if p := t.slots.Load(); p != nil {
			cur = *p
		}
		if len(cur) >= indexMask {
			return 0, ErrTableFull
		}
		if len(cur) == cap(cur) {
			// Load may be reading the published slice, so grow into a
			// copy and publish it.
			grown := make([]*slot, len(cur), max(2*len(cur), 8))
			copy(grown, cur)
			cur = grown
		}
		idx = uint32(len(cur))
		cur = append(cur, &slot{})
		t.slots.Store(&cur)
	}

	s := (*t.slots.Load())[idx]
	s.gen++
	s.cur.Store(&entry{gen: s.gen, value: v})

	t.live.Add(1)
	t.allocated.Add(1)
	return makeHandle(idx, s.gen), nil
}

// Load returns the value registered under h. ok is false if h was never
// issued or has been deleted.
func (t *Table) Load(h Handle) (v any, ok bool) {
	if h == 0 {
		return nil, false
	}
	p := t.slots.Load()
	if p == nil {
		return nil, false
	}
	idx, gen := h.split()
	slots := *p
	if int(idx) >= len(slots) {
		return nil, false
	}
	e := slots[idx].cur.Load()
	if e == nil || e.gen != gen {
		return nil, false
	}
	return e.value, true
}

// Delete releases h. Each handle can be deleted exactly once.
func (t *Table) Delete(h Handle) error {
	if h == 0 {
		return ErrInvalidHandle
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.slots.Load()
	if p == nil {
		return ErrInvalidHandle
	}
	idx, gen := h.split()
	slots := *p
	if int(idx) >= len(slots) {
		return ErrInvalidHandle
	}
	s := slots[idx]
	e := s.cur.Load()
	if e == nil || e.gen != gen {
		return ErrInvalidHandle
	}
	s.cur.Store(nil)
	if s.gen < t.genLimit() {
		t.free = append(t.free, idx)
	} else {
		// Reusing the slot would bring back a generation that may still be
		// held as a callback argument.
		t.retired.Add(1)
	}

	t.live.Add(-1)
	t.released.Add(1)
	return nil
}

// Stats returns a snapshot of the table counters.
func (t *Table) Stats() Stats {
	return Stats{
		Live:      int(t.live.Load()),
		Allocated: t.allocated.Load(),
		Released:  t.released.Load(),
		Retired:   int(t.retired.Load()),
	}
}
