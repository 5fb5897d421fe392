package playback

import "sync/atomic"

// Ring is a single-producer single-consumer queue of samples. Write is
// called from one ordinary goroutine and Read from the realtime thread;
// neither blocks nor allocates.
type Ring struct {
	buf  []float32
	mask uint64

	// head is the next slot to read, tail the next slot to write. Both only
	// grow; their difference is the fill level.
	head atomic.Uint64
	tail atomic.Uint64
}

// NewRing creates a ring holding at least size samples. The capacity is
// rounded up to a power of two.
func NewRing(size int) *Ring {
	n := 1
	for n < size {
		n <<= 1
	}
	return &Ring{buf: make([]float32, n), mask: uint64(n - 1)}
}

// Cap returns the number of samples the ring can hold.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of samples waiting to be read.
func (r *Ring) Len() int { return int(r.tail.Load() - r.head.Load()) }

// Free returns the number of samples that can be written without
// overwriting unread data.
func (r *Ring) Free() int { return len(r.buf) - r.Len() }

// Write copies as much of p as fits and returns how many samples were
// written.
func (r *Ring) Write(p []float32) int {
	tail := r.tail.Load()
	free := uint64(len(r.buf)) - (tail - r.head.Load())
	n := uint64(len(p))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(tail+i)&r.mask] = p[i]
	}
	r.tail.Store(tail + n)
	return int(n)
}

// Read fills p with as many samples as are available and returns how many
// were read.
func (r *Ring) Read(p []float32) int {
	head := r.head.Load()
	avail := r.tail.Load() - head
	n := uint64(len(p))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		p[i] = r.buf[(head+i)&r.mask]
	}
	r.head.Store(head + n)
	return int(n)
}
