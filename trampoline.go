package jack

import (
	"sync/atomic"

	"github.com/opd-ai/jack/internal/handle"
)

// contexts owns every handler registered with a server. The handle stored
// as a callback's opaque context is the only reference the server holds;
// the owning Client deletes it exactly once.
var contexts handle.Table

// counters are updated from callbacks with atomics only.
type counters struct {
	processCycles   atomic.Uint64
	processFailures atomic.Uint64
	xruns           atomic.Uint64
	sampleRate      atomic.Uint32
	connects        atomic.Uint64
	disconnects     atomic.Uint64
}

// Stats is a snapshot of the events delivered to a client's handlers.
type Stats struct {
	ProcessCycles   uint64
	ProcessFailures uint64
	XRuns           uint64
	SampleRate      uint32
	Connects        uint64
	Disconnects     uint64
}

// HandlerContextStats counts the handler contexts of every client in the
// process.
type HandlerContextStats struct {
	Live      int
	Allocated uint64
	Released  uint64
}

// HandlerContexts reports how many handlers are currently installed across
// all clients and how many were ever installed and released. Live equals
// Allocated minus Released unless a handler leaked.
func HandlerContexts() HandlerContextStats {
	st := contexts.Stats()
	return HandlerContextStats{Live: st.Live, Allocated: st.Allocated, Released: st.Released}
}

func (c *counters) snapshot() Stats {
	return Stats{
		ProcessCycles:   c.processCycles.Load(),
		ProcessFailures: c.processFailures.Load(),
		XRuns:           c.xruns.Load(),
		SampleRate:      c.sampleRate.Load(),
		Connects:        c.connects.Load(),
		Disconnects:     c.disconnects.Load(),
	}
}

// processBox is the single allocation made when a process handler is
// installed. ctx is reused across invocations; the server serializes
// process calls for a client.
type processBox[T ProcessHandler] struct {
	handler  T
	ctx      CallbackContext
	counters *counters
}

type metadataBox[T MetadataHandler] struct {
	handler  T
	counters *counters
}

// processTrampoline is instantiated once per concrete handler type and
// installed as the server's process callback.
func processTrampoline[T ProcessHandler](nframes uint32, arg uintptr) int {
	v, ok := contexts.Load(handle.Handle(arg))
	if !ok {
		return -1
	}
	b, ok := v.(*processBox[T])
	if !ok {
		return -1
	}

	b.ctx.nframes = nframes
	b.ctx.active = true
	ret := b.handler.Process(&b.ctx, nframes)
	b.ctx.active = false

	b.counters.processCycles.Add(1)
	if ret != 0 {
		b.counters.processFailures.Add(1)
	}
	return ret
}

func loadMetadata[T MetadataHandler](arg uintptr) (*metadataBox[T], bool) {
	v, ok := contexts.Load(handle.Handle(arg))
	if !ok {
		return nil, false
	}
	b, ok := v.(*metadataBox[T])
	return b, ok
}

func sampleRateTrampoline[T MetadataHandler](rate uint32, arg uintptr) int {
	b, ok := loadMetadata[T](arg)
	if !ok {
		return -1
	}
	b.counters.sampleRate.Store(rate)
	return b.handler.SampleRateChanged(rate)
}

func portConnectTrampoline[T MetadataHandler](a, bp PortID, connect int, arg uintptr) {
	b, ok := loadMetadata[T](arg)
	if !ok {
		return
	}
	status := PortsDisconnected
	if connect != 0 {
		status = PortsConnected
		b.counters.connects.Add(1)
	} else {
		b.counters.disconnects.Add(1)
	}
	b.handler.PortConnect(a, bp, status)
}

func xrunTrampoline[T MetadataHandler](arg uintptr) int {
	b, ok := loadMetadata[T](arg)
	if !ok {
		return -1
	}
	b.counters.xruns.Add(1)
	return b.handler.XRun()
}

// installMetadata registers the trampoline for kind. It must only be called
// with supported kinds.
func installMetadata[T MetadataHandler](be Backend, c ClientHandle, kind MetadataKind, arg uintptr) int {
	switch kind {
	case SampleRateKind:
		return be.SetSampleRateCallback(c, sampleRateTrampoline[T], arg)
	case PortConnectKind:
		return be.SetPortConnectCallback(c, portConnectTrampoline[T], arg)
	case XRunKind:
		return be.SetXRunCallback(c, xrunTrampoline[T], arg)
	default:
		panic("jack: installMetadata called with unsupported kind " + kind.String())
	}
}

// unsetMetadata removes the server's callback for kind.
func unsetMetadata(be Backend, c ClientHandle, kind MetadataKind) int {
	switch kind {
	case SampleRateKind:
		return be.SetSampleRateCallback(c, nil, 0)
	case PortConnectKind:
		return be.SetPortConnectCallback(c, nil, 0)
	case XRunKind:
		return be.SetXRunCallback(c, nil, 0)
	default:
		panic("jack: unsetMetadata called with unsupported kind " + kind.String())
	}
}
