package jack

import "fmt"

// CallbackContext is handed to ProcessHandler.Process for the duration of
// one invocation. Buffers obtained through it (AudioIn, AudioOut) are only
// valid until Process returns; the context itself must not be kept.
type CallbackContext struct {
	backend Backend
	nframes uint32
	active  bool
}

// Frames returns the number of frames in the current cycle.
func (c *CallbackContext) Frames() uint32 { return c.nframes }

// Valid reports whether the invocation c was issued for is still running.
func (c *CallbackContext) Valid() bool { return c != nil && c.active }

// ProcessHandler processes one block of frames on the server's realtime
// thread.
//
// Process must not allocate, block, take locks that non-realtime code may
// hold, or perform I/O. Its return value is passed to the server
// unchanged: zero means success.
//
// Process must never call Client.Close.
type ProcessHandler interface {
	Process(ctx *CallbackContext, nframes uint32) int
}

// ProcessFunc adapts a plain function to ProcessHandler.
type ProcessFunc func(ctx *CallbackContext, nframes uint32) int

// Process calls f.
func (f ProcessFunc) Process(ctx *CallbackContext, nframes uint32) int { return f(ctx, nframes) }

// MetadataKind names a non-realtime event a MetadataHandler may subscribe
// to.
type MetadataKind int

const (
	SampleRateKind MetadataKind = iota
	PortConnectKind
	ShutdownKind
	FreewheelKind
	BufferSizeKind
	ClientRegistrationKind
	PortRegistrationKind
	PortRenameKind
	GraphOrderKind
	XRunKind
)

var metadataKindNames = map[MetadataKind]string{
	SampleRateKind:         "SampleRate",
	PortConnectKind:        "PortConnect",
	ShutdownKind:           "Shutdown",
	FreewheelKind:          "Freewheel",
	BufferSizeKind:         "BufferSize",
	ClientRegistrationKind: "ClientRegistration",
	PortRegistrationKind:   "PortRegistration",
	PortRenameKind:         "PortRename",
	GraphOrderKind:         "GraphOrder",
	XRunKind:               "XRun",
}

func (k MetadataKind) String() string {
	if n, ok := metadataKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("MetadataKind(%d)", int(k))
}

// Supported reports whether SetMetadataHandler can deliver events of kind k.
func (k MetadataKind) Supported() bool {
	switch k {
	case SampleRateKind, PortConnectKind, XRunKind:
		return true
	default:
		return false
	}
}

// PortConnectStatus tells whether a port connect event is a connection or
// a disconnection.
type PortConnectStatus int

const (
	PortsDisconnected PortConnectStatus = iota
	PortsConnected
)

func (s PortConnectStatus) String() string {
	if s == PortsConnected {
		return "connected"
	}
	return "disconnected"
}

// MetadataHandler receives non-realtime notifications. They run on a server
// thread that may be concurrent with Process; state shared with a
// ProcessHandler needs its own synchronization.
//
// CallbacksOfInterest is consulted once, at registration, and decides which
// of the remaining methods are ever called.
type MetadataHandler interface {
	CallbacksOfInterest() []MetadataKind

	// SampleRateChanged receives the new sample rate; zero is success.
	SampleRateChanged(rate uint32) int

	// PortConnect reports a connection change between ports a and b.
	PortConnect(a, b PortID, status PortConnectStatus)

	// XRun reports a buffer over- or underrun; zero is success.
	XRun() int
}

// MetadataDefaults implements every MetadataHandler event method as a
// no-op. Embed it and override what you subscribe to.
type MetadataDefaults struct{}

// SampleRateChanged does nothing.
func (MetadataDefaults) SampleRateChanged(uint32) int { return 0 }

// PortConnect does nothing.
func (MetadataDefaults) PortConnect(PortID, PortID, PortConnectStatus) {}

// XRun does nothing.
func (MetadataDefaults) XRun() int { return 0 }
