package jack

import "unsafe"

// ClientHandle is the server's opaque identifier for a client connection.
// The zero value is the null handle.
type ClientHandle uintptr

// PortPtr is the server's opaque identifier for a port. The zero value is
// the null port.
type PortPtr uintptr

// PortID is the server-wide numeric identifier of a port, as delivered in
// port connect notifications.
type PortID uint32

// ProcessCallback is the realtime entry point installed with
// Backend.SetProcessCallback. arg is the opaque context given at
// installation time. A non-zero return reports a processing failure.
type ProcessCallback func(nframes uint32, arg uintptr) int

// SampleRateCallback is called when the server's sample rate changes.
type SampleRateCallback func(rate uint32, arg uintptr) int

// PortConnectCallback is called when two ports are connected (connect is
// non-zero) or disconnected.
type PortConnectCallback func(a, b PortID, connect int, arg uintptr)

// XRunCallback is called on buffer over- or underruns.
type XRunCallback func(arg uintptr) int

// Backend is the C-style API of a JACK server. Integer results follow the
// C convention: zero is success, anything else is a failure. Open and
// Disconnect report failures as status bitmasks.
//
// Callback installers accept a plain function and an opaque context; the
// backend passes the context back unchanged on every invocation and never
// interprets or frees it. Installing a nil function removes the callback.
//
// The libjack package provides the cgo implementation; jacktest provides an
// in-process simulation.
type Backend interface {
	// Open connects a new client. serverName is passed only when opts
	// contains ServerName. A null handle means the connection was refused.
	Open(name string, opts Options, serverName ...string) (ClientHandle, uint32)
	ClientName(c ClientHandle) string
	SampleRate(c ClientHandle) uint32
	BufferSize(c ClientHandle) uint32

	RegisterPort(c ClientHandle, shortName, portType string, flags PortFlags, bufferSize uint64) PortPtr
	UnregisterPort(c ClientHandle, p PortPtr) int
	PortByName(c ClientHandle, name string) PortPtr
	PortByID(c ClientHandle, id PortID) PortPtr
	PortName(p PortPtr) string

	// PortBuffer returns the port's buffer for the current cycle. It is
	// only valid inside a process callback and must not allocate.
	PortBuffer(p PortPtr, nframes uint32) unsafe.Pointer

	Connect(c ClientHandle, src, dst string) int
	Disconnect(c ClientHandle, src, dst string) int

	SetProcessCallback(c ClientHandle, fn ProcessCallback, arg uintptr) int
	SetSampleRateCallback(c ClientHandle, fn SampleRateCallback, arg uintptr) int
	SetPortConnectCallback(c ClientHandle, fn PortConnectCallback, arg uintptr) int
	SetXRunCallback(c ClientHandle, fn XRunCallback, arg uintptr) int

	Activate(c ClientHandle) int
	Deactivate(c ClientHandle) int
	Close(c ClientHandle) int
}
