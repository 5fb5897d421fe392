package jack

import "unsafe"

// Port type strings understood by the server.
const (
	DefaultAudioType = "32 bit float mono audio"
	DefaultMidiType  = "8 bit raw midi"
)

// AudioSample is the sample format of DefaultAudioType ports.
type AudioSample = float32

// MidiEvent tags ports of DefaultMidiType. The layout of the MIDI buffer is
// owned by the server; this type only marks how a port's payload is to be
// interpreted.
type MidiEvent struct {
	Time   uint32
	Buffer []byte
}

// Payload constrains the payload interpretation of typed port handles.
type Payload interface {
	AudioSample | MidiEvent
}

// PortTypeOf returns the server type string for payload T.
func PortTypeOf[T Payload]() string {
	var zero T
	switch any(zero).(type) {
	case MidiEvent:
		return DefaultMidiType
	default:
		return DefaultAudioType
	}
}

// Port is implemented by every port handle.
type Port interface {
	Raw() PortPtr
	Unknown() UnknownPort
}

// UnknownPort is a port handle with no direction or payload information.
// It is what lookups return.
//
// A handle names a port owned by the client that registered it, possibly a
// different process. It is invalid once that port is unregistered or its
// owner is closed.
type UnknownPort struct {
	ptr   PortPtr
	owner uint64 // issuing Client, zero for lookups
	gen   uint64
}

// Raw returns the server's port identifier.
func (p UnknownPort) Raw() PortPtr { return p.ptr }

// Unknown returns p.
func (p UnknownPort) Unknown() UnknownPort { return p }

// IsNull reports whether p holds no port.
func (p UnknownPort) IsNull() bool { return p.ptr == 0 }

// InputPort is a handle to a port that receives data of type T.
type InputPort[T Payload] struct {
	port UnknownPort
}

// Raw returns the server's port identifier.
func (p InputPort[T]) Raw() PortPtr { return p.port.ptr }

// Unknown drops the direction and payload information.
func (p InputPort[T]) Unknown() UnknownPort { return p.port }

// OutputPort is a handle to a port that produces data of type T.
type OutputPort[T Payload] struct {
	port UnknownPort
}

// Raw returns the server's port identifier.
func (p OutputPort[T]) Raw() PortPtr { return p.port.ptr }

// Unknown drops the direction and payload information.
func (p OutputPort[T]) Unknown() UnknownPort { return p.port }

// ForceAsInput reinterprets p as an input port carrying T.
//
// Nothing is checked: the caller guarantees the port was registered as an
// input of the matching type. Reading a port through the wrong payload type
// reinterprets its buffer memory.
func ForceAsInput[T Payload](p UnknownPort) InputPort[T] {
	return InputPort[T]{port: p}
}

// ForceAsOutput reinterprets p as an output port carrying T. See
// ForceAsInput for the caller's obligations.
func ForceAsOutput[T Payload](p UnknownPort) OutputPort[T] {
	return OutputPort[T]{port: p}
}

// AudioIn returns the samples received on p during the cycle ctx belongs
// to. The slice aliases server memory and must not be retained after the
// callback returns. It returns nil if ctx is not live.
func AudioIn(ctx *CallbackContext, p InputPort[AudioSample]) []AudioSample {
	return audioBuffer(ctx, p.port.ptr)
}

// AudioOut returns the buffer to fill for p during the cycle ctx belongs
// to, with the same lifetime rules as AudioIn.
func AudioOut(ctx *CallbackContext, p OutputPort[AudioSample]) []AudioSample {
	return audioBuffer(ctx, p.port.ptr)
}

func audioBuffer(ctx *CallbackContext, p PortPtr) []AudioSample {
	if ctx == nil || !ctx.active || p == 0 || ctx.nframes == 0 {
		return nil
	}
	buf := ctx.backend.PortBuffer(p, ctx.nframes)
	if buf == nil {
		return nil
	}
	return unsafe.Slice((*AudioSample)(buf), ctx.nframes)
}

// Connect connects src to dst by their full names. Direction and payload
// type are checked at compile time.
func Connect[T Payload](c *Client, src OutputPort[T], dst InputPort[T]) error {
	srcName, err := c.PortName(src)
	if err != nil {
		return err
	}
	dstName, err := c.PortName(dst)
	if err != nil {
		return err
	}
	return c.ConnectPorts(srcName, dstName)
}

// Disconnect is the typed counterpart of Client.DisconnectPorts.
func Disconnect[T Payload](c *Client, src OutputPort[T], dst InputPort[T]) error {
	srcName, err := c.PortName(src)
	if err != nil {
		return err
	}
	dstName, err := c.PortName(dst)
	if err != nil {
		return err
	}
	return c.DisconnectPorts(srcName, dstName)
}
