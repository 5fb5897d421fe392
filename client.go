package jack

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/jack/internal/handle"
	"github.com/sirupsen/logrus"
)

// Client is a connection to a JACK server.
//
// A Client owns its server connection, the ports it registered and the
// handlers installed with SetProcessHandler and SetMetadataHandler. All
// methods are safe for concurrent use from ordinary goroutines. None of
// them may be called from inside a handler callback; calling Close from a
// callback is undefined.
type Client struct {
	mu      sync.Mutex
	id      uint64
	backend Backend
	handle  ClientHandle
	closed  bool
	active  bool

	// processCtx and metadataCtx are the opaque contexts currently
	// installed with the server; zero when no handler is installed.
	processCtx  handle.Handle
	metadataCtx handle.Handle

	// metadataKinds are the kinds registered for metadataCtx, and
	// metadataInstall registers them again for the same handler type.
	metadataKinds   []MetadataKind
	metadataInstall func(Backend, ClientHandle, MetadataKind, uintptr) int

	// ports maps every port registered through this client to the
	// generation of the handle returned for it.
	ports   map[PortPtr]uint64
	nextGen uint64

	counters *counters
}

// clientIDs tags the port handles a Client issues with their issuer.
var clientIDs atomic.Uint64

// Open connects a client called name to the default server.
//
// If the server had to change the name to keep it unique and opts does not
// contain UseExactName, the name actually assigned is queried and returned;
// otherwise name is returned as given. When the server refuses the
// connection the returned error wraps ErrConnectionRefused and carries the
// server's status flags (see StatusOf).
func Open(b Backend, name string, opts Options) (*Client, string, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"name":     name,
		"options":  opts.String(),
	}).Info("Opening JACK client")

	h, bits := b.Open(name, opts)
	return openHelper(b, h, bits, name, opts)
}

// OpenConnectionTo is like Open but connects to the server instance called
// serverName.
func OpenConnectionTo(b Backend, name, serverName string, opts Options) (*Client, string, error) {
	opts |= ServerName

	logrus.WithFields(logrus.Fields{
		"function": "OpenConnectionTo",
		"name":     name,
		"server":   serverName,
		"options":  opts.String(),
	}).Info("Opening JACK client on named server")

	h, bits := b.Open(name, opts, serverName)
	return openHelper(b, h, bits, name, opts)
}

func openHelper(b Backend, h ClientHandle, bits uint32, name string, opts Options) (*Client, string, error) {
	status := DecodeStatus(bits)
	if h == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Open",
			"name":     name,
			"status":   status.String(),
		}).Error("Server refused client connection")
		return nil, "", newStatusError("open", ErrConnectionRefused, status)
	}

	c := &Client{
		id:       clientIDs.Add(1),
		backend:  b,
		handle:   h,
		ports:    make(map[PortPtr]uint64),
		counters: &counters{},
	}
	c.counters.sampleRate.Store(b.SampleRate(h))

	assigned := name
	if status.Contains(NameNotUnique) && !opts.Contains(UseExactName) {
		assigned = b.ClientName(h)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"name":     assigned,
		"status":   status.String(),
	}).Info("JACK client opened")

	return c, assigned, nil
}

// Name returns the client's current name as reported by the server. The
// server may rename a client, so the value is never cached.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ""
	}
	return c.backend.ClientName(c.handle)
}

// SampleRate returns the server's current sample rate.
func (c *Client) SampleRate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.backend.SampleRate(c.handle)
}

// BufferSize returns the server's current number of frames per cycle.
func (c *Client) BufferSize() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.backend.BufferSize(c.handle)
}

// Stats returns the events delivered to this client's handlers so far.
func (c *Client) Stats() Stats {
	return c.counters.snapshot()
}

// IsClosed reports whether Close has succeeded.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// registerPort is the primitive behind the Register* helpers. The server
// gives no reason when it refuses a port.
func (c *Client) registerPort(name, portType string, flags PortFlags) (UnknownPort, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return UnknownPort{}, fmt.Errorf("jack: register port %q: %w", name, ErrClientClosed)
	}

	ptr := c.backend.RegisterPort(c.handle, name, portType, flags, 0)
	if ptr == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Client.registerPort",
			"port":     name,
			"type":     portType,
			"flags":    uint32(flags),
		}).Error("Server refused port registration")
		return UnknownPort{}, newStatusError("register port", ErrOperationFailed, Failure)
	}

	c.nextGen++
	c.ports[ptr] = c.nextGen

	logrus.WithFields(logrus.Fields{
		"function": "Client.registerPort",
		"port":     name,
		"type":     portType,
	}).Debug("Port registered")

	return UnknownPort{ptr: ptr, owner: c.id, gen: c.nextGen}, nil
}

// RegisterInput registers an input port carrying T.
func RegisterInput[T Payload](c *Client, name string) (InputPort[T], error) {
	p, err := c.registerPort(name, PortTypeOf[T](), PortIsInput)
	if err != nil {
		return InputPort[T]{}, err
	}
	return ForceAsInput[T](p), nil
}

// RegisterOutput registers an output port carrying T.
func RegisterOutput[T Payload](c *Client, name string) (OutputPort[T], error) {
	p, err := c.registerPort(name, PortTypeOf[T](), PortIsOutput)
	if err != nil {
		return OutputPort[T]{}, err
	}
	return ForceAsOutput[T](p), nil
}

// RegisterInputAudioPort registers an audio input port. name is the short
// name; the full name is "<client>:<name>".
func (c *Client) RegisterInputAudioPort(name string) (InputPort[AudioSample], error) {
	return RegisterInput[AudioSample](c, name)
}

// RegisterInputMidiPort registers a MIDI input port.
func (c *Client) RegisterInputMidiPort(name string) (InputPort[MidiEvent], error) {
	return RegisterInput[MidiEvent](c, name)
}

// RegisterOutputAudioPort registers an audio output port.
func (c *Client) RegisterOutputAudioPort(name string) (OutputPort[AudioSample], error) {
	return RegisterOutput[AudioSample](c, name)
}

// RegisterOutputMidiPort registers a MIDI output port.
func (c *Client) RegisterOutputMidiPort(name string) (OutputPort[MidiEvent], error) {
	return RegisterOutput[MidiEvent](c, name)
}

// UnregisterPort removes a port owned by this client. The server severs
// every connection to it, and every handle naming it becomes invalid.
//
// Handles returned by a Register* call are checked. One issued by another
// Client fails with ErrPortNotOwned, and one whose port this client already
// unregistered fails with ErrStalePort. Handles from PortByName or PortByID
// are passed to the server, which refuses ports the client does not own.
func (c *Client) UnregisterPort(p Port) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("jack: unregister port: %w", ErrClientClosed)
	}

	u := p.Unknown()
	if u.gen != 0 {
		if u.owner != c.id {
			return fmt.Errorf("jack: unregister port: %w", ErrPortNotOwned)
		}
		if gen, ok := c.ports[u.ptr]; !ok || gen != u.gen {
			return fmt.Errorf("jack: unregister port: %w", ErrStalePort)
		}
	}

	if ret := c.backend.UnregisterPort(c.handle, u.ptr); ret != 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Client.UnregisterPort",
			"result":   ret,
		}).Error("Server refused to unregister port")
		return newStatusError("unregister port", ErrOperationFailed, Failure)
	}
	delete(c.ports, u.ptr)
	return nil
}

// PortByName looks up a port by its full name. The handle does not own the
// port.
func (c *Client) PortByName(name string) (UnknownPort, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return UnknownPort{}, false
	}
	ptr := c.backend.PortByName(c.handle, name)
	logrus.WithFields(logrus.Fields{
		"function": "Client.PortByName",
		"port":     name,
		"found":    ptr != 0,
	}).Debug("Port lookup by name")
	if ptr == 0 {
		return UnknownPort{}, false
	}
	return UnknownPort{ptr: ptr}, true
}

// PortByID looks up a port by its server-wide id.
func (c *Client) PortByID(id PortID) (UnknownPort, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return UnknownPort{}, false
	}
	ptr := c.backend.PortByID(c.handle, id)
	if ptr == 0 {
		return UnknownPort{}, false
	}
	return UnknownPort{ptr: ptr}, true
}

// PortName returns the full name ("client:port") of p.
func (c *Client) PortName(p Port) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("jack: port name: %w", ErrClientClosed)
	}
	name := c.backend.PortName(p.Raw())
	if name == "" {
		return "", newStatusError("port name", ErrOperationFailed, Failure)
	}
	return name, nil
}

// ConnectPorts connects the ports with full names src and dst. Nothing is
// checked locally. The server reports no reason for a refused connection,
// so the error only carries Failure.
func (c *Client) ConnectPorts(src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("jack: connect: %w", ErrClientClosed)
	}

	if ret := c.backend.Connect(c.handle, src, dst); ret != 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Client.ConnectPorts",
			"src":      src,
			"dst":      dst,
			"result":   ret,
		}).Error("Server refused port connection")
		return newStatusError("connect", ErrOperationFailed, Failure)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Client.ConnectPorts",
		"src":      src,
		"dst":      dst,
	}).Info("Ports connected")
	return nil
}

// DisconnectPorts disconnects src from dst. A refusal carries the status
// flags decoded from the server's result.
func (c *Client) DisconnectPorts(src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("jack: disconnect: %w", ErrClientClosed)
	}

	if ret := c.backend.Disconnect(c.handle, src, dst); ret != 0 {
		status := DecodeStatus(uint32(ret))
		logrus.WithFields(logrus.Fields{
			"function": "Client.DisconnectPorts",
			"src":      src,
			"dst":      dst,
			"status":   status.String(),
		}).Error("Server refused port disconnection")
		return newStatusError("disconnect", ErrDisconnectFailed, status)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Client.DisconnectPorts",
		"src":      src,
		"dst":      dst,
	}).Info("Ports disconnected")
	return nil
}

// SetProcessHandler installs h as the client's realtime handler. See the
// package function SetProcessHandler.
func (c *Client) SetProcessHandler(h ProcessHandler) error {
	return SetProcessHandler[ProcessHandler](c, h)
}

// SetMetadataHandler installs h as the client's metadata handler. See the
// package function SetMetadataHandler.
func (c *Client) SetMetadataHandler(h MetadataHandler) error {
	return SetMetadataHandler[MetadataHandler](c, h)
}

// SetProcessHandler installs h as c's realtime handler, dispatching through
// a trampoline specialized for T.
//
// h is moved to the heap once. On success c owns it until Close or until
// another handler replaces it. The server refuses new handlers on an active
// client; the error then carries Failure only.
func SetProcessHandler[T ProcessHandler](c *Client, h T) error {
	if any(h) == nil {
		return fmt.Errorf("jack: set process handler: %w", ErrNilHandler)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("jack: set process handler: %w", ErrClientClosed)
	}

	box := &processBox[T]{
		handler:  h,
		ctx:      CallbackContext{backend: c.backend},
		counters: c.counters,
	}
	hd, err := contexts.New(box)
	if err != nil {
		return fmt.Errorf("jack: set process handler: %w: %v", ErrOperationFailed, err)
	}

	if ret := c.backend.SetProcessCallback(c.handle, processTrampoline[T], uintptr(hd)); ret != 0 {
		c.release(hd)
		logrus.WithFields(logrus.Fields{
			"function": "SetProcessHandler",
			"result":   ret,
			"active":   c.active,
		}).Error("Server refused process callback")
		return newStatusError("set process handler", ErrOperationFailed, Failure)
	}

	old := c.processCtx
	c.processCtx = hd
	if old != 0 {
		c.release(old)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SetProcessHandler",
		"replaced": old != 0,
	}).Info("Process handler installed")
	return nil
}

// SetMetadataHandler installs h for the event kinds it lists in
// CallbacksOfInterest, dispatching through trampolines specialized for T.
//
// Every listed kind must be Supported; otherwise the call fails with
// ErrUnsupportedCapability before anything is registered. The server needs
// one registration per kind. If one of them fails, the kinds registered
// before it are handed back to the previous handler, or cleared if it did
// not ask for them; h is released and the error carries Failure.
//
// When h replaces a handler, kinds only the previous handler asked for are
// cleared with the server before the previous handler is released.
func SetMetadataHandler[T MetadataHandler](c *Client, h T) error {
	if any(h) == nil {
		return fmt.Errorf("jack: set metadata handler: %w", ErrNilHandler)
	}

	kinds := uniqueKinds(h.CallbacksOfInterest())
	for _, k := range kinds {
		if !k.Supported() {
			logrus.WithFields(logrus.Fields{
				"function": "SetMetadataHandler",
				"kind":     k.String(),
			}).Error("Metadata handler requested an unsupported event kind")
			return fmt.Errorf("jack: set metadata handler: %w: %v", ErrUnsupportedCapability, k)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("jack: set metadata handler: %w", ErrClientClosed)
	}

	box := &metadataBox[T]{handler: h, counters: c.counters}
	hd, err := contexts.New(box)
	if err != nil {
		return fmt.Errorf("jack: set metadata handler: %w: %v", ErrOperationFailed, err)
	}

	for i, k := range kinds {
		if ret := installMetadata[T](c.backend, c.handle, k, uintptr(hd)); ret != 0 {
			c.restoreMetadata(kinds[:i])
			c.release(hd)
			logrus.WithFields(logrus.Fields{
				"function":    "SetMetadataHandler",
				"kind":        k.String(),
				"result":      ret,
				"rolled_back": kinds[:i],
			}).Error("Server refused metadata callback")
			return newStatusError("set metadata handler", ErrOperationFailed, Failure)
		}
	}

	c.clearMetadata(func(k MetadataKind) bool { return !slices.Contains(kinds, k) })
	old := c.metadataCtx
	c.metadataCtx = hd
	c.metadataKinds = kinds
	c.metadataInstall = installMetadata[T]
	if old != 0 {
		c.release(old)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SetMetadataHandler",
		"kinds":    kinds,
		"replaced": old != 0,
	}).Info("Metadata handler installed")
	return nil
}

func uniqueKinds(in []MetadataKind) []MetadataKind {
	out := make([]MetadataKind, 0, len(in))
	seen := make(map[MetadataKind]bool, len(in))
	for _, k := range in {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// restoreMetadata points each of kinds back at the installed metadata
// handler, or clears it when that handler did not ask for it. Callers hold
// c.mu.
func (c *Client) restoreMetadata(kinds []MetadataKind) {
	for _, k := range kinds {
		var ret int
		if c.metadataCtx != 0 && slices.Contains(c.metadataKinds, k) {
			ret = c.metadataInstall(c.backend, c.handle, k, uintptr(c.metadataCtx))
		} else {
			ret = unsetMetadata(c.backend, c.handle, k)
		}
		if ret != 0 {
			logrus.WithFields(logrus.Fields{
				"function": "Client.restoreMetadata",
				"kind":     k.String(),
				"result":   ret,
			}).Warn("Server refused to restore metadata callback")
		}
	}
}

// clearMetadata unsets the installed handler's kinds for which drop
// reports true. Callers hold c.mu.
func (c *Client) clearMetadata(drop func(MetadataKind) bool) {
	for _, k := range c.metadataKinds {
		if !drop(k) {
			continue
		}
		if ret := unsetMetadata(c.backend, c.handle, k); ret != 0 {
			logrus.WithFields(logrus.Fields{
				"function": "Client.clearMetadata",
				"kind":     k.String(),
				"result":   ret,
			}).Warn("Server refused to clear metadata callback")
		}
	}
}

// release reclaims a handler context. Callers hold c.mu.
func (c *Client) release(hd handle.Handle) {
	if err := contexts.Delete(hd); err != nil {
		// A context is released by exactly one owner; reaching this is a
		// bookkeeping bug, not a server failure.
		panic(fmt.Sprintf("jack: releasing handler context: %v", err))
	}
}

// Activate tells the server the client is ready. From then on the process
// handler may be called at any time from a thread the client does not
// control.
func (c *Client) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("jack: activate: %w", ErrClientClosed)
	}
	if ret := c.backend.Activate(c.handle); ret != 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Client.Activate",
			"result":   ret,
		}).Error("Server refused activation")
		return newStatusError("activate", ErrOperationFailed, Failure)
	}
	c.active = true
	logrus.WithFields(logrus.Fields{
		"function": "Client.Activate",
	}).Info("Client activated")
	return nil
}

// Deactivate stops callback delivery without closing the client.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("jack: deactivate: %w", ErrClientClosed)
	}
	if ret := c.backend.Deactivate(c.handle); ret != 0 {
		return newStatusError("deactivate", ErrOperationFailed, Failure)
	}
	c.active = false
	return nil
}

// Close disconnects from the server, which destroys every port this client
// registered. Every port handle derived from the client becomes invalid
// and the installed handlers are released.
//
// Close must not be called from inside a handler.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("jack: close: %w", ErrClientClosed)
	}

	if ret := c.backend.Close(c.handle); ret != 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Client.Close",
			"result":   ret,
		}).Error("Server failed to close client")
		return newStatusError("close", ErrOperationFailed, Failure)
	}

	c.closed = true
	c.active = false
	if c.processCtx != 0 {
		c.release(c.processCtx)
		c.processCtx = 0
	}
	if c.metadataCtx != 0 {
		c.release(c.metadataCtx)
		c.metadataCtx = 0
		c.metadataKinds = nil
		c.metadataInstall = nil
	}
	c.ports = make(map[PortPtr]uint64)

	logrus.WithFields(logrus.Fields{
		"function": "Client.Close",
	}).Info("JACK client closed")
	return nil
}
