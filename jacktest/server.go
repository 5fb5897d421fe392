package jacktest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/opd-ai/jack"
	"github.com/sirupsen/logrus"
)

// Call names recorded by Server.Calls.
const (
	CallOpen              = "open"
	CallClientName        = "client_name"
	CallRegisterPort      = "register_port"
	CallUnregisterPort    = "unregister_port"
	CallPortByName        = "port_by_name"
	CallPortByID          = "port_by_id"
	CallConnect           = "connect"
	CallDisconnect        = "disconnect"
	CallSetProcess        = "set_process_callback"
	CallSetSampleRate     = "set_sample_rate_callback"
	CallSetPortConnect    = "set_port_connect_callback"
	CallSetXRun           = "set_xrun_callback"
	CallActivate          = "activate"
	CallDeactivate        = "deactivate"
	CallClose             = "close"
	defaultSampleRate     = 48000
	defaultBufferSize     = 256
	maxClientNameSuffixes = 99
)

// OpenCall records the arguments of one Open call.
type OpenCall struct {
	Name             string
	Options          jack.Options
	ServerName       string
	ServerNamePassed bool
}

type simPort struct {
	ptr      jack.PortPtr
	id       jack.PortID
	owner    jack.ClientHandle
	name     string
	portType string
	flags    jack.PortFlags
	buf      []float32
}

type simClient struct {
	handle jack.ClientHandle
	name   string
	active bool
	ports  []jack.PortPtr

	process    jack.ProcessCallback
	processArg uintptr
	sampleRate jack.SampleRateCallback
	srateArg   uintptr
	connect    jack.PortConnectCallback
	connectArg uintptr
	xrun       jack.XRunCallback
	xrunArg    uintptr
}

type processCall struct {
	fn  jack.ProcessCallback
	arg uintptr
}

type connection struct {
	src, dst jack.PortPtr
}

// Server is an in-memory JACK server implementing jack.Backend.
//
// Process callbacks run when Cycle is called; metadata notifications are
// queued and delivered by Flush. Run drives both from a goroutine the way
// the server's own threads would.
type Server struct {
	mu      sync.RWMutex
	cycleMu sync.Mutex

	sampleRate uint32
	bufferSize uint32

	nextClient jack.ClientHandle
	nextPort   jack.PortPtr
	nextID     jack.PortID

	clients     map[jack.ClientHandle]*simClient
	clientOrder []jack.ClientHandle
	ports       map[jack.PortPtr]*simPort
	connections []connection
	pending     []func()

	calls    map[string]int
	opens    []OpenCall
	failures map[string]int

	refuseOpen       bool
	refuseOpenStatus uint32
	disconnectResult int

	scratch []processCall

	// buffers maps every audio port to its buffer. It is replaced under mu
	// whenever ports change and read by PortBuffer without locking.
	buffers atomic.Pointer[map[jack.PortPtr][]float32]
}

// NewServer creates a simulated server running at 48 kHz with 256-frame
// cycles.
func NewServer() *Server {
	return NewServerWith(defaultSampleRate, defaultBufferSize)
}

// NewServerWith creates a simulated server with the given sample rate and
// cycle length. Zero values select the defaults.
func NewServerWith(sampleRate, bufferSize uint32) *Server {
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	if bufferSize == 0 {
		bufferSize = defaultBufferSize
	}

	logrus.Warn("SIMULATION SERVER - NOT A REAL JACK SERVER")
	logrus.WithFields(logrus.Fields{
		"function":    "NewServerWith",
		"sample_rate": sampleRate,
		"buffer_size": bufferSize,
	}).Info("Creating simulated JACK server")

	return &Server{
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		clients:    make(map[jack.ClientHandle]*simClient),
		ports:      make(map[jack.PortPtr]*simPort),
		calls:      make(map[string]int),
		failures:   make(map[string]int),
		scratch:    make([]processCall, 0, 16),
	}
}

var _ jack.Backend = (*Server)(nil)

// Calls returns how many times the named entry point was invoked.
func (s *Server) Calls(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[name]
}

// OpenCalls returns the arguments of every Open call so far.
func (s *Server) OpenCalls() []OpenCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OpenCall(nil), s.opens...)
}

// RefuseOpen makes every following Open return a null handle with status.
func (s *Server) RefuseOpen(status jack.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuseOpen = true
	s.refuseOpenStatus = status.Bits()
}

// FailNext makes the next n calls of the named entry point fail.
func (s *Server) FailNext(call string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[call] += n
}

// FailDisconnectWith makes Disconnect return result until reset with zero.
func (s *Server) FailDisconnectWith(result int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectResult = result
}

// record counts a call and reports whether it must fail. Callers hold mu.
func (s *Server) record(call string) bool {
	s.calls[call]++
	if s.failures[call] > 0 {
		s.failures[call]--
		return true
	}
	return false
}

func (s *Server) nameTaken(name string) bool {
	for _, c := range s.clients {
		if c.name == name {
			return true
		}
	}
	return false
}

// Open implements jack.Backend.
func (s *Server) Open(name string, opts jack.Options, serverName ...string) (jack.ClientHandle, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := OpenCall{Name: name, Options: opts}
	if len(serverName) > 0 {
		call.ServerName = serverName[0]
		call.ServerNamePassed = true
	}
	s.opens = append(s.opens, call)
	fail := s.record(CallOpen)

	if s.refuseOpen {
		return 0, s.refuseOpenStatus
	}
	if fail {
		return 0, (jack.Failure | jack.ServerFailed).Bits()
	}

	var status jack.Status
	assigned := name
	if s.nameTaken(name) {
		if opts.Contains(jack.UseExactName) {
			return 0, (jack.Failure | jack.NameNotUnique).Bits()
		}
		status |= jack.NameNotUnique
		for i := 1; i <= maxClientNameSuffixes; i++ {
			candidate := fmt.Sprintf("%s-%02d", name, i)
			if !s.nameTaken(candidate) {
				assigned = candidate
				break
			}
		}
		if assigned == name {
			return 0, (jack.Failure | jack.NameNotUnique).Bits()
		}
	}

	s.nextClient++
	c := &simClient{handle: s.nextClient, name: assigned}
	s.clients[c.handle] = c
	s.clientOrder = append(s.clientOrder, c.handle)

	logrus.WithFields(logrus.Fields{
		"function": "Server.Open",
		"name":     assigned,
		"handle":   uint64(c.handle),
	}).Debug("Simulated client opened")

	return c.handle, status.Bits()
}

// ClientName implements jack.Backend.
func (s *Server) ClientName(h jack.ClientHandle) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[CallClientName]++
	if c, ok := s.clients[h]; ok {
		return c.name
	}
	return ""
}

// SampleRate implements jack.Backend.
func (s *Server) SampleRate(jack.ClientHandle) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sampleRate
}

// BufferSize implements jack.Backend.
func (s *Server) BufferSize(jack.ClientHandle) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bufferSize
}

// RegisterPort implements jack.Backend.
func (s *Server) RegisterPort(h jack.ClientHandle, shortName, portType string, flags jack.PortFlags, _ uint64) jack.PortPtr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record(CallRegisterPort) {
		return 0
	}
	c, ok := s.clients[h]
	if !ok || shortName == "" || strings.Contains(shortName, ":") {
		return 0
	}
	full := c.name + ":" + shortName
	for _, p := range s.ports {
		if p.name == full {
			return 0
		}
	}
	if flags&(jack.PortIsInput|jack.PortIsOutput) == 0 {
		return 0
	}

	s.nextPort++
	s.nextID++
	p := &simPort{
		ptr:      s.nextPort,
		id:       s.nextID,
		owner:    h,
		name:     full,
		portType: portType,
		flags:    flags,
	}
	if portType == jack.DefaultAudioType {
		p.buf = make([]float32, s.bufferSize)
	}
	s.ports[p.ptr] = p
	c.ports = append(c.ports, p.ptr)
	s.publishBuffers()
	return p.ptr
}

// UnregisterPort implements jack.Backend.
func (s *Server) UnregisterPort(h jack.ClientHandle, ptr jack.PortPtr) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record(CallUnregisterPort) {
		return -1
	}
	p, ok := s.ports[ptr]
	if !ok || p.owner != h {
		return -1
	}
	s.removePort(p)
	return 0
}

// removePort drops p and every connection to it. Callers hold mu.
func (s *Server) removePort(p *simPort) {
	kept := s.connections[:0]
	for _, cn := range s.connections {
		if cn.src == p.ptr || cn.dst == p.ptr {
			s.queueConnect(cn, false)
			continue
		}
		kept = append(kept, cn)
	}
	s.connections = kept
	delete(s.ports, p.ptr)
	s.publishBuffers()
	if c, ok := s.clients[p.owner]; ok {
		for i, q := range c.ports {
			if q == p.ptr {
				c.ports = append(c.ports[:i], c.ports[i+1:]...)
				break
			}
		}
	}
}

// PortByName implements jack.Backend.
func (s *Server) PortByName(_ jack.ClientHandle, name string) jack.PortPtr {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[CallPortByName]++
	for _, p := range s.ports {
		if p.name == name {
			return p.ptr
		}
	}
	return 0
}

// PortByID implements jack.Backend.
func (s *Server) PortByID(_ jack.ClientHandle, id jack.PortID) jack.PortPtr {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[CallPortByID]++
	for _, p := range s.ports {
		if p.id == id {
			return p.ptr
		}
	}
	return 0
}

// PortName implements jack.Backend.
func (s *Server) PortName(ptr jack.PortPtr) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.ports[ptr]; ok {
		return p.name
	}
	return ""
}

// PortID returns the server-wide id of the port called name.
func (s *Server) PortID(name string) (jack.PortID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.ports {
		if p.name == name {
			return p.id, true
		}
	}
	return 0, false
}

// publishBuffers replaces the map read by PortBuffer. Callers hold mu.
func (s *Server) publishBuffers() {
	m := make(map[jack.PortPtr][]float32, len(s.ports))
	for ptr, p := range s.ports {
		if len(p.buf) > 0 {
			m[ptr] = p.buf
		}
	}
	s.buffers.Store(&m)
}

// PortBuffer implements jack.Backend. It takes no lock, so a process
// callback never waits on a goroutine reconfiguring the server.
func (s *Server) PortBuffer(ptr jack.PortPtr, nframes uint32) unsafe.Pointer {
	m := s.buffers.Load()
	if m == nil {
		return nil
	}
	buf := (*m)[ptr]
	if len(buf) == 0 || int(nframes) > len(buf) {
		return nil
	}
	return unsafe.Pointer(&buf[0])
}

// Samples returns a copy of the current contents of the port called name.
func (s *Server) Samples(name string) []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.ports {
		if p.name == name {
			return append([]float32(nil), p.buf...)
		}
	}
	return nil
}

// Feed writes samples into the buffer of the port called name, as if a
// physical capture port had produced them.
func (s *Server) Feed(name string, samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.ports {
		if p.name == name {
			copy(p.buf, samples)
			return nil
		}
	}
	return fmt.Errorf("jacktest: no port %q", name)
}

func (s *Server) portNamed(name string) (*simPort, bool) {
	for _, p := range s.ports {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// Connect implements jack.Backend.
func (s *Server) Connect(_ jack.ClientHandle, src, dst string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record(CallConnect) {
		return -1
	}
	sp, ok := s.portNamed(src)
	if !ok || sp.flags&jack.PortIsOutput == 0 {
		return -1
	}
	dp, ok := s.portNamed(dst)
	if !ok || dp.flags&jack.PortIsInput == 0 || sp.portType != dp.portType {
		return -1
	}
	cn := connection{src: sp.ptr, dst: dp.ptr}
	for _, existing := range s.connections {
		if existing == cn {
			return 17 // EEXIST
		}
	}
	s.connections = append(s.connections, cn)
	s.queueConnect(cn, true)
	return 0
}

// Disconnect implements jack.Backend. Refusals are reported as status
// bitmasks.
func (s *Server) Disconnect(_ jack.ClientHandle, src, dst string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[CallDisconnect]++
	if s.disconnectResult != 0 {
		return s.disconnectResult
	}
	sp, ok1 := s.portNamed(src)
	dp, ok2 := s.portNamed(dst)
	if !ok1 || !ok2 {
		return int(jack.Failure.Bits())
	}
	cn := connection{src: sp.ptr, dst: dp.ptr}
	for i, existing := range s.connections {
		if existing == cn {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			s.queueConnect(cn, false)
			return 0
		}
	}
	return int(jack.Failure.Bits())
}

// Connections returns "src -> dst" for every connection, sorted.
func (s *Server) Connections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.connections))
	for _, cn := range s.connections {
		out = append(out, s.ports[cn.src].name+" -> "+s.ports[cn.dst].name)
	}
	sort.Strings(out)
	return out
}

// queueConnect schedules a port connect notification for every client that
// subscribed. Callers hold mu.
func (s *Server) queueConnect(cn connection, connected bool) {
	a, b := s.ports[cn.src].id, s.ports[cn.dst].id
	flag := 0
	if connected {
		flag = 1
	}
	for _, h := range s.clientOrder {
		c := s.clients[h]
		if c.connect == nil {
			continue
		}
		fn, arg := c.connect, c.connectArg
		s.pending = append(s.pending, func() { fn(a, b, flag, arg) })
	}
}

func (s *Server) setCallback(call string, h jack.ClientHandle, install func(c *simClient)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record(call) {
		return -1
	}
	c, ok := s.clients[h]
	if !ok || c.active {
		return -1
	}
	install(c)
	return 0
}

// SetProcessCallback implements jack.Backend. Like libjack it refuses to
// change callbacks of an active client.
func (s *Server) SetProcessCallback(h jack.ClientHandle, fn jack.ProcessCallback, arg uintptr) int {
	return s.setCallback(CallSetProcess, h, func(c *simClient) {
		c.process, c.processArg = fn, arg
	})
}

// SetSampleRateCallback implements jack.Backend.
func (s *Server) SetSampleRateCallback(h jack.ClientHandle, fn jack.SampleRateCallback, arg uintptr) int {
	return s.setCallback(CallSetSampleRate, h, func(c *simClient) {
		c.sampleRate, c.srateArg = fn, arg
	})
}

// SetPortConnectCallback implements jack.Backend.
func (s *Server) SetPortConnectCallback(h jack.ClientHandle, fn jack.PortConnectCallback, arg uintptr) int {
	return s.setCallback(CallSetPortConnect, h, func(c *simClient) {
		c.connect, c.connectArg = fn, arg
	})
}

// SetXRunCallback implements jack.Backend.
func (s *Server) SetXRunCallback(h jack.ClientHandle, fn jack.XRunCallback, arg uintptr) int {
	return s.setCallback(CallSetXRun, h, func(c *simClient) {
		c.xrun, c.xrunArg = fn, arg
	})
}

// Activate implements jack.Backend. The current sample rate is delivered
// to subscribed clients, as libjack does.
func (s *Server) Activate(h jack.ClientHandle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record(CallActivate) {
		return -1
	}
	c, ok := s.clients[h]
	if !ok {
		return -1
	}
	c.active = true
	if c.sampleRate != nil {
		fn, arg, rate := c.sampleRate, c.srateArg, s.sampleRate
		s.pending = append(s.pending, func() { fn(rate, arg) })
	}
	return 0
}

// Deactivate implements jack.Backend.
func (s *Server) Deactivate(h jack.ClientHandle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record(CallDeactivate) {
		return -1
	}
	c, ok := s.clients[h]
	if !ok {
		return -1
	}
	c.active = false
	return 0
}

// Close implements jack.Backend. Every port of the client is destroyed.
func (s *Server) Close(h jack.ClientHandle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record(CallClose) {
		return -1
	}
	c, ok := s.clients[h]
	if !ok {
		return -1
	}
	for _, ptr := range append([]jack.PortPtr(nil), c.ports...) {
		s.removePort(s.ports[ptr])
	}
	delete(s.clients, h)
	for i, ch := range s.clientOrder {
		if ch == h {
			s.clientOrder = append(s.clientOrder[:i], s.clientOrder[i+1:]...)
			break
		}
	}
	return 0
}

// Cycle runs one process cycle of nframes frames for every active client.
// Audio written to output ports during the previous cycle is first copied
// to the input ports connected to them. Cycles never overlap.
//
// It returns the callbacks' results in client activation order.
func (s *Server) Cycle(nframes uint32) []int {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	var results []int
	for _, pc := range s.collect(nframes) {
		results = append(results, pc.fn(nframes, pc.arg))
	}
	return results
}

// CycleQuiet is Cycle without collecting results; it does not allocate.
func (s *Server) CycleQuiet(nframes uint32) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	for _, pc := range s.collect(nframes) {
		pc.fn(nframes, pc.arg)
	}
}

// collect propagates audio and snapshots the process callbacks to run.
// Callers hold cycleMu, which also guards scratch.
func (s *Server) collect(nframes uint32) []processCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.propagate(nframes)
	s.scratch = s.scratch[:0]
	for _, h := range s.clientOrder {
		c := s.clients[h]
		if c.active && c.process != nil {
			s.scratch = append(s.scratch, processCall{fn: c.process, arg: c.processArg})
		}
	}
	return s.scratch
}

// propagate mixes output buffers into the inputs they feed. Callers hold mu.
func (s *Server) propagate(nframes uint32) {
	n := int(nframes)
	for _, cn := range s.connections {
		dst := s.ports[cn.dst]
		if len(dst.buf) < n {
			continue
		}
		clear(dst.buf[:n])
	}
	for _, cn := range s.connections {
		src, dst := s.ports[cn.src], s.ports[cn.dst]
		if len(src.buf) < n || len(dst.buf) < n {
			continue
		}
		for i := 0; i < n; i++ {
			dst.buf[i] += src.buf[i]
		}
	}
}

// SetSampleRate changes the sample rate and queues a notification for
// every subscribed client.
func (s *Server) SetSampleRate(rate uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleRate = rate
	for _, h := range s.clientOrder {
		c := s.clients[h]
		if c.sampleRate == nil {
			continue
		}
		fn, arg := c.sampleRate, c.srateArg
		s.pending = append(s.pending, func() { fn(rate, arg) })
	}
}

// XRun queues an xrun notification for every subscribed client.
func (s *Server) XRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.clientOrder {
		c := s.clients[h]
		if c.xrun == nil {
			continue
		}
		fn, arg := c.xrun, c.xrunArg
		s.pending = append(s.pending, func() { fn(arg) })
	}
}

// Flush delivers every queued metadata notification on the calling
// goroutine and returns how many were delivered.
func (s *Server) Flush() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}
