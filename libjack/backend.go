//go:build jack

package libjack

/*
#cgo pkg-config: jack
#include <stdlib.h>
#include <stdint.h>
#include <jack/jack.h>

extern int goJackProcess(jack_nframes_t, uintptr_t);
extern int goJackSampleRate(jack_nframes_t, uintptr_t);
extern void goJackPortConnect(jack_port_id_t, jack_port_id_t, int, uintptr_t);
extern int goJackXRun(uintptr_t);

// jack_client_open is variadic, which cgo cannot call.
static jack_client_t *jack_client_open_(const char *name, jack_options_t options, jack_status_t *status, const char *server) {
	if (server != NULL) {
		return jack_client_open(name, options, status, server);
	}
	return jack_client_open(name, options, status);
}

static int process_cb(jack_nframes_t n, void *arg) { return goJackProcess(n, (uintptr_t)arg); }
static int sample_rate_cb(jack_nframes_t n, void *arg) { return goJackSampleRate(n, (uintptr_t)arg); }
static void port_connect_cb(jack_port_id_t a, jack_port_id_t b, int connect, void *arg) { goJackPortConnect(a, b, connect, (uintptr_t)arg); }
static int xrun_cb(void *arg) { return goJackXRun((uintptr_t)arg); }

static int set_process(jack_client_t *c, uintptr_t slot) {
	return jack_set_process_callback(c, process_cb, (void *)slot);
}
static int set_sample_rate(jack_client_t *c, uintptr_t slot) {
	return jack_set_sample_rate_callback(c, sample_rate_cb, (void *)slot);
}
static int set_port_connect(jack_client_t *c, uintptr_t slot) {
	return jack_set_port_connect_callback(c, port_connect_cb, (void *)slot);
}
static int set_xrun(jack_client_t *c, uintptr_t slot) {
	return jack_set_xrun_callback(c, xrun_cb, (void *)slot);
}
*/
import "C"

import (
	"unsafe"

	"github.com/opd-ai/jack"
	"github.com/sirupsen/logrus"
)

// Available reports whether the binding was compiled in.
const Available = true

// Backend is the libjack implementation of jack.Backend.
type Backend struct{}

var _ jack.Backend = (*Backend)(nil)

// New returns the libjack backend.
func New() (jack.Backend, error) {
	logrus.WithFields(logrus.Fields{
		"function": "libjack.New",
		"version":  C.GoString(C.jack_get_version_string()),
	}).Info("Using libjack backend")
	return &Backend{}, nil
}

func cclient(h jack.ClientHandle) *C.jack_client_t {
	raw, ok := clients.lookup(h)
	if !ok {
		return nil
	}
	return (*C.jack_client_t)(unsafe.Pointer(raw))
}

// cport converts a port identifier back to the libjack pointer. Ports live
// in libjack's memory, never in the Go heap.
func cport(p jack.PortPtr) *C.jack_port_t {
	return (*C.jack_port_t)(unsafe.Pointer(uintptr(p)))
}

// Open implements jack.Backend.
func (b *Backend) Open(name string, opts jack.Options, serverName ...string) (jack.ClientHandle, uint32) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var cserver *C.char
	if len(serverName) > 0 {
		cserver = C.CString(serverName[0])
		defer C.free(unsafe.Pointer(cserver))
	}

	var status C.jack_status_t
	cl := C.jack_client_open_(cname, C.jack_options_t(opts.Bits()), &status, cserver)
	if cl == nil {
		return 0, uint32(status)
	}

	h, err := clients.add(uintptr(unsafe.Pointer(cl)))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Backend.Open",
			"name":     name,
			"error":    err.Error(),
		}).Error("No client slot left")
		C.jack_client_close(cl)
		return 0, (jack.Failure).Bits()
	}
	return h, uint32(status)
}

// ClientName implements jack.Backend.
func (b *Backend) ClientName(h jack.ClientHandle) string {
	c := cclient(h)
	if c == nil {
		return ""
	}
	return C.GoString(C.jack_get_client_name(c))
}

// SampleRate implements jack.Backend.
func (b *Backend) SampleRate(h jack.ClientHandle) uint32 {
	c := cclient(h)
	if c == nil {
		return 0
	}
	return uint32(C.jack_get_sample_rate(c))
}

// BufferSize implements jack.Backend.
func (b *Backend) BufferSize(h jack.ClientHandle) uint32 {
	c := cclient(h)
	if c == nil {
		return 0
	}
	return uint32(C.jack_get_buffer_size(c))
}

// RegisterPort implements jack.Backend.
func (b *Backend) RegisterPort(h jack.ClientHandle, shortName, portType string, flags jack.PortFlags, bufferSize uint64) jack.PortPtr {
	c := cclient(h)
	if c == nil {
		return 0
	}
	cname := C.CString(shortName)
	defer C.free(unsafe.Pointer(cname))
	ctype := C.CString(portType)
	defer C.free(unsafe.Pointer(ctype))

	p := C.jack_port_register(c, cname, ctype, C.ulong(flags), C.ulong(bufferSize))
	return jack.PortPtr(uintptr(unsafe.Pointer(p)))
}

// UnregisterPort implements jack.Backend.
func (b *Backend) UnregisterPort(h jack.ClientHandle, p jack.PortPtr) int {
	c := cclient(h)
	if c == nil || p == 0 {
		return -1
	}
	return int(C.jack_port_unregister(c, cport(p)))
}

// PortByName implements jack.Backend.
func (b *Backend) PortByName(h jack.ClientHandle, name string) jack.PortPtr {
	c := cclient(h)
	if c == nil {
		return 0
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return jack.PortPtr(uintptr(unsafe.Pointer(C.jack_port_by_name(c, cname))))
}

// PortByID implements jack.Backend.
func (b *Backend) PortByID(h jack.ClientHandle, id jack.PortID) jack.PortPtr {
	c := cclient(h)
	if c == nil {
		return 0
	}
	return jack.PortPtr(uintptr(unsafe.Pointer(C.jack_port_by_id(c, C.jack_port_id_t(id)))))
}

// PortName implements jack.Backend.
func (b *Backend) PortName(p jack.PortPtr) string {
	if p == 0 {
		return ""
	}
	return C.GoString(C.jack_port_name(cport(p)))
}

// PortBuffer implements jack.Backend.
func (b *Backend) PortBuffer(p jack.PortPtr, nframes uint32) unsafe.Pointer {
	if p == 0 {
		return nil
	}
	return C.jack_port_get_buffer(cport(p), C.jack_nframes_t(nframes))
}

// Connect implements jack.Backend.
func (b *Backend) Connect(h jack.ClientHandle, src, dst string) int {
	c := cclient(h)
	if c == nil {
		return -1
	}
	csrc, cdst := C.CString(src), C.CString(dst)
	defer C.free(unsafe.Pointer(csrc))
	defer C.free(unsafe.Pointer(cdst))
	return int(C.jack_connect(c, csrc, cdst))
}

// Disconnect implements jack.Backend. libjack's plain error codes are
// reported as Failure.
func (b *Backend) Disconnect(h jack.ClientHandle, src, dst string) int {
	c := cclient(h)
	if c == nil {
		return int(jack.Failure.Bits())
	}
	csrc, cdst := C.CString(src), C.CString(dst)
	defer C.free(unsafe.Pointer(csrc))
	defer C.free(unsafe.Pointer(cdst))
	return normalizeDisconnect(int(C.jack_disconnect(c, csrc, cdst)))
}

// SetProcessCallback implements jack.Backend. A nil fn here and in the
// other setters leaves libjack's callback registered but empties the slot
// it dispatches through.
func (b *Backend) SetProcessCallback(h jack.ClientHandle, fn jack.ProcessCallback, arg uintptr) int {
	c := cclient(h)
	if c == nil {
		return -1
	}
	var e *processEntry
	if fn != nil {
		e = &processEntry{fn: fn, arg: arg}
	}
	return install(&clients.slot(uintptr(h)).process, e, func() int {
		return int(C.set_process(c, C.uintptr_t(h)))
	})
}

// SetSampleRateCallback implements jack.Backend.
func (b *Backend) SetSampleRateCallback(h jack.ClientHandle, fn jack.SampleRateCallback, arg uintptr) int {
	c := cclient(h)
	if c == nil {
		return -1
	}
	var e *sampleRateEntry
	if fn != nil {
		e = &sampleRateEntry{fn: fn, arg: arg}
	}
	return install(&clients.slot(uintptr(h)).sampleRate, e, func() int {
		return int(C.set_sample_rate(c, C.uintptr_t(h)))
	})
}

// SetPortConnectCallback implements jack.Backend.
func (b *Backend) SetPortConnectCallback(h jack.ClientHandle, fn jack.PortConnectCallback, arg uintptr) int {
	c := cclient(h)
	if c == nil {
		return -1
	}
	var e *portConnectEntry
	if fn != nil {
		e = &portConnectEntry{fn: fn, arg: arg}
	}
	return install(&clients.slot(uintptr(h)).connect, e, func() int {
		return int(C.set_port_connect(c, C.uintptr_t(h)))
	})
}

// SetXRunCallback implements jack.Backend.
func (b *Backend) SetXRunCallback(h jack.ClientHandle, fn jack.XRunCallback, arg uintptr) int {
	c := cclient(h)
	if c == nil {
		return -1
	}
	var e *xrunEntry
	if fn != nil {
		e = &xrunEntry{fn: fn, arg: arg}
	}
	return install(&clients.slot(uintptr(h)).xrun, e, func() int {
		return int(C.set_xrun(c, C.uintptr_t(h)))
	})
}

// Activate implements jack.Backend.
func (b *Backend) Activate(h jack.ClientHandle) int {
	c := cclient(h)
	if c == nil {
		return -1
	}
	return int(C.jack_activate(c))
}

// Deactivate implements jack.Backend.
func (b *Backend) Deactivate(h jack.ClientHandle) int {
	c := cclient(h)
	if c == nil {
		return -1
	}
	return int(C.jack_deactivate(c))
}

// Close implements jack.Backend. The client slot is freed only once libjack
// has stopped calling back.
func (b *Backend) Close(h jack.ClientHandle) int {
	c := cclient(h)
	if c == nil {
		return -1
	}
	if ret := int(C.jack_client_close(c)); ret != 0 {
		return ret
	}
	clients.remove(h)
	return 0
}
