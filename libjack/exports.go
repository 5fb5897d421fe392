//go:build jack

package libjack

/*
#include <stdint.h>
#include <jack/jack.h>
*/
import "C"

import "github.com/opd-ai/jack"

//export goJackProcess
func goJackProcess(nframes C.jack_nframes_t, slot C.uintptr_t) C.int {
	return C.int(dispatchProcess(uint32(nframes), uintptr(slot)))
}

//export goJackSampleRate
func goJackSampleRate(rate C.jack_nframes_t, slot C.uintptr_t) C.int {
	return C.int(dispatchSampleRate(uint32(rate), uintptr(slot)))
}

//export goJackPortConnect
func goJackPortConnect(a, b C.jack_port_id_t, connect C.int, slot C.uintptr_t) {
	dispatchPortConnect(jack.PortID(a), jack.PortID(b), int(connect), uintptr(slot))
}

//export goJackXRun
func goJackXRun(slot C.uintptr_t) C.int {
	return C.int(dispatchXRun(uintptr(slot)))
}
