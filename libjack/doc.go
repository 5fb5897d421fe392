// Package libjack implements jack.Backend on top of the system's libjack
// through cgo.
//
// The binding is compiled only with the "jack" build tag and requires the
// JACK development headers (pkg-config name "jack"):
//
//	go build -tags jack ./...
//
// Without the tag New returns ErrUnavailable, so programs can fall back to
// the simulated server in package jacktest.
//
// # Callbacks
//
// libjack calls plain C functions with a void* argument. Go function values
// cannot cross that boundary, so every client gets a fixed slot in a
// package-level table and the slot number is what libjack stores as the
// callback argument. Exported Go functions look the slot up with atomic
// loads only and forward to the jack.Backend callback and opaque context
// installed there. Nothing on that path allocates.
package libjack
