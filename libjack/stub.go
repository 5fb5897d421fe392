//go:build !jack

package libjack

import "github.com/opd-ai/jack"

// Available reports whether the binding was compiled in.
const Available = false

// New always fails with ErrUnavailable; build with -tags jack for the real
// binding.
func New() (jack.Backend, error) {
	return nil, ErrUnavailable
}
