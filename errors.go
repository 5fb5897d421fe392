package jack

import (
	"errors"
	"fmt"
)

// Sentinel errors for client operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrConnectionRefused indicates the server returned no client handle.
	ErrConnectionRefused = errors.New("connection refused by server")

	// ErrOperationFailed indicates a server call failed without a
	// structured reason.
	ErrOperationFailed = errors.New("server operation failed")

	// ErrDisconnectFailed indicates the server refused to disconnect two
	// ports and reported a status bitmask.
	ErrDisconnectFailed = errors.New("disconnect failed")

	// ErrUnsupportedCapability indicates a metadata handler asked for an
	// event kind this package does not deliver.
	ErrUnsupportedCapability = errors.New("unsupported metadata capability")
)

// Client state errors.
var (
	// ErrClientClosed indicates the client has already been closed.
	ErrClientClosed = errors.New("client is closed")

	// ErrStalePort indicates a handle to a port this client has already
	// unregistered.
	ErrStalePort = errors.New("port handle is stale")

	// ErrPortNotOwned indicates a handle to a port registered by a
	// different Client.
	ErrPortNotOwned = errors.New("port is owned by another client")

	// ErrNilHandler indicates a nil handler was passed to a Set*Handler call.
	ErrNilHandler = errors.New("handler is nil")

	// ErrUnknownOption indicates an option name that does not exist.
	ErrUnknownOption = errors.New("unknown option")
)

// StatusError is returned by every client operation that fails because of
// the server. Status holds the decoded flags; operations for which the
// server reports no detail carry Failure only.
type StatusError struct {
	Op     string
	Status Status
	kind   error
}

func newStatusError(op string, kind error, s Status) *StatusError {
	return &StatusError{Op: op, Status: s, kind: kind}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jack: %s: %v: %v", e.Op, e.kind, e.Status)
}

// Unwrap returns the sentinel describing the kind of failure.
func (e *StatusError) Unwrap() error { return e.kind }

// StatusOf extracts the status flags carried by err. It returns zero and
// false if err carries no status.
func StatusOf(err error) (Status, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}
