// Package jack is a client library for the JACK Audio Connection Kit.
//
// A JACK server runs a realtime processing graph. Clients register ports,
// connect them to ports of other clients and receive a callback once per
// cycle to read their inputs and fill their outputs. This package exposes
// that model with owned, typed handles and handler interfaces; the server
// itself is reached through a Backend, either the cgo binding in package
// libjack or the in-process simulation in package jacktest.
//
// # Getting Started
//
//	client, name, err := jack.Open(backend, "synth", jack.NoStartServer)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	out, err := client.RegisterOutputAudioPort("out")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = client.SetProcessHandler(jack.ProcessFunc(func(ctx *jack.CallbackContext, n uint32) int {
//	    buf := jack.AudioOut(ctx, out)
//	    for i := range buf {
//	        buf[i] = 0
//	    }
//	    return 0
//	}))
//
//	err = client.Activate()
//
// # Core Types
//
//   - [Client]: an open connection to a server
//   - [Status], [Options], [PortFlags]: the server's bit flag sets
//   - [UnknownPort], [InputPort], [OutputPort]: port handles
//   - [ProcessHandler], [MetadataHandler]: callback receivers
//   - [Backend]: the server boundary
//
// # Realtime Constraints
//
// ProcessHandler.Process runs on the server's realtime thread. It must not
// allocate, block, take locks shared with ordinary goroutines, log or call
// back into the Client. Buffers returned by AudioIn and AudioOut alias
// server memory and are valid only until Process returns, and so is the
// CallbackContext. The trampoline that dispatches to a handler performs no
// allocation of its own.
//
// Metadata notifications arrive on a different server thread and may run
// concurrently with Process. The library never starts goroutines to deliver
// callbacks.
//
// # Handler Ownership
//
// A handler passed to SetProcessHandler or SetMetadataHandler is moved to
// the heap once and owned by the Client. It is released when it is
// replaced, when the server refuses it, or when Close succeeds, and never
// twice. Close must not be called from inside a handler.
//
// # Errors
//
// Failures that carry server status wrap one of the sentinel errors and
// expose the flags through StatusOf:
//
//	_, _, err := jack.Open(backend, "synth", jack.NoStartServer)
//	if errors.Is(err, jack.ErrConnectionRefused) {
//	    status, _ := jack.StatusOf(err)
//	    log.Printf("server refused: %v", status)
//	}
//
// A refused connection carries only Failure because the server gives no
// reason; a refused disconnection carries the server's decoded flags.
package jack
