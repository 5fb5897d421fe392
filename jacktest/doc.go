// Package jacktest provides an in-memory JACK server for deterministic
// testing of code built on the jack package.
//
// # Overview
//
// Server implements jack.Backend entirely in process. It keeps clients,
// ports and connections the way a real server does, records every call so
// tests can verify how the client library drove it, and lets tests force
// failures on any entry point.
//
// # Usage
//
//	srv := jacktest.NewServer()
//	client, name, err := jack.Open(srv, "synth", jack.NoStartServer)
//
//	out, _ := client.RegisterOutputAudioPort("out")
//	_ = client.SetProcessHandler(myHandler)
//	_ = client.Activate()
//
//	srv.Cycle(256)   // one realtime cycle
//	srv.XRun()       // queue a notification
//	srv.Flush()      // deliver queued notifications
//
// # Threads
//
// A real server calls the process callback from its realtime thread and
// metadata callbacks from a separate notification thread. Cycle and Flush
// run them on the caller's goroutine instead; Run reproduces the two
// threads with a ticker and a goroutine.
//
// # Failure injection
//
//   - RefuseOpen: every Open returns a null handle with the given status
//   - FailNext: the next n calls of an entry point fail
//   - FailDisconnectWith: Disconnect returns the given status bitmask
package jacktest
