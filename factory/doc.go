// Package factory chooses the jack.Backend a program runs against.
//
// The factory abstracts backend creation so the same code can run against a
// real JACK server through libjack or against the in-process simulation from
// jacktest without changes.
//
// # Configuration
//
// The factory supports configuration via environment variables:
//   - JACK_USE_SIMULATION: "true" or "false" to enable simulation mode
//   - JACK_SERVER_NAME: name of the server instance to connect to
//   - JACK_NO_START_SERVER: "true" or "false"; keep libjack from starting a server
//   - JACK_SIM_SAMPLE_RATE: sample rate of the simulated server
//   - JACK_SIM_BUFFER_SIZE: frames per cycle of the simulated server
//
// # Usage
//
//	factory := NewBackendFactory()
//
//	client, name, backend, err := factory.OpenClient("recorder", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// # Testing Support
//
//	func TestMyFeature(t *testing.T) {
//	    srv := NewBackendFactory().CreateSimulationForTesting(WithBufferSize(128))
//	    client, _, err := jack.Open(srv, "test", jack.NoStartServer)
//	    // ...
//	}
package factory
