package factory

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/opd-ai/jack"
	"github.com/opd-ai/jack/jacktest"
	"github.com/opd-ai/jack/libjack"
	"github.com/sirupsen/logrus"
)

// Validation constants for the simulated server.
const (
	// MinSampleRate is the lowest sample rate the simulation accepts.
	MinSampleRate = 8000
	// MaxSampleRate is the highest sample rate the simulation accepts.
	MaxSampleRate = 192000
	// MinBufferSize is the shortest simulated cycle in frames.
	MinBufferSize = 16
	// MaxBufferSize is the longest simulated cycle in frames.
	MaxBufferSize = 8192
)

// Config selects and parameterizes a jack.Backend.
type Config struct {
	// UseSimulation selects the in-process jacktest server instead of
	// libjack.
	UseSimulation bool
	// ServerName, when set, makes OpenClient connect to that server
	// instance.
	ServerName string
	// NoStartServer keeps libjack from starting a server when none runs.
	NoStartServer bool
	// SimSampleRate and SimBufferSize configure the simulated server.
	SimSampleRate uint32
	SimBufferSize uint32
}

// Options returns the client options implied by c.
func (c *Config) Options() jack.Options {
	var opts jack.Options
	if c.NoStartServer {
		opts |= jack.NoStartServer
	}
	return opts
}

// BackendFactory creates backends based on configuration.
// It is safe for concurrent use; all methods are protected by an internal mutex.
type BackendFactory struct {
	mu            sync.RWMutex
	defaultConfig *Config

	// newLibjack is replaced in tests.
	newLibjack func() (jack.Backend, error)
}

// TestConfigOption is a functional option for customizing the simulated
// server created for tests.
type TestConfigOption func(*Config)

// NewBackendFactory creates a new factory with default configuration
func NewBackendFactory() *BackendFactory {
	defaultConfig := createDefaultConfig()
	applyEnvironmentOverrides(defaultConfig)
	logConfigurationInfo(defaultConfig)

	return &BackendFactory{
		defaultConfig: defaultConfig,
		newLibjack:    libjack.New,
	}
}

// createDefaultConfig initializes the default backend configuration.
//
// Default Value Rationale:
//   - UseSimulation: false - a real server by default; simulation must be explicitly enabled
//   - NoStartServer: true - a CLI or service should not spawn a server as a side effect
//   - SimSampleRate: 48000 - the most common rate of current audio interfaces
//   - SimBufferSize: 256 - about 5 ms per cycle at 48 kHz
func createDefaultConfig() *Config {
	return &Config{
		UseSimulation: false,
		NoStartServer: true,
		SimSampleRate: 48000,
		SimBufferSize: 256,
	}
}

// applyEnvironmentOverrides updates configuration based on environment variables.
// It checks for JACK_* environment variables and overrides defaults if valid values are found.
func applyEnvironmentOverrides(config *Config) {
	parseBoolSetting("JACK_USE_SIMULATION", &config.UseSimulation)
	parseBoolSetting("JACK_NO_START_SERVER", &config.NoStartServer)
	if name := os.Getenv("JACK_SERVER_NAME"); name != "" {
		config.ServerName = name
	}
	parseRangeSetting("JACK_SIM_SAMPLE_RATE", MinSampleRate, MaxSampleRate, &config.SimSampleRate)
	parseRangeSetting("JACK_SIM_BUFFER_SIZE", MinBufferSize, MaxBufferSize, &config.SimBufferSize)
}

// parseBoolSetting overrides *dst from envVar. Unparseable values are
// logged and ignored.
func parseBoolSetting(envVar string, dst *bool) {
	str := os.Getenv(envVar)
	if str == "" {
		return
	}
	v, err := strconv.ParseBool(str)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseBoolSetting",
			"env_var":     envVar,
			"value":       str,
			"error":       err.Error(),
			"using_value": *dst,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	*dst = v
}

// parseRangeSetting overrides *dst from envVar if the value lies within
// [lo, hi]. Anything else is logged and ignored.
func parseRangeSetting(envVar string, lo, hi int, dst *uint32) {
	str := os.Getenv(envVar)
	if str == "" {
		return
	}
	v, err := strconv.Atoi(str)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseRangeSetting",
			"env_var":     envVar,
			"value":       str,
			"error":       err.Error(),
			"using_value": *dst,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if v < lo || v > hi {
		logrus.WithFields(logrus.Fields{
			"function":    "parseRangeSetting",
			"env_var":     envVar,
			"value":       v,
			"min":         lo,
			"max":         hi,
			"using_value": *dst,
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*dst = uint32(v)
}

// logConfigurationInfo logs the final configuration settings for debugging purposes.
func logConfigurationInfo(config *Config) {
	logrus.WithFields(logrus.Fields{
		"function":        "NewBackendFactory",
		"use_simulation":  config.UseSimulation,
		"server_name":     config.ServerName,
		"no_start_server": config.NoStartServer,
		"sim_sample_rate": config.SimSampleRate,
		"sim_buffer_size": config.SimBufferSize,
	}).Info("Created backend factory with configuration")
}

// CreateBackend creates a backend based on the current configuration
func (f *BackendFactory) CreateBackend() (jack.Backend, error) {
	return f.CreateBackendWithConfig(nil)
}

// CreateBackendWithConfig creates a backend with custom configuration. A nil
// config selects the factory default.
func (f *BackendFactory) CreateBackendWithConfig(config *Config) (jack.Backend, error) {
	if config == nil {
		config = f.GetCurrentConfig()
	}

	if config.UseSimulation {
		logrus.WithFields(logrus.Fields{
			"function":    "CreateBackendWithConfig",
			"type":        "simulation",
			"sample_rate": config.SimSampleRate,
			"buffer_size": config.SimBufferSize,
		}).Info("Creating simulated backend")
		return jacktest.NewServerWith(config.SimSampleRate, config.SimBufferSize), nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "CreateBackendWithConfig",
		"type":     "libjack",
	}).Info("Creating libjack backend")

	b, err := f.newLibjack()
	if err != nil {
		return nil, fmt.Errorf("create libjack backend: %w", err)
	}
	return b, nil
}

// OpenClient creates a backend and opens a client called name on it,
// connecting to ServerName when one is configured. The backend is returned
// so simulations can be driven.
func (f *BackendFactory) OpenClient(name string, extra jack.Options) (*jack.Client, string, jack.Backend, error) {
	config := f.GetCurrentConfig()
	b, err := f.CreateBackendWithConfig(config)
	if err != nil {
		return nil, "", nil, err
	}

	opts := config.Options() | extra
	var (
		c        *jack.Client
		assigned string
	)
	if config.ServerName != "" {
		c, assigned, err = jack.OpenConnectionTo(b, name, config.ServerName, opts)
	} else {
		c, assigned, err = jack.Open(b, name, opts)
	}
	if err != nil {
		return nil, "", nil, err
	}
	return c, assigned, b, nil
}

// WithSampleRate sets the sample rate of the test server.
func WithSampleRate(rate uint32) TestConfigOption {
	return func(c *Config) {
		c.SimSampleRate = rate
	}
}

// WithBufferSize sets the cycle length of the test server.
func WithBufferSize(frames uint32) TestConfigOption {
	return func(c *Config) {
		c.SimBufferSize = frames
	}
}

// CreateSimulationForTesting creates a simulated server specifically for
// testing. Default test configuration uses a 48 kHz rate and 64-frame
// cycles.
func (f *BackendFactory) CreateSimulationForTesting(opts ...TestConfigOption) *jacktest.Server {
	testConfig := &Config{
		UseSimulation: true,
		SimSampleRate: 48000,
		SimBufferSize: 64,
	}
	for _, opt := range opts {
		opt(testConfig)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "CreateSimulationForTesting",
		"sample_rate": testConfig.SimSampleRate,
		"buffer_size": testConfig.SimBufferSize,
	}).Info("Creating simulated server for testing")

	return jacktest.NewServerWith(testConfig.SimSampleRate, testConfig.SimBufferSize)
}

// SwitchToSimulation switches the configuration to use simulation
func (f *BackendFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSimulation",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to simulation mode")

	f.defaultConfig.UseSimulation = true
}

// SwitchToReal switches the configuration to use libjack
func (f *BackendFactory) SwitchToReal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToReal",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to libjack mode")

	f.defaultConfig.UseSimulation = false
}

// GetCurrentConfig returns a copy of the current default configuration
func (f *BackendFactory) GetCurrentConfig() *Config {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cfg := *f.defaultConfig
	return &cfg
}

// IsUsingSimulation returns true if the factory is configured for simulation
func (f *BackendFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.defaultConfig.UseSimulation
}

// UpdateConfig updates the factory's default configuration
func (f *BackendFactory) UpdateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "UpdateConfig",
		"old_simulation": f.defaultConfig.UseSimulation,
		"new_simulation": config.UseSimulation,
		"server_name":    config.ServerName,
	}).Info("Updating factory configuration")

	cfg := *config
	f.defaultConfig = &cfg
	return nil
}
