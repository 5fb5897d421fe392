// Package config resolves jackctl settings with viper: built-in defaults,
// then an optional config file, then JACKCTL_* environment variables, then
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/opd-ai/jack/factory"
)

// Setting keys.
const (
	KeyClientName    = "client_name"
	KeyUniqueSuffix  = "unique_suffix"
	KeyServerName    = "server_name"
	KeyNoStartServer = "no_start_server"
	KeySimulate      = "simulate"
	KeySimRate       = "sim.sample_rate"
	KeySimBuffer     = "sim.buffer_size"
	KeyLogLevel      = "log_level"
	KeyMonitorListen = "monitor.listen"
	KeyMonitorPath   = "monitor.path"
	KeyPlayBuffer    = "play.buffer"
	KeyPlayPort      = "play.port"
)

// Option is one setting with its default and a description.
type Option struct {
	Key     string
	Default any
	Comment string
}

// Options returns every setting jackctl understands.
func Options() []Option {
	return []Option{
		{Key: KeyClientName, Default: "jackctl", Comment: "Client name requested from the server"},
		{Key: KeyUniqueSuffix, Default: false, Comment: "Append a random suffix to client_name"},
		{Key: KeyServerName, Default: "", Comment: "Server to connect to; empty selects the default server"},
		{Key: KeyNoStartServer, Default: true, Comment: "Do not start a server when none is running"},
		{Key: KeySimulate, Default: false, Comment: "Use the in-process simulated server"},
		{Key: KeySimRate, Default: 48000, Comment: "Simulated server sample rate in Hz"},
		{Key: KeySimBuffer, Default: 256, Comment: "Simulated server period in frames"},
		{Key: KeyLogLevel, Default: "info", Comment: "logrus level: trace, debug, info, warn, error"},
		{Key: KeyMonitorListen, Default: "127.0.0.1:9120", Comment: "Listen address of the metrics endpoint"},
		{Key: KeyMonitorPath, Default: "/metrics", Comment: "HTTP path of the metrics endpoint"},
		{Key: KeyPlayBuffer, Default: "500ms", Comment: "Audio queued ahead of the realtime thread when playing"},
		{Key: KeyPlayPort, Default: "out", Comment: "Name of the output port registered for playback"},
	}
}

func applyDefaults(v *viper.Viper) {
	for _, o := range Options() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load seeds v with defaults, reads the config file if one is found and
// enables JACKCTL_* environment overrides. A config file set on v with
// SetConfigFile must exist; the search path is optional.
func Load(v *viper.Viper) error {
	explicit := v.ConfigFileUsed() != ""
	if !explicit {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "jackctl"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "jackctl"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			logrus.WithFields(logrus.Fields{
				"function": "config.Load",
				"file":     v.ConfigFileUsed(),
				"error":    err.Error(),
			}).Error("Failed to read config file")
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "config.Load",
			"file":     v.ConfigFileUsed(),
		}).Info("Loaded config file")
	}

	v.SetEnvPrefix("jackctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(v.GetString(KeyClientName)) == "" {
		v.Set(KeyClientName, "jackctl")
	}
	return nil
}

// CheckValidity reports every invalid setting in v at once.
func CheckValidity(v *viper.Viper) error {
	var errs []error
	if _, err := logrus.ParseLevel(v.GetString(KeyLogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	if rate := v.GetInt(KeySimRate); rate < factory.MinSampleRate || rate > factory.MaxSampleRate {
		errs = append(errs, fmt.Errorf("%s must be between %d and %d", KeySimRate, factory.MinSampleRate, factory.MaxSampleRate))
	}
	if size := v.GetInt(KeySimBuffer); size < factory.MinBufferSize || size > factory.MaxBufferSize {
		errs = append(errs, fmt.Errorf("%s must be between %d and %d", KeySimBuffer, factory.MinBufferSize, factory.MaxBufferSize))
	}
	if d := v.GetDuration(KeyPlayBuffer); d <= 0 || d > 10*time.Second {
		errs = append(errs, fmt.Errorf("%s must be between 0 and 10s", KeyPlayBuffer))
	}
	if strings.TrimSpace(v.GetString(KeyPlayPort)) == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyPlayPort))
	}
	if !strings.HasPrefix(v.GetString(KeyMonitorPath), "/") {
		errs = append(errs, fmt.Errorf("%s must start with /", KeyMonitorPath))
	}
	return errors.Join(errs...)
}

// ClientName returns the client name to request, with a random suffix when
// unique_suffix is set.
func ClientName(v *viper.Viper) string {
	name := v.GetString(KeyClientName)
	if v.GetBool(KeyUniqueSuffix) {
		name = name + "-" + uuid.NewString()[:8]
	}
	return name
}

// FactoryConfig translates the settings into a backend factory config.
func FactoryConfig(v *viper.Viper) *factory.Config {
	return &factory.Config{
		UseSimulation: v.GetBool(KeySimulate),
		ServerName:    v.GetString(KeyServerName),
		NoStartServer: v.GetBool(KeyNoStartServer),
		SimSampleRate: uint32(v.GetInt(KeySimRate)),
		SimBufferSize: uint32(v.GetInt(KeySimBuffer)),
	}
}

// ApplyLogLevel sets the global logrus level from the log_level setting.
func ApplyLogLevel(v *viper.Viper) error {
	level, err := logrus.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	return nil
}
