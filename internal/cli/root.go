// Package cli implements the jackctl command tree.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opd-ai/jack/factory"
	"github.com/opd-ai/jack/internal/config"
)

type ctxKey string

const appKey ctxKey = "app"

// app carries the resolved settings to subcommands.
type app struct {
	v       *viper.Viper
	factory *factory.BackendFactory
}

// flagKeys maps flag names to the settings they override.
var flagKeys = map[string]string{
	"simulate":  config.KeySimulate,
	"server":    config.KeyServerName,
	"name":      config.KeyClientName,
	"unique":    config.KeyUniqueSuffix,
	"log-level": config.KeyLogLevel,
	"listen":    config.KeyMonitorListen,
	"path":      config.KeyMonitorPath,
	"buffer":    config.KeyPlayBuffer,
	"port":      config.KeyPlayPort,
}

// Execute runs jackctl with ctx; cancelling ctx stops long-running
// commands.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd constructs the root command and its subcommands.
func NewRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "jackctl",
		Short:         "jackctl inspects and drives a JACK audio server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if cfgPath != "" {
				v.SetConfigFile(cfgPath)
			}
			if err := config.Load(v); err != nil {
				return err
			}
			applyFlagOverrides(cmd, v)
			if err := config.CheckValidity(v); err != nil {
				return err
			}
			if err := config.ApplyLogLevel(v); err != nil {
				return err
			}

			a := &app{v: v, factory: factory.NewBackendFactory()}
			if err := a.factory.UpdateConfig(config.FactoryConfig(v)); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (yaml|toml)")
	pf.Bool("simulate", false, "use the in-process simulated server")
	pf.String("server", "", "name of the server to connect to")
	pf.String("name", "", "client name")
	pf.Bool("unique", false, "append a random suffix to the client name")
	pf.String("log-level", "", "log level (trace, debug, info, warn, error)")

	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newPortsCmd())
	cmd.AddCommand(newConnectCmd())
	cmd.AddCommand(newDisconnectCmd())
	cmd.AddCommand(newPassthroughCmd())
	cmd.AddCommand(newMonitorCmd())
	cmd.AddCommand(newPlayCmd())

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }
	return cmd
}

func applyFlagOverrides(cmd *cobra.Command, v *viper.Viper) {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		v.Set(key, f.Value.String())
	}
}

func getApp(cmd *cobra.Command) (*app, error) {
	a, ok := cmd.Context().Value(appKey).(*app)
	if !ok {
		return nil, errors.New("internal error: app not initialized")
	}
	return a, nil
}
