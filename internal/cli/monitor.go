package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/jack"
	"github.com/opd-ai/jack/internal/config"
	"github.com/opd-ai/jack/metrics"
)

func newMonitorCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the client's realtime counters as Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if err := jack.SetProcessHandler(s.client, jack.ProcessFunc(func(*jack.CallbackContext, uint32) int { return 0 })); err != nil {
				return err
			}
			if err := jack.SetMetadataHandler(s.client, notificationLogger{client: s.name}); err != nil {
				return err
			}
			if err := s.client.Activate(); err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			collector, err := metrics.NewCollector(reg)
			if err != nil {
				return err
			}
			collector.Track(s.name, s.client)

			ln, err := net.Listen("tcp", a.v.GetString(config.KeyMonitorListen))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			mux := http.NewServeMux()
			mux.Handle(a.v.GetString(config.KeyMonitorPath), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			logrus.WithFields(logrus.Fields{
				"function": "monitor",
				"address":  ln.Addr().String(),
				"path":     a.v.GetString(config.KeyMonitorPath),
			}).Info("Serving metrics")
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "serving http://%s%s\n", ln.Addr(), a.v.GetString(config.KeyMonitorPath))

			ctx, cancel := untilDone(cmd.Context(), duration)
			defer cancel()
			wait := s.drive(ctx)

			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.Serve(ln) }()

			select {
			case <-ctx.Done():
			case err = <-serveErr:
				cancel()
			}
			wait()

			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			if shutErr := srv.Shutdown(shutdownCtx); shutErr != nil {
				logrus.WithFields(logrus.Fields{
					"function": "monitor",
					"error":    shutErr.Error(),
				}).Warn("Metrics server shutdown failed")
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().String("listen", "", "listen address of the metrics endpoint")
	cmd.Flags().String("path", "", "HTTP path of the metrics endpoint")
	return cmd
}
