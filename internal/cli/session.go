package cli

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/jack"
	"github.com/opd-ai/jack/internal/config"
	"github.com/opd-ai/jack/jacktest"
)

// session is one open client for the duration of a command.
type session struct {
	client *jack.Client
	name   string
	sim    *jacktest.Server // nil when talking to a real server
}

func openSession(cmd *cobra.Command) (*session, error) {
	a, err := getApp(cmd)
	if err != nil {
		return nil, err
	}
	c, name, b, err := a.factory.OpenClient(config.ClientName(a.v), 0)
	if err != nil {
		return nil, err
	}
	sim, _ := b.(*jacktest.Server)
	return &session{client: c, name: name, sim: sim}, nil
}

// drive runs the simulated server's cycles until ctx ends. It does nothing
// against a real server. The returned function waits for the driver to
// stop.
func (s *session) drive(ctx context.Context) func() {
	if s.sim == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logrus.WithFields(logrus.Fields{
				"function": "session.drive",
				"error":    err.Error(),
			}).Error("Simulated server stopped")
		}
	}()
	return func() { <-done }
}

func (s *session) close() {
	if err := s.client.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "session.close",
			"client":   s.name,
			"error":    err.Error(),
		}).Warn("Failed to close client")
	}
}

// untilDone derives a context that also ends after d when d is positive.
func untilDone(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// finished reports whether err only says the run ended as asked.
func finished(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
