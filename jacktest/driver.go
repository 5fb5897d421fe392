package jacktest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Period returns the wall-clock duration of one cycle at the current
// sample rate and buffer size.
func (s *Server) Period() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sampleRate == 0 {
		return 0
	}
	return time.Duration(s.bufferSize) * time.Second / time.Duration(s.sampleRate)
}

// Run drives the server until ctx is done: one process cycle per period on
// the calling goroutine, with queued notifications delivered on a second
// goroutine, mirroring the server's realtime and notification threads.
func (s *Server) Run(ctx context.Context) error {
	period := s.Period()
	logrus.WithFields(logrus.Fields{
		"function": "Server.Run",
		"period":   period.String(),
	}).Info("Simulated server running")

	notify := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
				s.Flush()
			}
		}
	}()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			logrus.WithFields(logrus.Fields{
				"function": "Server.Run",
			}).Info("Simulated server stopped")
			return ctx.Err()
		case <-ticker.C:
			s.mu.RLock()
			n := s.bufferSize
			s.mu.RUnlock()
			s.CycleQuiet(n)
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}
}
