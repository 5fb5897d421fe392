package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/opd-ai/jack"
	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is how long Feed waits for room in a full ring.
const DefaultPollInterval = 5 * time.Millisecond

// ErrAlreadyFeeding is returned when Feed is called while another Feed is
// still running on the same player.
var ErrAlreadyFeeding = errors.New("player is already being fed")

// PlayerStats is a snapshot of a player's counters.
type PlayerStats struct {
	Played    uint64 // samples copied to the output port
	Underruns uint64 // cycles that ran short of data while feeding
	Buffered  int    // samples waiting in the ring
}

// Player plays a Source through one audio output port. Process runs on the
// realtime thread and only touches the ring and atomics; Feed decodes and
// resamples on an ordinary goroutine.
type Player struct {
	out  jack.OutputPort[jack.AudioSample]
	ring *Ring

	feeding   atomic.Bool
	played    atomic.Uint64
	underruns atomic.Uint64

	// PollInterval is how long Feed sleeps while the ring is full.
	PollInterval time.Duration
	// Effects, if set, processes each resampled block before it is queued.
	Effects Effect
}

var _ jack.ProcessHandler = (*Player)(nil)

// NewPlayer creates a player writing to out with room for bufferSamples
// samples of lookahead.
func NewPlayer(out jack.OutputPort[jack.AudioSample], bufferSamples int) *Player {
	return &Player{
		out:          out,
		ring:         NewRing(bufferSamples),
		PollInterval: DefaultPollInterval,
	}
}

// Process implements jack.ProcessHandler.
func (p *Player) Process(ctx *jack.CallbackContext, nframes uint32) int {
	buf := jack.AudioOut(ctx, p.out)
	if buf == nil {
		return 0
	}
	n := p.ring.Read(buf)
	if n < len(buf) {
		clear(buf[n:])
		if p.feeding.Load() {
			p.underruns.Add(1)
		}
	}
	p.played.Add(uint64(n))
	return 0
}

// Stats returns the player's counters.
func (p *Player) Stats() PlayerStats {
	return PlayerStats{
		Played:    p.played.Load(),
		Underruns: p.underruns.Load(),
		Buffered:  p.ring.Len(),
	}
}

// Feed reads src until it is exhausted, converting it to outputRate and
// queueing it for Process. It returns once the queued audio has been
// played, or with the context's error if ctx ends first.
func (p *Player) Feed(ctx context.Context, src Source, outputRate uint32) error {
	if !p.feeding.CompareAndSwap(false, true) {
		return ErrAlreadyFeeding
	}
	defer p.feeding.Store(false)

	rs, err := NewResampler(src.SampleRate(), outputRate)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Player.Feed",
		"input_rate":  src.SampleRate(),
		"output_rate": outputRate,
		"buffer":      p.ring.Cap(),
	}).Info("Starting playback feed")

	timer := time.NewTimer(p.PollInterval)
	defer timer.Stop()
	wait := func() error {
		timer.Reset(p.PollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	var scratch []float32
	var blocks int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Player.Feed",
				"blocks":   blocks,
				"error":    err.Error(),
			}).Error("Source failed")
			return fmt.Errorf("read source: %w", err)
		}
		blocks++

		scratch = rs.Resample(scratch[:0], block)
		if p.Effects != nil {
			p.Effects.Process(scratch)
		}
		for pending := scratch; len(pending) > 0; {
			n := p.ring.Write(pending)
			pending = pending[n:]
			if len(pending) > 0 {
				if err := wait(); err != nil {
					return err
				}
			}
		}
	}

	for p.ring.Len() > 0 {
		if err := wait(); err != nil {
			return err
		}
	}

	st := p.Stats()
	logrus.WithFields(logrus.Fields{
		"function":  "Player.Feed",
		"blocks":    blocks,
		"played":    st.Played,
		"underruns": st.Underruns,
	}).Info("Playback feed finished")
	return nil
}
