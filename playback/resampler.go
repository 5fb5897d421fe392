package playback

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Resampler converts a mono stream between sample rates by linear
// interpolation. State carries over between calls so consecutive blocks
// join without clicks.
type Resampler struct {
	inputRate  uint32
	outputRate uint32
	ratio      float64
	last       float32 // final sample of the previous block
	position   float64 // read position relative to the current block; -1 is the previous block's last sample
}

// NewResampler creates a resampler from inputRate to outputRate.
func NewResampler(inputRate, outputRate uint32) (*Resampler, error) {
	if inputRate == 0 || outputRate == 0 {
		logrus.WithFields(logrus.Fields{
			"function":    "NewResampler",
			"input_rate":  inputRate,
			"output_rate": outputRate,
		}).Error("Sample rate validation failed")
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", inputRate, outputRate)
	}

	r := &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  inputRate,
		"output_rate": outputRate,
		"ratio":       r.ratio,
	}).Debug("Resampler created")
	return r, nil
}

// InputRate returns the configured input sample rate.
func (r *Resampler) InputRate() uint32 { return r.inputRate }

// OutputRate returns the configured output sample rate.
func (r *Resampler) OutputRate() uint32 { return r.outputRate }

// Resample appends the converted samples of in to out and returns the
// extended slice.
func (r *Resampler) Resample(out, in []float32) []float32 {
	if len(in) == 0 {
		return out
	}
	if r.inputRate == r.outputRate {
		r.last = in[len(in)-1]
		return append(out, in...)
	}

	frames := float64(len(in))
	for r.position < frames-1 {
		idx := int(math.Floor(r.position))
		frac := float32(r.position - float64(idx))

		var a float32
		if idx < 0 {
			a = r.last
		} else {
			a = in[idx]
		}
		b := in[idx+1]
		out = append(out, a+(b-a)*frac)
		r.position += r.ratio
	}

	r.position -= frames
	r.last = in[len(in)-1]
	return out
}

// Reset forgets the stream history.
func (r *Resampler) Reset() {
	r.position = 0
	r.last = 0
}
