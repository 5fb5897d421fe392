package playback

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Effect transforms a block of samples in place. Effects run on the feeding
// goroutine, never on the realtime thread.
type Effect interface {
	Process(samples []float32)
	Name() string
}

// GainEffect scales samples by a fixed linear gain and clips to [-1, 1].
type GainEffect struct {
	gain float32
}

// MaxGain bounds GainEffect's multiplier (+12 dB).
const MaxGain = 4.0

// NewGainEffect creates a gain effect; gain must lie in [0, MaxGain].
func NewGainEffect(gain float32) (*GainEffect, error) {
	if gain < 0 || gain > MaxGain {
		logrus.WithFields(logrus.Fields{
			"function": "NewGainEffect",
			"gain":     gain,
		}).Error("Gain out of range")
		return nil, fmt.Errorf("gain %.2f outside [0, %.1f]", gain, MaxGain)
	}
	return &GainEffect{gain: gain}, nil
}

// Process implements Effect.
func (g *GainEffect) Process(samples []float32) {
	for i, s := range samples {
		samples[i] = clip(s * g.gain)
	}
}

// Name implements Effect.
func (g *GainEffect) Name() string { return fmt.Sprintf("Gain(%.2f)", g.gain) }

// Gain returns the multiplier.
func (g *GainEffect) Gain() float32 { return g.gain }

// AutoGainEffect follows the signal's peak level and steers its gain toward
// a target level, rising faster than it falls.
type AutoGainEffect struct {
	targetLevel float64
	currentGain float64
	peakLevel   float64
	attackRate  float64 // gain increase per sample
	releaseRate float64 // gain decrease per sample
	minGain     float64
	maxGain     float64
}

// NewAutoGainEffect creates an automatic gain control aiming at 30% of full
// scale.
func NewAutoGainEffect() *AutoGainEffect {
	return &AutoGainEffect{
		targetLevel: 0.3,
		currentGain: 1,
		attackRate:  0.001,
		releaseRate: 0.0001,
		minGain:     0.1,
		maxGain:     MaxGain,
	}
}

// SetTargetLevel changes the level the effect aims for, in (0, 1].
func (a *AutoGainEffect) SetTargetLevel(level float64) error {
	if level <= 0 || level > 1 {
		return fmt.Errorf("target level %.2f outside (0, 1]", level)
	}
	a.targetLevel = level
	return nil
}

// CurrentGain returns the gain applied to the last block.
func (a *AutoGainEffect) CurrentGain() float64 { return a.currentGain }

// Process implements Effect.
func (a *AutoGainEffect) Process(samples []float32) {
	if len(samples) == 0 {
		return
	}

	var peak float64
	for _, s := range samples {
		if v := float64(s); v > peak {
			peak = v
		} else if -v > peak {
			peak = -v
		}
	}
	if peak > a.peakLevel {
		a.peakLevel += (peak - a.peakLevel) * 0.1
	} else {
		a.peakLevel += (peak - a.peakLevel) * 0.01
	}

	desired := a.maxGain
	if a.peakLevel > 0.001 {
		desired = a.targetLevel / a.peakLevel
	}
	desired = max(a.minGain, min(a.maxGain, desired))

	n := float64(len(samples))
	if desired > a.currentGain {
		a.currentGain = min(desired, a.currentGain+a.attackRate*n)
	} else {
		a.currentGain = max(desired, a.currentGain-a.releaseRate*n)
	}

	gain := float32(a.currentGain)
	for i, s := range samples {
		samples[i] = clip(s * gain)
	}
}

// Name implements Effect.
func (a *AutoGainEffect) Name() string { return fmt.Sprintf("AutoGain(%.2f)", a.currentGain) }

// EffectChain applies effects in the order they were added.
type EffectChain struct {
	effects []Effect
}

// NewEffectChain creates a chain of effects.
func NewEffectChain(effects ...Effect) *EffectChain {
	return &EffectChain{effects: effects}
}

// Add appends e to the chain.
func (c *EffectChain) Add(e Effect) {
	c.effects = append(c.effects, e)
	logrus.WithFields(logrus.Fields{
		"function": "EffectChain.Add",
		"effect":   e.Name(),
		"count":    len(c.effects),
	}).Debug("Effect added")
}

// Len returns the number of effects.
func (c *EffectChain) Len() int { return len(c.effects) }

// Process runs every effect over samples.
func (c *EffectChain) Process(samples []float32) {
	for _, e := range c.effects {
		e.Process(samples)
	}
}

// Name implements Effect, so chains nest.
func (c *EffectChain) Name() string {
	names := make([]string, len(c.effects))
	for i, e := range c.effects {
		names[i] = e.Name()
	}
	return "Chain[" + strings.Join(names, ", ") + "]"
}

func clip(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}
