// Package energy provides an RMS-energy voice activity classifier.
//
// It is the simplest possible detector: a frame is speech when its RMS
// amplitude exceeds a fixed threshold. It has no model to load and is
// adequate for a quiet room with a headset microphone.
package energy

import (
	"fmt"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/vad"
)

// DefaultThreshold is the RMS level (in 16-bit sample units) above which a
// frame counts as speech. Roughly -36 dBFS.
const DefaultThreshold = 500.0

var _ vad.Classifier = (*Classifier)(nil)

// Option is a functional option for configuring a [Classifier].
type Option func(*Classifier)

// WithThreshold sets the RMS speech threshold.
func WithThreshold(t float64) Option {
	return func(c *Classifier) { c.threshold = t }
}

// WithNoiseFloor enables an adaptive noise floor: a frame counts as speech
// only when its energy exceeds both the fixed threshold and factor times the
// running average of recent silent frames.
func WithNoiseFloor(factor float64) Option {
	return func(c *Classifier) { c.floorFactor = factor }
}

// Classifier is an energy-threshold [vad.Classifier]. It is not safe for
// concurrent use when the adaptive noise floor is enabled.
type Classifier struct {
	threshold   float64
	floorFactor float64
	floor       float64
}

// New creates an energy classifier.
func New(opts ...Option) (*Classifier, error) {
	c := &Classifier{threshold: DefaultThreshold}
	for _, o := range opts {
		o(c)
	}
	if c.threshold <= 0 {
		return nil, fmt.Errorf("energy: threshold must be positive, got %v", c.threshold)
	}
	if c.floorFactor < 0 {
		return nil, fmt.Errorf("energy: noise floor factor must not be negative, got %v", c.floorFactor)
	}
	return c, nil
}

// Threshold returns the configured fixed threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Classify implements [vad.Classifier].
func (c *Classifier) Classify(frame audio.Frame) vad.Activity {
	rms := audio.RMS(frame.Data)
	speech := rms > c.threshold
	if c.floorFactor > 0 {
		if c.floor > 0 && rms <= c.floor*c.floorFactor {
			speech = false
		}
		if !speech {
			// Exponential moving average over silent frames only.
			if c.floor == 0 {
				c.floor = rms
			} else {
				c.floor = 0.95*c.floor + 0.05*rms
			}
		}
	}
	if speech {
		return vad.Speech
	}
	return vad.Silence
}
