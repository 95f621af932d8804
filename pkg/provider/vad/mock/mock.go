// Package mock provides a scripted test double for [vad.Classifier].
//
// Example:
//
//	c := mock.NewClassifier(vad.Speech, vad.Speech, vad.Silence)
//	c.Classify(frame) // vad.Speech
package mock

import (
	"sync"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/vad"
)

var _ vad.Classifier = (*Classifier)(nil)

// Classifier returns activities from a script in order. Once the script is
// exhausted it returns Default.
type Classifier struct {
	mu     sync.Mutex
	script []vad.Activity
	pos    int

	// Default is returned after the script runs out.
	Default vad.Activity

	// Frames records every frame passed to Classify, in order.
	Frames []audio.Frame
}

// NewClassifier returns a Classifier that replays script.
func NewClassifier(script ...vad.Activity) *Classifier {
	return &Classifier{script: script}
}

// Classify implements [vad.Classifier].
func (c *Classifier) Classify(frame audio.Frame) vad.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Frames = append(c.Frames, frame)
	if c.pos < len(c.script) {
		a := c.script[c.pos]
		c.pos++
		return a
	}
	return c.Default
}

// CallCount returns the number of Classify calls.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Frames)
}
