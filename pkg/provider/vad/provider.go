// Package vad defines the Classifier interface for voice activity detection.
//
// A classifier labels a single fixed-size audio frame as speech or silence.
// Classification is synchronous and must not block: it runs inline in the
// segmentation loop for every captured frame. Turning the per-frame labels
// into utterances (onset, hangover, minimum length) is the segmenter's job,
// not the classifier's.
package vad

import "github.com/vzynszice/voice-interview-system/pkg/audio"

// Activity is the classification of one audio frame.
type Activity int

const (
	// Silence means no speech was detected in the frame.
	Silence Activity = iota

	// Speech means the frame contains voice activity.
	Speech
)

// String implements [fmt.Stringer].
func (a Activity) String() string {
	switch a {
	case Silence:
		return "silence"
	case Speech:
		return "speech"
	default:
		return "unknown"
	}
}

// Classifier labels frames as speech or silence.
//
// Implementations may keep per-stream state (smoothing, adaptive noise
// floors) and are therefore not required to be safe for concurrent use. One
// classifier serves one audio stream.
type Classifier interface {
	Classify(frame audio.Frame) Activity
}

// ClassifierFunc adapts a plain function to [Classifier].
type ClassifierFunc func(frame audio.Frame) Activity

// Classify implements [Classifier].
func (f ClassifierFunc) Classify(frame audio.Frame) Activity { return f(frame) }
