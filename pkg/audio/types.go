// Package audio defines the PCM value types that flow through the interview
// pipeline and the capture and playback seams around it.
//
// All audio is 16-bit signed little-endian PCM. A [Frame] is the fixed-size
// unit produced by a [FrameSource]; an [Utterance] is the contiguous run of
// frames the segmenter cuts out of that stream; a [Clip] is a free-standing
// buffer handed to speech-to-text or returned by speech synthesis.
package audio

import "time"

// bytesPerSample is fixed by the 16-bit PCM encoding used throughout.
const bytesPerSample = 2

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of the format. Zero for invalid formats.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * bytesPerSample
}

// FrameBytes returns the byte length of a frame of the given duration,
// rounded down to a whole number of sample frames.
func (f Format) FrameBytes(d time.Duration) int {
	align := f.Channels * bytesPerSample
	if align <= 0 {
		return 0
	}
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%align
}

// Duration returns the playback time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Frame is a single fixed-duration buffer of captured audio. Frames are
// immutable once produced; consumers must not modify Data.
type Frame struct {
	// Seq is the zero-based position of the frame in its source stream.
	Seq uint64

	// Data is the raw PCM payload.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format returns the frame's PCM format.
func (f Frame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Duration returns the playback time of the frame.
func (f Frame) Duration() time.Duration {
	return f.Format().Duration(len(f.Data))
}

// Clip is a standalone PCM buffer, such as utterance audio sent to a
// transcriber or synthesized speech returned by a TTS engine.
type Clip struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Format returns the clip's PCM format.
func (c Clip) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// Duration returns the playback time of the clip.
func (c Clip) Duration() time.Duration {
	return c.Format().Duration(len(c.Data))
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool { return len(c.Data) < bytesPerSample }

// Utterance is one contiguous detected speech segment bounded by silence.
// It owns Audio exclusively until handed to a transcriber.
type Utterance struct {
	// FirstSeq and LastSeq are the sequence numbers of the first and last
	// frames included in Audio.
	FirstSeq uint64
	LastSeq  uint64

	// Start is the capture timestamp of the first frame. End is the capture
	// timestamp of the last frame plus its duration.
	Start time.Duration
	End   time.Duration

	// Frames is the total number of frames concatenated into Audio, and
	// SpeechFrames the number of those classified as speech.
	Frames       int
	SpeechFrames int

	// Audio is the concatenated PCM of all included frames.
	Audio Clip
}

// Duration returns End - Start.
func (u Utterance) Duration() time.Duration { return u.End - u.Start }
