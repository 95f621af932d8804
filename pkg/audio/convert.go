package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
)

// Convert returns c in the target format. Resampling happens before channel
// conversion so that stereo input bound for mono output is only resampled
// once. Only mono and stereo are supported; other channel counts are returned
// unchanged with a warning.
func Convert(c Clip, target Format) Clip {
	if c.Format() == target || c.Empty() {
		return Clip{Data: c.Data, SampleRate: target.SampleRate, Channels: target.Channels}
	}
	if c.Channels > 2 || target.Channels > 2 {
		slog.Warn("audio: unsupported channel layout, skipping conversion",
			"from", formatString(c.SampleRate, c.Channels),
			"to", formatString(target.SampleRate, target.Channels),
		)
		return c
	}

	pcm := c.Data
	if c.SampleRate != target.SampleRate {
		pcm = resample(pcm, c.Channels, c.SampleRate, target.SampleRate)
	}
	switch {
	case c.Channels == 1 && target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case c.Channels == 2 && target.Channels == 1:
		pcm = StereoToMono(pcm)
	}
	return Clip{Data: pcm, SampleRate: target.SampleRate, Channels: target.Channels}
}

// MonoToStereo duplicates every mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / bytesPerSample
	out := make([]byte, n*2*bytesPerSample)
	for i := range n {
		s := pcm[i*2 : i*2+2]
		copy(out[i*4:], s)
		copy(out[i*4+2:], s)
	}
	return out
}

// StereoToMono averages each L+R pair into one sample.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / (2 * bytesPerSample)
	out := make([]byte, n*bytesPerSample)
	for i := range n {
		l := int32(sampleAt(pcm, 2*i))
		r := int32(sampleAt(pcm, 2*i+1))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM with linear interpolation.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 1, srcRate, dstRate)
}

// resample converts interleaved 16-bit PCM with the given channel count from
// srcRate to dstRate using per-channel linear interpolation.
func resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return pcm
	}
	srcFrames := len(pcm) / (channels * bytesPerSample)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstFrames*channels*bytesPerSample)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			v := math.Round(s0 + (s1-s0)*frac)
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(int16(v)))
		}
	}
	return out
}

// sampleAt returns the i-th 16-bit sample of pcm.
func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
}

// RMS returns the root-mean-square energy of 16-bit PCM in sample units
// (0 to 32767). Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(sampleAt(pcm, i))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// formatString renders a format for log output, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
