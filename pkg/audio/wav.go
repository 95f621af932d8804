package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavHeaderSize is the size of the canonical 44-byte PCM WAV header written
// by [EncodeWAV].
const wavHeaderSize = 44

// ErrInvalidWAV is returned by [DecodeWAV] when the input is not a 16-bit PCM
// RIFF/WAVE container.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// EncodeWAV wraps the clip's PCM in a canonical RIFF/WAVE container.
func EncodeWAV(c Clip) []byte {
	channels := max(c.Channels, 1)
	byteRate := c.SampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample
	dataSize := len(c.Data)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 8*bytesPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[wavHeaderSize:], c.Data)

	return buf
}

// DecodeWAV walks the RIFF chunks of wav and returns the PCM payload with its
// format. The fmt chunk may be larger than 16 bytes and may be followed by
// arbitrary chunks (LIST, fact) before data, as produced by most TTS servers.
//
// The returned clip aliases wav; copy it if the input buffer is reused.
func DecodeWAV(wav []byte) (Clip, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		clip     Clip
		foundFmt bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return Clip{}, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidWAV)
			}
			fmtData := wav[body:]
			if tag := binary.LittleEndian.Uint16(fmtData[0:2]); tag != 1 && tag != 0xFFFE {
				return Clip{}, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, tag)
			}
			if bits := binary.LittleEndian.Uint16(fmtData[14:16]); bits != 8*bytesPerSample {
				return Clip{}, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bits)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return Clip{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			end := min(body+size, len(wav))
			clip.Data = wav[body:end]
			return clip, nil
		}

		// Chunks are word-aligned.
		offset = body + size + size%2
	}
	return Clip{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}
