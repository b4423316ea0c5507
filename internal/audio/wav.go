// Package audio holds helpers for the RIFF/WAVE container produced by the engines.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the canonical 44-byte WAV header.
const HeaderSize = 44

// ErrNotWAV is returned for buffers that are not RIFF/WAVE containers.
var ErrNotWAV = errors.New("not a RIFF/WAVE container")

// Header describes the format of a WAV buffer.
type Header struct {
	// DataOffset is the byte offset of the first PCM sample.
	DataOffset    int
	DataSize      int
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// ParseHeader walks the RIFF chunks of wav up to the data chunk.
func ParseHeader(wav []byte) (Header, error) {
	if len(wav) < 12 {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrNotWAV, len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Header{}, ErrNotWAV
	}

	var h Header
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch id {
		case "fmt ":
			if size >= 16 && offset+8+16 <= len(wav) {
				f := wav[offset+8:]
				h.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
				h.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
				h.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			}
		case "data":
			h.DataOffset = offset + 8
			h.DataSize = min(size, len(wav)-h.DataOffset)
			return h, nil
		}

		// Chunks are word aligned.
		offset += 8 + size + size%2
	}

	return Header{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}

// Payload returns the PCM samples of a WAV chunk. Buffers that do not parse
// as RIFF/WAVE lose a fixed HeaderSize bytes instead; shorter ones yield nothing.
func Payload(wav []byte) []byte {
	if h, err := ParseHeader(wav); err == nil {
		return wav[h.DataOffset:]
	}
	if len(wav) < HeaderSize {
		return nil
	}
	return wav[HeaderSize:]
}

// Encode wraps 16-bit PCM samples in a canonical 44-byte header.
func Encode(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8

	b := make([]byte, HeaderSize, HeaderSize+len(pcm))
	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], uint32(36+len(pcm)))
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 16)
	binary.LittleEndian.PutUint16(b[20:22], 1)
	binary.LittleEndian.PutUint16(b[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(b[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(b[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(b[34:36], bitsPerSample)
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], uint32(len(pcm)))
	return append(b, pcm...)
}
