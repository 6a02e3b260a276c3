// Package audio holds the small amount of PCM handling the assistant needs:
// wrapping raw samples in a WAV container and measuring input level.
package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Recorder output format. The recognition source asks the recorder command
// for exactly this.
const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
)

// SilenceDB is the level reported for an empty or all-zero buffer.
const SilenceDB = -100.0

// WAV wraps raw little-endian PCM data in a 44-byte RIFF/WAVE header.
func WAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	dataLen := len(pcm)

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}

// RMSdB returns the root-mean-square level of 16-bit little-endian samples
// in dBFS: 0 for a full-scale square wave, SilenceDB for silence. A trailing
// odd byte is ignored.
func RMSdB(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return SilenceDB
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	if rms == 0 {
		return SilenceDB
	}
	return math.Max(20*math.Log10(rms), SilenceDB)
}

// Level maps a dBFS value onto [0, 1] for a level meter, treating floor and
// below as silent.
func Level(db, floor float64) float64 {
	if db <= floor {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return (db - floor) / -floor
}
