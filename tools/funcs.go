package tools

import (
	"encoding/binary"
	"time"
)

func FrameSamples(duration time.Duration, rate, channels int) int {
	return int(duration.Seconds() * float64(channels) * float64(rate))
}

// FrameBytes is FrameSamples scaled for 16-bit PCM.
func FrameBytes(duration time.Duration, rate, channels int) int {
	return FrameSamples(duration, rate, channels) * 2
}

// PCM16ToFloat64 decodes little-endian signed 16-bit PCM into samples
// normalized to [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat64(p []byte) []float64 {
	n := len(p) / 2
	out := make([]float64, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(p[i*2:]))
		out[i] = float64(s) / 32768.0
	}
	return out
}
