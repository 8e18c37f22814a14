package audio

import (
	"encoding/binary"
	"math"
)

// PCM16ToFloat32 decodes little-endian signed 16-bit samples into [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float32(v) / 32768
	}
	return samples
}

// Float32ToPCM16 encodes samples into out as little-endian signed 16-bit PCM
// and returns the number of bytes written. Values are clipped to [-1, 1].
func Float32ToPCM16(samples []float32, out []byte) int {
	n := min(len(samples), len(out)/2)
	for i := 0; i < n; i++ {
		s := float64(samples[i])
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Max(math.Min(math.Round(s*32768), math.MaxInt16), math.MinInt16))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return 2 * n
}

// Int16ToPCM16 encodes samples as little-endian bytes.
func Int16ToPCM16(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}
