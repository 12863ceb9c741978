package audio

import (
	"encoding/binary"
	"math"
)

// RMS returns the root-mean-square level of an interleaved buffer in the
// normalized range [0, 1]. All channels contribute equally.
func RMS(buf []byte, f Format) float32 {
	switch f.Encoding {
	case EncodingFloat32:
		return rmsFloat32(buf)
	case EncodingInt16:
		return rmsInt16(buf)
	default:
		return 0
	}
}

func rmsInt16(audio []byte) float32 {
	sampleCount := len(audio) / 2
	if sampleCount == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(audio); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(audio[i:]))
		v := float64(sample) / 32768.0
		sum += v * v
	}

	return float32(math.Sqrt(sum / float64(sampleCount)))
}

func rmsFloat32(audio []byte) float32 {
	sampleCount := len(audio) / 4
	if sampleCount == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+3 < len(audio); i += 4 {
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(audio[i:])))
		sum += v * v
	}

	return float32(math.Sqrt(sum / float64(sampleCount)))
}
