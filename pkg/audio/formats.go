// Package audio describes negotiated PCM stream formats and the small
// sample-level helpers shared by the capture backends and their consumers.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// Defaults used when a backend is free to pick the layout itself.
const (
	DefaultSampleRate = 48_000 // Hz
	DefaultChannels   = 2      // interleaved stereo
	DefaultFrameTime  = 20 * time.Millisecond
)

// Encoding is the sample representation inside a PCM buffer.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingFloat32          // IEEE 754 little-endian, [-1, 1]
	EncodingInt16            // signed little-endian
)

func (e Encoding) String() string {
	switch e {
	case EncodingFloat32:
		return "float32"
	case EncodingInt16:
		return "int16"
	default:
		return "unknown"
	}
}

// BitsPerSample returns the container width implied by the encoding.
func (e Encoding) BitsPerSample() uint16 {
	switch e {
	case EncodingFloat32:
		return 32
	case EncodingInt16:
		return 16
	default:
		return 0
	}
}

// Format describes a negotiated stream. It is a value type: once a backend
// reports it, callers only ever get copies.
type Format struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	Encoding      Encoding
}

var (
	errZeroSampleRate = errors.New("sample rate must be positive")
	errZeroChannels   = errors.New("channel count must be positive")
	errBadEncoding    = errors.New("unsupported sample encoding")
)

// NewFormat builds a Format whose bit depth follows from the encoding.
func NewFormat(sampleRate uint32, channels uint16, enc Encoding) Format {
	return Format{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: enc.BitsPerSample(),
		Encoding:      enc,
	}
}

// Validate reports whether the format is internally consistent.
func (f Format) Validate() error {
	if f.SampleRate == 0 {
		return errZeroSampleRate
	}
	if f.Channels == 0 {
		return errZeroChannels
	}
	if f.Encoding == EncodingUnknown || f.BitsPerSample != f.Encoding.BitsPerSample() {
		return fmt.Errorf("%w: %s at %d bits", errBadEncoding, f.Encoding, f.BitsPerSample)
	}
	return nil
}

// BytesPerSample is the size of one sample of one channel.
func (f Format) BytesPerSample() int {
	return int(f.BitsPerSample) / 8
}

// BlockAlign is the size of one sample frame across all channels. Every
// buffer delivered for this format is a multiple of it.
func (f Format) BlockAlign() int {
	return int(f.Channels) * f.BytesPerSample()
}

// BytesPerSecond is the data rate of the stream.
func (f Format) BytesPerSecond() int {
	return int(f.SampleRate) * f.BlockAlign()
}

// BytesFor returns the number of bytes d worth of audio occupies, rounded
// down to a whole sample frame.
func (f Format) BytesFor(d time.Duration) int {
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return int(frames) * f.BlockAlign()
}

// Duration converts a byte count back into playback time.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

func (f Format) String() string {
	kind := "int"
	if f.Encoding == EncodingFloat32 {
		kind = "float"
	}
	return fmt.Sprintf("%d Hz, %d ch, %d-bit %s", f.SampleRate, f.Channels, f.BitsPerSample, kind)
}
