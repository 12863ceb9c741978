package loopbacktest

import (
	"math"
	"time"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/Raikerian/go-loopback/pkg/loopback"
)

// Idle emits nothing and returns when stopped.
func Idle(_ loopback.FrameSink, stop <-chan struct{}) error {
	<-stop
	return nil
}

// Frames emits each frame in order, as fast as possible, then idles.
func Frames(frames ...[]byte) Source {
	return func(sink loopback.FrameSink, stop <-chan struct{}) error {
		for _, f := range frames {
			sink(f)
		}
		<-stop
		return nil
	}
}

// Silence emits one all-zero packet of n sample frames, the way a backend
// reports a packet flagged silent by the OS.
func Silence(f audio.Format, n int) []byte {
	return make([]byte, n*f.BlockAlign())
}

// FramesThenFail emits frames and then fails with err, as if the device was
// removed mid-stream.
func FramesThenFail(err error, frames ...[]byte) Source {
	return func(sink loopback.FrameSink, _ <-chan struct{}) error {
		for _, f := range frames {
			sink(f)
		}
		return err
	}
}

// Gated waits for release to close before emitting frames, so a test can
// hold the producer back until the consumer is in a known state.
func Gated(release <-chan struct{}, next Source) Source {
	return func(sink loopback.FrameSink, stop <-chan struct{}) error {
		select {
		case <-release:
		case <-stop:
			return nil
		}
		return next(sink, stop)
	}
}

// Sine emits a sine tone in real time until stopped. On every period tick
// it emits all frames that have come due since the source started, so the
// delivered byte count tracks wall-clock time even if ticks are late.
func Sine(f audio.Format, freq float64, period time.Duration) Source {
	return func(sink loopback.FrameSink, stop <-chan struct{}) error {
		channels := int(f.Channels)
		start := time.Now()
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		var (
			emitted int64
			buf     []byte
			samples []float32
		)
		for {
			select {
			case <-stop:
				return nil
			case now := <-ticker.C:
				due := int64(now.Sub(start)) * int64(f.SampleRate) / int64(time.Second)
				n := int(due - emitted)
				if n <= 0 {
					continue
				}

				samples = samples[:0]
				for i := 0; i < n; i++ {
					t := float64(emitted+int64(i)) / float64(f.SampleRate)
					v := float32(0.5 * math.Sin(2*math.Pi*freq*t))
					for c := 0; c < channels; c++ {
						samples = append(samples, v)
					}
				}
				emitted = due

				if size := n * f.BlockAlign(); cap(buf) < size {
					buf = make([]byte, size)
				}
				buf = buf[:n*f.BlockAlign()]
				encode(buf, samples, f.Encoding)
				sink(buf)
			}
		}
	}
}

func encode(dst []byte, samples []float32, enc audio.Encoding) {
	switch enc {
	case audio.EncodingInt16:
		ints := make([]int16, len(samples))
		for i, s := range samples {
			ints[i] = int16(s * math.MaxInt16)
		}
		copy(dst, audio.PCMInt16ToLE(ints))
	default:
		copy(dst, audio.Float32ToLE(samples))
	}
}
