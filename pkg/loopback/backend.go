// Package loopback captures the audio the operating system is currently
// rendering. A Capturer owns at most one capture session at a time and hands
// frames from the native audio thread to the caller through a bounded,
// drop-oldest channel. Windows uses WASAPI shared-mode loopback, Linux
// records the monitor source of a PulseAudio (or PipeWire-pulse) sink.
package loopback

import (
	"time"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"go.uber.org/zap"
)

// FrameSink receives raw interleaved PCM from a backend. The slice is only
// valid for the duration of the call.
type FrameSink func(frame []byte)

// Backend is one native capture handle. A Capturer drives it strictly as
// Open, then ReadLoop on a dedicated goroutine, then Close. Close must be safe
// after a failed or partial Open and must release every acquired resource.
type Backend interface {
	// Open resolves deviceID ("" = default render endpoint) and negotiates
	// the native mix format. Failures are *OpenError.
	Open(deviceID string) (audio.Format, error)

	// ReadLoop blocks delivering frames to sink until Interrupt is called
	// (returns nil) or the stream fails (returns the cause).
	ReadLoop(sink FrameSink) error

	// Interrupt wakes ReadLoop. It is safe to call from any goroutine, more
	// than once, and before ReadLoop starts.
	Interrupt()

	Close() error
}

// Platform binds a backend factory to a directory. The zero value is not
// usable; see New for the host default.
type Platform struct {
	NewBackend func(logger *zap.Logger, opts Options) Backend
	Directory  Directory
}

// Options tunes the native stream. Zero values select defaults.
type Options struct {
	// ApplicationName is how the capture client is shown by the sound
	// server (PulseAudio).
	ApplicationName string

	// RingCapacity is the number of frames buffered between the native
	// thread and the consumer before the oldest one is dropped.
	RingCapacity int

	// BufferDuration is the WASAPI shared-mode buffer request.
	BufferDuration time.Duration

	// FragmentDuration is the PulseAudio fragment size and latency target.
	FragmentDuration time.Duration

	// WaitTimeout bounds one wait on the WASAPI readiness event.
	WaitTimeout time.Duration
}

const (
	DefaultApplicationName  = "go-loopback"
	DefaultRingCapacity     = 64
	DefaultBufferDuration   = 100 * time.Millisecond
	DefaultFragmentDuration = audio.DefaultFrameTime
	DefaultWaitTimeout      = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.ApplicationName == "" {
		o.ApplicationName = DefaultApplicationName
	}
	if o.RingCapacity <= 0 {
		o.RingCapacity = DefaultRingCapacity
	}
	if o.BufferDuration <= 0 {
		o.BufferDuration = DefaultBufferDuration
	}
	if o.FragmentDuration <= 0 {
		o.FragmentDuration = DefaultFragmentDuration
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	return o
}
