package loopback

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"go.uber.org/zap"
)

// State is the externally visible session state.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateCapturing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Callbacks receive the output of one capture session. Both run on a
// delivery goroutine owned by the Capturer, never on the native audio thread.
type Callbacks struct {
	// OnFrames gets each captured buffer in capture order. The buffer is
	// reused after the call returns; copy it to keep it.
	OnFrames func(buf []byte)

	// OnError gets at most one *RuntimeCaptureError per session, after the
	// last frame. The session is already Idle when it runs.
	OnError func(err error)
}

// Stats summarizes delivery for the current or most recent session.
type Stats struct {
	Frames  uint64
	Bytes   uint64
	Dropped uint64
}

var errStreamEnded = errors.New("native stream ended unexpectedly")

// session is one Opening→Capturing→Stopping cycle. It owns the backend and
// the ring; nothing else touches them.
type session struct {
	logger  *zap.Logger
	backend Backend
	format  audio.Format
	ring    *frameRing
	cb      Callbacks
	started time.Time

	stopped   atomic.Bool
	inHandler atomic.Bool
	frames    atomic.Uint64
	bytes     atomic.Uint64

	captureDone  chan struct{}
	deliveryDone chan struct{}
}

func newSession(logger *zap.Logger, backend Backend, format audio.Format, capacity int, cb Callbacks) *session {
	return &session{
		logger:       logger,
		backend:      backend,
		format:       format,
		ring:         newFrameRing(capacity),
		cb:           cb,
		started:      time.Now(),
		captureDone:  make(chan struct{}),
		deliveryDone: make(chan struct{}),
	}
}

// capture runs the backend read loop. This goroutine is the only producer
// for the ring.
func (s *session) capture() {
	defer close(s.captureDone)

	err := s.backend.ReadLoop(s.ring.push)
	if s.stopped.Load() {
		return
	}
	if err == nil {
		err = errStreamEnded
	}
	s.logger.Warn("Capture stream failed", zap.Error(err))
	s.ring.pushErr(&RuntimeCaptureError{Err: err})
}

// deliver drains the ring in FIFO order until the session stops. onFault is
// called with the runtime error before it is handed to OnError; it returns
// false if the session was already stopped by someone else.
func (s *session) deliver(onFault func() bool) {
	defer close(s.deliveryDone)

	var spare []byte
	for {
		item, ok := s.ring.pop(spare)
		if !ok {
			if s.ring.isClosed() {
				return
			}
			<-s.ring.ready
			continue
		}
		if s.stopped.Load() {
			return
		}

		if item.err != nil {
			if onFault() && s.cb.OnError != nil {
				s.invoke(func() { s.cb.OnError(item.err) })
			}
			return
		}

		s.frames.Add(1)
		s.bytes.Add(uint64(len(item.buf)))
		if s.cb.OnFrames != nil {
			s.invoke(func() { s.cb.OnFrames(item.buf) })
		}
		spare = item.buf
	}
}

func (s *session) invoke(fn func()) {
	s.inHandler.Store(true)
	defer s.inHandler.Store(false)
	fn()
}

// shutdown is the Stopping sequence: signal the backend, join the capture
// goroutine, retire the ring, then release the backend. The delivery
// goroutine is not joined here.
func (s *session) shutdown() error {
	s.stopped.Store(true)
	s.backend.Interrupt()
	<-s.captureDone
	s.ring.close()
	return s.backend.Close()
}

func (s *session) stats() Stats {
	return Stats{
		Frames:  s.frames.Load(),
		Bytes:   s.bytes.Load(),
		Dropped: s.ring.droppedCount(),
	}
}
