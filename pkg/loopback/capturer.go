package loopback

import (
	"errors"
	"sync"
	"time"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"go.uber.org/zap"
)

// Capturer is the control surface for one loopback stream. Create one per
// stream; there is no shared global capture state.
type Capturer struct {
	logger   *zap.Logger
	opts     Options
	platform Platform

	mu        sync.Mutex
	state     State
	sess      *session
	format    audio.Format
	hasFormat bool
	last      Stats
	closed    bool
}

// New returns a Capturer backed by the host's native audio stack.
func New(logger *zap.Logger, opts Options) *Capturer {
	return NewWithPlatform(logger, opts, hostPlatform(opts.withDefaults()))
}

// NewWithPlatform returns a Capturer using the given backend factory and
// device directory.
func NewWithPlatform(logger *zap.Logger, opts Options, p Platform) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		logger:   logger.Named("capture"),
		opts:     opts.withDefaults(),
		platform: p,
	}
}

// Start opens deviceID ("" selects the default render endpoint) and begins
// delivering frames to cb. It returns ErrAlreadyCapturing if a session is
// active and an *OpenError if the backend cannot be opened.
func (c *Capturer) Start(deviceID string, cb Callbacks) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return ErrAlreadyCapturing
	}

	c.state = StateOpening
	backend := c.platform.NewBackend(c.logger, c.opts)
	format, err := backend.Open(deviceID)
	if err == nil {
		if verr := format.Validate(); verr != nil {
			err = newOpenError(FormatNegotiationFailed, "validate format", verr)
		}
	}
	if err != nil {
		if cerr := backend.Close(); cerr != nil {
			c.logger.Warn("Failed to release backend after open failure", zap.Error(cerr))
		}
		c.state = StateIdle

		var oe *OpenError
		if !errors.As(err, &oe) {
			err = newOpenError(ConnectionFailed, "open", err)
		}
		c.logger.Warn("Failed to open loopback device",
			zap.String("device_id", deviceID),
			zap.Error(err))
		return err
	}

	sess := newSession(c.logger, backend, format, c.opts.RingCapacity, cb)
	c.sess = sess
	c.format = format
	c.hasFormat = true
	c.last = Stats{}
	c.state = StateCapturing

	go sess.capture()
	go sess.deliver(func() bool { return c.fault(sess) })

	c.logger.Info("Loopback capture started",
		zap.String("device_id", deviceID),
		zap.Stringer("format", format))
	return nil
}

// Stop ends the active session. It is a no-op when idle and may be called
// from inside a callback. When it returns the native stream is closed and no
// further callback will start. A callback that is already running when Stop
// is called is not waited for: it may still be executing after Stop returns,
// so a callback that hands data elsewhere must not assume the session is
// still open.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil {
		c.mu.Unlock()
		return nil
	}
	err := c.teardownLocked(sess)
	c.mu.Unlock()

	c.awaitDelivery(sess)
	return err
}

// Close disposes the Capturer, completing the Stopping sequence if a session
// is active. Start fails with ErrClosed afterwards.
func (c *Capturer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.sess
	var err error
	if sess != nil {
		err = c.teardownLocked(sess)
	}
	c.mu.Unlock()

	if sess != nil {
		c.awaitDelivery(sess)
	}
	return err
}

// fault tears the session down after the backend reported a runtime error.
// It runs on the delivery goroutine.
func (c *Capturer) fault(sess *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != sess {
		return false
	}
	if err := c.teardownLocked(sess); err != nil {
		c.logger.Warn("Failed to release backend after runtime error", zap.Error(err))
	}
	return true
}

func (c *Capturer) teardownLocked(sess *session) error {
	c.state = StateStopping
	err := sess.shutdown()

	c.last = sess.stats()
	c.sess = nil
	c.state = StateIdle

	c.logger.Info("Loopback capture stopped",
		zap.Uint64("frames", c.last.Frames),
		zap.Uint64("bytes", c.last.Bytes),
		zap.Uint64("dropped", c.last.Dropped),
		zap.Duration("duration", time.Since(sess.started)))
	return err
}

// awaitDelivery joins the delivery goroutine unless it is inside a callback,
// which may be the caller itself.
func (c *Capturer) awaitDelivery(sess *session) {
	if sess.inHandler.Load() {
		return
	}
	<-sess.deliveryDone
}

// Format returns the most recently negotiated format. ok is false until a
// backend has been opened successfully.
func (c *Capturer) Format() (audio.Format, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format, c.hasFormat
}

// State reports Idle or Capturing; the transient states are only visible
// while a Start or Stop call is in progress.
func (c *Capturer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats reports delivery counters for the active session, or the last one.
func (c *Capturer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return c.sess.stats()
	}
	return c.last
}

// Devices lists render endpoints. Enumeration failures are logged and
// reported as an empty list.
func (c *Capturer) Devices() []Device {
	devices, err := c.platform.Directory.Devices()
	if err != nil {
		c.logger.Warn("Failed to enumerate render devices", zap.Error(err))
		return []Device{}
	}
	if devices == nil {
		devices = []Device{}
	}
	return devices
}

// DefaultDevice returns the OS default render endpoint, if any.
func (c *Capturer) DefaultDevice() (Device, bool) {
	d, err := c.platform.Directory.DefaultDevice()
	if err != nil {
		if !errors.Is(err, ErrDeviceNotFound) {
			c.logger.Warn("Failed to look up default render device", zap.Error(err))
		}
		return Device{}, false
	}
	return d, true
}
