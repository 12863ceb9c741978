package loopback

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	ErrAlreadyCapturing = NewCaptureError("capture session already active")
	ErrClosed           = NewCaptureError("capturer is closed")
	ErrDeviceNotFound   = NewCaptureError("device not found")

	ErrConnectionFailed         = NewCaptureError("audio service connection failed")
	ErrFormatNegotiationFailed  = NewCaptureError("format negotiation failed")
	ErrStreamConnectFailed      = NewCaptureError("stream connect failed")
	errUnsupportedNativeFormat  = errors.New("unsupported native mix format")
	errUnsupportedPlatformAudio = errors.New("loopback capture is not supported on this platform")
)

// CaptureError represents errors specific to loopback capture
type CaptureError struct {
	message string
}

func NewCaptureError(message string) *CaptureError {
	return &CaptureError{message: message}
}

func (e *CaptureError) Error() string {
	return e.message
}

// OpenErrorKind classifies why a backend could not be opened.
type OpenErrorKind int

const (
	ConnectionFailed OpenErrorKind = iota + 1
	FormatNegotiationFailed
	StreamConnectFailed
)

func (k OpenErrorKind) String() string {
	switch k {
	case ConnectionFailed:
		return "connection failed"
	case FormatNegotiationFailed:
		return "format negotiation failed"
	case StreamConnectFailed:
		return "stream connect failed"
	default:
		return fmt.Sprintf("OpenErrorKind(%d)", int(k))
	}
}

func (k OpenErrorKind) sentinel() error {
	switch k {
	case ConnectionFailed:
		return ErrConnectionFailed
	case FormatNegotiationFailed:
		return ErrFormatNegotiationFailed
	case StreamConnectFailed:
		return ErrStreamConnectFailed
	default:
		return nil
	}
}

// OpenError is returned by Start when the backend fails to open. The session
// is back in Idle by the time the caller sees it, so Start may be retried.
type OpenError struct {
	Kind OpenErrorKind
	Op   string // native step that failed, e.g. "IAudioClient.Initialize"
	Err  error
}

func newOpenError(kind OpenErrorKind, op string, err error) *OpenError {
	return &OpenError{Kind: kind, Op: op, Err: err}
}

func (e *OpenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("open loopback: %s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("open loopback: %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is lets callers match on the kind with errors.Is(err, ErrStreamConnectFailed).
func (e *OpenError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// EnumerationError is returned by a Directory when the OS refuses to list
// endpoints. The Capturer logs it and reports an empty result.
type EnumerationError struct {
	Op  string
	Err error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate devices: %s: %v", e.Op, e.Err)
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// RuntimeCaptureError reports an unrecoverable backend fault after capture
// began, such as the endpoint being unplugged. It is delivered through
// Callbacks.OnError after every frame that preceded it.
type RuntimeCaptureError struct {
	Err error
}

func (e *RuntimeCaptureError) Error() string {
	return fmt.Sprintf("loopback capture stopped: %v", e.Err)
}

func (e *RuntimeCaptureError) Unwrap() error {
	return e.Err
}
