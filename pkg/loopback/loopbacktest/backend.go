// Package loopbacktest provides in-memory doubles for the loopback platform
// layer so capture sessions can be exercised without audio hardware.
package loopbacktest

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/Raikerian/go-loopback/pkg/loopback"
	"go.uber.org/zap"
)

// Handle kinds acquired by a FakeBackend during Open, in order.
const (
	HandleConnection = "connection"
	HandleDevice     = "device"
	HandleClient     = "client"
	HandleStream     = "stream"
)

// Stage selects the Open step at which a FakeBackend fails.
type Stage int

const (
	StageNone Stage = iota
	StageConnect
	StageResolve
	StageNegotiate
	StageStream
)

// Source produces frames for a FakeBackend's ReadLoop. It returns nil when
// stop closes, or an error to simulate a runtime fault.
type Source func(sink loopback.FrameSink, stop <-chan struct{}) error

// Factory creates FakeBackends and keeps them for inspection. Configure it
// before handing NewBackend to a Capturer.
type Factory struct {
	mu       sync.Mutex
	format   audio.Format
	devices  map[string]bool
	failAt   Stage
	closeErr error
	source   Source
	backends []*FakeBackend
}

// NewFactory returns a factory whose backends negotiate f and emit nothing
// until stopped.
func NewFactory(f audio.Format) *Factory {
	return &Factory{
		format:  f,
		devices: make(map[string]bool),
		source:  Idle,
	}
}

// AddDevice makes id resolvable by Open.
func (f *Factory) AddDevice(id string) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[id] = true
	return f
}

// SetFailAt makes subsequent Opens fail at stage.
func (f *Factory) SetFailAt(stage Stage) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt = stage
	return f
}

// SetCloseError makes Close report err after releasing everything.
func (f *Factory) SetCloseError(err error) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
	return f
}

// SetSource replaces what ReadLoop emits.
func (f *Factory) SetSource(s Source) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = s
	return f
}

// Platform wires the factory and dir into a loopback.Platform.
func (f *Factory) Platform(dir loopback.Directory) loopback.Platform {
	return loopback.Platform{NewBackend: f.NewBackend, Directory: dir}
}

func (f *Factory) NewBackend(_ *zap.Logger, _ loopback.Options) loopback.Backend {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := &FakeBackend{
		format:    f.format,
		devices:   maps.Clone(f.devices),
		failAt:    f.failAt,
		closeErr:  f.closeErr,
		source:    f.source,
		acquired:  make(map[string]int),
		released:  make(map[string]int),
		interrupt: make(chan struct{}),
	}
	f.backends = append(f.backends, b)
	return b
}

// Backends returns every backend created so far.
func (f *Factory) Backends() []*FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeBackend(nil), f.backends...)
}

// Opened counts successful Opens across all backends.
func (f *Factory) Opened() int {
	n := 0
	for _, b := range f.Backends() {
		if b.WasOpened() {
			n++
		}
	}
	return n
}

// Live counts backends that are open and not yet closed.
func (f *Factory) Live() int {
	n := 0
	for _, b := range f.Backends() {
		if b.IsOpen() {
			n++
		}
	}
	return n
}

// Balanced reports whether every handle acquired by every backend has been
// released, returning the first imbalance otherwise.
func (f *Factory) Balanced() error {
	for i, b := range f.Backends() {
		for kind, n := range b.Acquired() {
			if r := b.Released()[kind]; r != n {
				return fmt.Errorf("backend %d: %s acquired %d released %d", i, kind, n, r)
			}
		}
	}
	return nil
}

// FakeBackend is a loopback.Backend that records every handle it acquires
// and releases.
type FakeBackend struct {
	mu       sync.Mutex
	format   audio.Format
	devices  map[string]bool
	failAt   Stage
	closeErr error
	source   Source

	held      []string
	acquired  map[string]int
	released  map[string]int
	open      bool
	opened    bool
	closed    int
	readLoops int

	interrupt     chan struct{}
	interruptOnce sync.Once
}

var errInjected = errors.New("injected failure")

func (b *FakeBackend) Open(deviceID string) (audio.Format, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.acquire(HandleConnection)
	if b.failAt == StageConnect {
		return audio.Format{}, &loopback.OpenError{Kind: loopback.ConnectionFailed, Op: "connect", Err: errInjected}
	}

	if deviceID != "" && !b.devices[deviceID] {
		return audio.Format{}, &loopback.OpenError{
			Kind: loopback.StreamConnectFailed,
			Op:   "resolve endpoint",
			Err:  fmt.Errorf("%w: %q", loopback.ErrDeviceNotFound, deviceID),
		}
	}
	if b.failAt == StageResolve {
		return audio.Format{}, &loopback.OpenError{Kind: loopback.StreamConnectFailed, Op: "resolve endpoint", Err: errInjected}
	}
	b.acquire(HandleDevice)

	if b.failAt == StageNegotiate {
		return audio.Format{}, &loopback.OpenError{Kind: loopback.FormatNegotiationFailed, Op: "negotiate", Err: errInjected}
	}
	b.acquire(HandleClient)

	if b.failAt == StageStream {
		return audio.Format{}, &loopback.OpenError{Kind: loopback.StreamConnectFailed, Op: "start stream", Err: errInjected}
	}
	b.acquire(HandleStream)

	b.open = true
	b.opened = true
	return b.format, nil
}

func (b *FakeBackend) acquire(kind string) {
	b.held = append(b.held, kind)
	b.acquired[kind]++
}

func (b *FakeBackend) ReadLoop(sink loopback.FrameSink) error {
	b.mu.Lock()
	b.readLoops++
	src := b.source
	b.mu.Unlock()

	if src == nil {
		src = Idle
	}
	return src(sink, b.interrupt)
}

func (b *FakeBackend) Interrupt() {
	b.interruptOnce.Do(func() { close(b.interrupt) })
}

func (b *FakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.held) - 1; i >= 0; i-- {
		b.released[b.held[i]]++
	}
	b.held = b.held[:0]
	b.open = false
	b.closed++
	return b.closeErr
}

// IsOpen reports whether Open succeeded and Close has not run yet.
func (b *FakeBackend) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// WasOpened reports whether Open ever succeeded.
func (b *FakeBackend) WasOpened() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

// Closed is the number of Close calls.
func (b *FakeBackend) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// ReadLoops is the number of ReadLoop calls.
func (b *FakeBackend) ReadLoops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLoops
}

func (b *FakeBackend) Acquired() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.acquired)
}

func (b *FakeBackend) Released() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.released)
}
