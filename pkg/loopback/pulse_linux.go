//go:build linux

package loopback

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

const (
	monitorSuffix  = ".monitor"
	watchdogPeriod = 50 * time.Millisecond
)

// pulseBackend records the monitor source of a sink over the PulseAudio
// native protocol. The client's own read goroutine is the native audio
// thread: it calls the stream writer, which regroups bytes into whole
// frames and pushes them to the sink.
type pulseBackend struct {
	logger *zap.Logger
	opts   Options

	client    *pulse.Client
	stream    *pulse.RecordStream
	writer    *pulseWriter
	resources releaser

	interrupt     chan struct{}
	interruptOnce sync.Once
}

func newPulseBackend(logger *zap.Logger, opts Options) Backend {
	return &pulseBackend{
		logger:    logger.Named("pulse"),
		opts:      opts,
		interrupt: make(chan struct{}),
	}
}

func (b *pulseBackend) Open(deviceID string) (audio.Format, error) {
	r := &b.resources

	client, err := pulse.NewClient(pulse.ClientApplicationName(b.opts.ApplicationName))
	if err != nil {
		return audio.Format{}, newOpenError(ConnectionFailed, "connect", err)
	}
	r.pushFunc("client", client.Close)
	b.client = client

	target, err := resolveRecordTarget(client, deviceID)
	if err != nil {
		return audio.Format{}, newOpenError(StreamConnectFailed, "resolve source", err)
	}

	format := audio.NewFormat(audio.DefaultSampleRate, audio.DefaultChannels, audio.EncodingFloat32)
	b.writer = newPulseWriter(format)

	stream, err := client.NewRecord(b.writer,
		target,
		pulse.RecordSampleRate(int(format.SampleRate)),
		pulse.RecordStereo,
		pulse.RecordLatency(b.opts.FragmentDuration.Seconds()),
	)
	if err != nil {
		return audio.Format{}, newOpenError(StreamConnectFailed, "create record stream", err)
	}
	r.pushFunc("record stream", stream.Close)
	b.stream = stream

	b.logger.Info("PulseAudio monitor opened",
		zap.String("device_id", deviceID),
		zap.Stringer("format", format),
		zap.Duration("fragment", b.opts.FragmentDuration))
	return format, nil
}

// resolveRecordTarget maps a device id to a record option. "" selects the
// default sink's monitor. A source id (usually "<sink>.monitor") is
// recorded directly; a sink id is recorded through its monitor.
func resolveRecordTarget(client *pulse.Client, deviceID string) (pulse.RecordOption, error) {
	if deviceID == "" {
		sink, err := client.DefaultSink()
		if err != nil {
			return nil, fmt.Errorf("default sink: %w", err)
		}
		return pulse.RecordMonitor(sink), nil
	}

	if source, err := client.SourceByID(deviceID); err == nil {
		return pulse.RecordSource(source), nil
	}
	if sink, err := client.SinkByID(strings.TrimSuffix(deviceID, monitorSuffix)); err == nil {
		return pulse.RecordMonitor(sink), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
}

func (b *pulseBackend) ReadLoop(sink FrameSink) error {
	b.writer.setSink(sink)
	defer b.writer.setSink(nil)

	b.stream.Start()

	ticker := time.NewTicker(watchdogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-b.interrupt:
			return nil
		case <-ticker.C:
			if !b.stream.Closed() {
				continue
			}
			if err := b.stream.Error(); err != nil {
				return fmt.Errorf("record stream closed: %w", err)
			}
			return errStreamEnded
		}
	}
}

func (b *pulseBackend) Interrupt() {
	b.interruptOnce.Do(func() { close(b.interrupt) })
}

func (b *pulseBackend) Close() error {
	if b.stream != nil && b.stream.Running() {
		b.stream.Stop()
	}
	err := b.resources.release()
	if b.writer != nil && b.writer.aligner.pending() > 0 {
		b.logger.Debug("Discarded partial frame on close", zap.Int("bytes", b.writer.aligner.pending()))
	}
	b.stream, b.client = nil, nil
	return err
}

// pulseWriter is the pulse.Writer handed to the record stream.
type pulseWriter struct {
	sink    atomic.Pointer[FrameSink]
	aligner *frameAligner
}

func newPulseWriter(f audio.Format) *pulseWriter {
	return &pulseWriter{aligner: newFrameAligner(f.BlockAlign())}
}

func (w *pulseWriter) setSink(sink FrameSink) {
	if sink == nil {
		w.sink.Store(nil)
		return
	}
	w.sink.Store(&sink)
}

func (w *pulseWriter) Write(p []byte) (int, error) {
	if sink := w.sink.Load(); sink != nil {
		w.aligner.write(p, *sink)
	}
	return len(p), nil
}

func (w *pulseWriter) Format() byte {
	return proto.FormatFloat32LE
}
