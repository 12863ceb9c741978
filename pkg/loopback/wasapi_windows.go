//go:build windows

package loopback

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/go-ole/go-ole"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

// wasapiBackend captures a render endpoint through WASAPI shared-mode
// loopback. All COM calls happen on one dedicated thread, which also runs the
// read loop and so doubles as the session's native audio thread.
type wasapiBackend struct {
	logger *zap.Logger
	opts   Options

	thread    *comThread
	resources releaser

	stopEvent  windows.Handle
	readyEvent windows.Handle
	eventErr   error

	audioClient   uintptr
	captureClient uintptr
	format        audio.Format
	blockAlign    int

	interrupted atomic.Bool
	silence     zeroBuffer
}

func newWASAPIBackend(logger *zap.Logger, opts Options) Backend {
	b := &wasapiBackend{
		logger: logger.Named("wasapi"),
		opts:   opts,
	}
	// Created up front so Interrupt works before and during Open.
	b.stopEvent, b.eventErr = windows.CreateEvent(nil, 1, 0, nil)
	return b
}

func (b *wasapiBackend) Open(deviceID string) (audio.Format, error) {
	if b.eventErr != nil {
		return audio.Format{}, newOpenError(ConnectionFailed, "CreateEvent", b.eventErr)
	}

	thread, err := startCOMThread()
	if err != nil {
		return audio.Format{}, newOpenError(ConnectionFailed, "CoInitializeEx", err)
	}
	b.thread = thread

	var format audio.Format
	thread.do(func() {
		format, err = b.open(deviceID)
	})
	return format, err
}

func (b *wasapiBackend) open(deviceID string) (audio.Format, error) {
	r := &b.resources

	enumerator, err := newDeviceEnumerator()
	if err != nil {
		return audio.Format{}, newOpenError(ConnectionFailed, "CoCreateInstance", err)
	}
	r.pushFunc("IMMDeviceEnumerator", func() { comRelease(enumerator) })

	var device uintptr
	if deviceID == "" {
		device, err = defaultRenderEndpoint(enumerator)
	} else {
		device, err = renderEndpointByID(enumerator, deviceID)
	}
	if err != nil {
		return audio.Format{}, newOpenError(StreamConnectFailed, "resolve endpoint", err)
	}
	r.pushFunc("IMMDevice", func() { comRelease(device) })

	var audioClient uintptr
	if err := comCall(device, vtblDeviceActivate,
		uintptr(unsafe.Pointer(iidIAudioClient)),
		clsctxAll,
		0,
		uintptr(unsafe.Pointer(&audioClient)),
	); err != nil {
		return audio.Format{}, newOpenError(StreamConnectFailed, "IMMDevice.Activate", err)
	}
	r.pushFunc("IAudioClient", func() { comRelease(audioClient) })
	b.audioClient = audioClient

	var mixFormat uintptr
	if err := comCall(audioClient, vtblAudioClientGetMixFormat, uintptr(unsafe.Pointer(&mixFormat))); err != nil {
		return audio.Format{}, newOpenError(FormatNegotiationFailed, "IAudioClient.GetMixFormat", err)
	}
	r.pushFunc("mix format", func() { ole.CoTaskMemFree(mixFormat) })

	format, err := parseWaveFormat(waveFormatBytes(mixFormat))
	if err != nil {
		return audio.Format{}, newOpenError(FormatNegotiationFailed, "parse mix format", err)
	}

	// REFERENCE_TIME arguments are 64-bit; periodicity must be 0 in shared mode.
	bufferDuration := b.opts.BufferDuration.Milliseconds() * hnsPerMillisecond
	initArgs := []uintptr{audclntShareShared, audclntStreamFlagsLoopback | audclntStreamFlagsEventCallback}
	initArgs = append(initArgs, int64Args(bufferDuration)...)
	initArgs = append(initArgs, int64Args(0)...)
	initArgs = append(initArgs, mixFormat, 0)
	if err := comCall(audioClient, vtblAudioClientInitialize, initArgs...); err != nil {
		return audio.Format{}, newOpenError(FormatNegotiationFailed, "IAudioClient.Initialize", err)
	}

	readyEvent, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return audio.Format{}, newOpenError(StreamConnectFailed, "CreateEvent", err)
	}
	r.push("ready event", func() error { return windows.CloseHandle(readyEvent) })
	b.readyEvent = readyEvent

	if err := comCall(audioClient, vtblAudioClientSetEventHandle, uintptr(readyEvent)); err != nil {
		return audio.Format{}, newOpenError(StreamConnectFailed, "IAudioClient.SetEventHandle", err)
	}

	var captureClient uintptr
	if err := comCall(audioClient, vtblAudioClientGetService,
		uintptr(unsafe.Pointer(iidIAudioCaptureClient)),
		uintptr(unsafe.Pointer(&captureClient)),
	); err != nil {
		return audio.Format{}, newOpenError(StreamConnectFailed, "IAudioClient.GetService", err)
	}
	r.pushFunc("IAudioCaptureClient", func() { comRelease(captureClient) })
	b.captureClient = captureClient

	if err := comCall(audioClient, vtblAudioClientStart); err != nil {
		return audio.Format{}, newOpenError(StreamConnectFailed, "IAudioClient.Start", err)
	}
	r.push("IAudioClient.Stop", func() error { return comCall(audioClient, vtblAudioClientStop) })

	var bufferFrames uint32
	if err := comCall(audioClient, vtblAudioClientGetBufferSize, uintptr(unsafe.Pointer(&bufferFrames))); err == nil {
		b.logger.Debug("WASAPI buffer allocated", zap.Uint32("frames", bufferFrames))
	}

	b.format = format
	b.blockAlign = format.BlockAlign()
	b.logger.Info("WASAPI loopback opened",
		zap.String("device_id", deviceID),
		zap.Stringer("format", format))
	return format, nil
}

// waveFormatBytes views the WAVEFORMATEX at p including its extension.
func waveFormatBytes(p uintptr) []byte {
	head := unsafe.Slice((*byte)(unsafe.Pointer(p)), waveFormatExSize)
	cbSize := int(head[16]) | int(head[17])<<8
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), waveFormatExSize+cbSize)
}

func (b *wasapiBackend) ReadLoop(sink FrameSink) error {
	var err error
	b.thread.do(func() {
		err = b.readLoop(sink)
	})
	return err
}

func (b *wasapiBackend) readLoop(sink FrameSink) error {
	if revert, err := proAudioPriority(); err != nil {
		b.logger.Debug("Pro Audio thread priority unavailable", zap.Error(err))
	} else {
		defer revert()
	}

	handles := []windows.Handle{b.stopEvent, b.readyEvent}
	timeout := uint32(b.opts.WaitTimeout.Milliseconds())

	for {
		if b.interrupted.Load() {
			return nil
		}

		event, err := windows.WaitForMultipleObjects(handles, false, timeout)
		if err != nil {
			return fmt.Errorf("WaitForMultipleObjects: %w", err)
		}
		switch event {
		case windows.WAIT_OBJECT_0:
			return nil
		case windows.WAIT_OBJECT_0 + 1, uint32(windows.WAIT_TIMEOUT):
			// Loopback streams do not signal while the endpoint is idle, so
			// the timeout path drains as well.
		default:
			return fmt.Errorf("WaitForMultipleObjects: unexpected result %d", event)
		}

		if err := b.drain(sink); err != nil {
			return err
		}
	}
}

// drain delivers every packet currently queued in the capture client.
// Device invalidation is fatal, other GetBuffer failures are retried on the
// next wakeup.
func (b *wasapiBackend) drain(sink FrameSink) error {
	for {
		var packetFrames uint32
		if err := comCall(b.captureClient, vtblCaptureGetNextPacketSize, uintptr(unsafe.Pointer(&packetFrames))); err != nil {
			if isHRESULT(err, audclntEDeviceInvalidated) {
				return fmt.Errorf("IAudioCaptureClient.GetNextPacketSize: %w", err)
			}
			b.logger.Debug("GetNextPacketSize failed", zap.Error(err))
			return nil
		}
		if packetFrames == 0 {
			return nil
		}

		var (
			data   uintptr
			frames uint32
			flags  uint32
		)
		if err := comCall(b.captureClient, vtblCaptureGetBuffer,
			uintptr(unsafe.Pointer(&data)),
			uintptr(unsafe.Pointer(&frames)),
			uintptr(unsafe.Pointer(&flags)),
			0,
			0,
		); err != nil {
			if isHRESULT(err, audclntEDeviceInvalidated) {
				return fmt.Errorf("IAudioCaptureClient.GetBuffer: %w", err)
			}
			b.logger.Debug("GetBuffer failed", zap.Error(err))
			return nil
		}

		size := int(frames) * b.blockAlign
		switch classifyPacket(frames, flags&audclntBufferFlagsSilent != 0, data != 0) {
		case packetSilence:
			sink(b.silence.get(size))
		case packetData:
			sink(unsafe.Slice((*byte)(unsafe.Pointer(data)), size))
		}

		if err := comCall(b.captureClient, vtblCaptureReleaseBuffer, uintptr(frames)); err != nil {
			return fmt.Errorf("IAudioCaptureClient.ReleaseBuffer: %w", err)
		}
	}
}

func (b *wasapiBackend) Interrupt() {
	b.interrupted.Store(true)
	if b.stopEvent != 0 {
		_ = windows.SetEvent(b.stopEvent)
	}
}

func (b *wasapiBackend) Close() error {
	var err error
	if b.thread != nil {
		b.thread.do(func() {
			err = b.resources.release()
		})
		b.thread.stop()
		b.thread = nil
	}
	b.audioClient, b.captureClient = 0, 0

	if b.stopEvent != 0 {
		if cerr := windows.CloseHandle(b.stopEvent); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("release stop event: %w", cerr))
		}
		b.stopEvent = 0
	}
	return err
}
