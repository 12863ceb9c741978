//go:build !windows && !linux

package loopback

import (
	"github.com/Raikerian/go-loopback/pkg/audio"
	"go.uber.org/zap"
)

func hostPlatform(Options) Platform {
	return Platform{
		NewBackend: func(*zap.Logger, Options) Backend { return unsupportedBackend{} },
		Directory:  unsupportedDirectory{},
	}
}

type unsupportedBackend struct{}

func (unsupportedBackend) Open(string) (audio.Format, error) {
	return audio.Format{}, newOpenError(ConnectionFailed, "open", errUnsupportedPlatformAudio)
}

func (unsupportedBackend) ReadLoop(FrameSink) error { return errUnsupportedPlatformAudio }
func (unsupportedBackend) Interrupt()               {}
func (unsupportedBackend) Close() error             { return nil }

type unsupportedDirectory struct{}

func (unsupportedDirectory) Devices() ([]Device, error) {
	return nil, &EnumerationError{Op: "list devices", Err: errUnsupportedPlatformAudio}
}

func (unsupportedDirectory) DefaultDevice() (Device, error) {
	return Device{}, &EnumerationError{Op: "default device", Err: errUnsupportedPlatformAudio}
}
