//go:build linux

package loopback

import (
	"fmt"

	"github.com/jfreymuth/pulse"
)

func hostPlatform(opts Options) Platform {
	return Platform{
		NewBackend: newPulseBackend,
		Directory:  pulseDirectory{appName: opts.ApplicationName},
	}
}

// pulseDirectory lists sinks and reports their monitor sources as device
// ids. Every call opens and closes its own connection.
type pulseDirectory struct {
	appName string
}

func (d pulseDirectory) connect() (*pulse.Client, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName(d.appName))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return client, nil
}

func (d pulseDirectory) Devices() ([]Device, error) {
	client, err := d.connect()
	if err != nil {
		return nil, &EnumerationError{Op: "list sinks", Err: err}
	}
	defer client.Close()

	sinks, err := client.ListSinks()
	if err != nil {
		return nil, &EnumerationError{Op: "list sinks", Err: err}
	}

	devices := make([]Device, 0, len(sinks))
	for _, s := range sinks {
		devices = append(devices, monitorDevice(s))
	}
	return devices, nil
}

func (d pulseDirectory) DefaultDevice() (Device, error) {
	client, err := d.connect()
	if err != nil {
		return Device{}, &EnumerationError{Op: "default sink", Err: err}
	}
	defer client.Close()

	sink, err := client.DefaultSink()
	if err != nil {
		return Device{}, &EnumerationError{Op: "default sink", Err: err}
	}
	if sink == nil {
		return Device{}, ErrDeviceNotFound
	}
	return monitorDevice(sink), nil
}

func monitorDevice(s *pulse.Sink) Device {
	name := s.Name()
	if name == "" {
		name = s.ID()
	}
	return Device{ID: s.ID() + monitorSuffix, DisplayName: name}
}
