package loopbacktest

import (
	"github.com/Raikerian/go-loopback/pkg/loopback"
	"github.com/stretchr/testify/mock"
)

// MockDirectory is a testify mock of loopback.Directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Devices() ([]loopback.Device, error) {
	args := m.Called()
	devices, _ := args.Get(0).([]loopback.Device)
	return devices, args.Error(1)
}

func (m *MockDirectory) DefaultDevice() (loopback.Device, error) {
	args := m.Called()
	device, _ := args.Get(0).(loopback.Device)
	return device, args.Error(1)
}

// StaticDirectory is a fixed device list. The first entry is the default.
type StaticDirectory []loopback.Device

func (d StaticDirectory) Devices() ([]loopback.Device, error) {
	return append([]loopback.Device{}, d...), nil
}

func (d StaticDirectory) DefaultDevice() (loopback.Device, error) {
	if len(d) == 0 {
		return loopback.Device{}, loopback.ErrDeviceNotFound
	}
	return d[0], nil
}
