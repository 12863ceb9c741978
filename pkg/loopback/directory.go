package loopback

import "fmt"

// Device identifies a render endpoint. ID is opaque and only meaningful to
// the platform that produced it.
type Device struct {
	ID          string
	DisplayName string
}

func (d Device) String() string {
	if d.DisplayName == "" || d.DisplayName == d.ID {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.DisplayName, d.ID)
}

// Directory enumerates render endpoints. Implementations acquire and
// release any OS enumeration handle within each call, and report OS
// failures as *EnumerationError.
type Directory interface {
	Devices() ([]Device, error)
	// DefaultDevice returns ErrDeviceNotFound when there is no default.
	DefaultDevice() (Device, error)
}
