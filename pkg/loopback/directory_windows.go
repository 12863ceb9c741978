//go:build windows

package loopback

import (
	"errors"
	"fmt"
	"unsafe"
)

func hostPlatform(Options) Platform {
	return Platform{
		NewBackend: newWASAPIBackend,
		Directory:  mmDeviceDirectory{},
	}
}

// mmDeviceDirectory lists active render endpoints through
// IMMDeviceEnumerator. Each call runs on its own COM thread.
type mmDeviceDirectory struct{}

func (mmDeviceDirectory) Devices() ([]Device, error) {
	var devices []Device
	err := withCOM(func() error {
		var r releaser
		defer r.release()

		enumerator, err := newDeviceEnumerator()
		if err != nil {
			return err
		}
		r.pushFunc("IMMDeviceEnumerator", func() { comRelease(enumerator) })

		var collection uintptr
		if err := comCall(enumerator, vtblEnumAudioEndpoints,
			eRender, deviceStateActive, uintptr(unsafe.Pointer(&collection))); err != nil {
			return fmt.Errorf("IMMDeviceEnumerator.EnumAudioEndpoints: %w", err)
		}
		r.pushFunc("IMMDeviceCollection", func() { comRelease(collection) })

		var count uint32
		if err := comCall(collection, vtblCollectionGetCount, uintptr(unsafe.Pointer(&count))); err != nil {
			return fmt.Errorf("IMMDeviceCollection.GetCount: %w", err)
		}

		devices = make([]Device, 0, count)
		for i := uint32(0); i < count; i++ {
			var device uintptr
			if err := comCall(collection, vtblCollectionItem, uintptr(i), uintptr(unsafe.Pointer(&device))); err != nil {
				return fmt.Errorf("IMMDeviceCollection.Item(%d): %w", i, err)
			}
			d, err := describeDevice(device)
			comRelease(device)
			if err != nil {
				return err
			}
			devices = append(devices, d)
		}
		return nil
	})
	if err != nil {
		return nil, &EnumerationError{Op: "list render endpoints", Err: err}
	}
	return devices, nil
}

func (mmDeviceDirectory) DefaultDevice() (Device, error) {
	var d Device
	err := withCOM(func() error {
		enumerator, err := newDeviceEnumerator()
		if err != nil {
			return err
		}
		defer comRelease(enumerator)

		device, err := defaultRenderEndpoint(enumerator)
		if err != nil {
			return err
		}
		defer comRelease(device)

		d, err = describeDevice(device)
		return err
	})
	if errors.Is(err, ErrDeviceNotFound) {
		return Device{}, err
	}
	if err != nil {
		return Device{}, &EnumerationError{Op: "default render endpoint", Err: err}
	}
	return d, nil
}
