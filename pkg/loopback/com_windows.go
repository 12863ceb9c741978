//go:build windows

package loopback

import (
	"errors"
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

// COM vtable calling infrastructure for the Core Audio interfaces, which are
// IUnknown-based and have no IDispatch surface for oleutil.

// hresult is a failed COM return code.
type hresult uint32

func (h hresult) Error() string {
	return fmt.Sprintf("HRESULT 0x%08X", uint32(h))
}

const sFalse = 0x00000001

const (
	eNotFound                 hresult = 0x80070490 // HRESULT_FROM_WIN32(ERROR_NOT_FOUND)
	audclntEDeviceInvalidated hresult = 0x88890004
	audclntEServiceNotRunning hresult = 0x88890010
)

// comCall invokes the method at vtableIdx on obj, a pointer to a COM
// interface (pointer to pointer to vtable).
func comCall(obj uintptr, vtableIdx int, args ...uintptr) error {
	allArgs := make([]uintptr, 0, 1+len(args))
	allArgs = append(allArgs, obj)
	allArgs = append(allArgs, args...)
	ret, _, _ := syscall.SyscallN(comVtblFn(obj, vtableIdx), allArgs...)
	if int32(ret) < 0 {
		return hresult(ret)
	}
	return nil
}

// comVtblFn returns the address of the method at vtableIdx.
func comVtblFn(obj uintptr, vtableIdx int) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(vtableIdx)*unsafe.Sizeof(uintptr(0))))
}

// comRelease calls IUnknown::Release (vtable index 2).
func comRelease(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(comVtblFn(obj, 2), obj)
	}
}

func isHRESULT(err error, code hresult) bool {
	var hr hresult
	return errors.As(err, &hr) && hr == code
}

// Core Audio GUIDs
var (
	clsidMMDeviceEnumerator = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator  = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidIAudioClient         = ole.NewGUID("{1CB9AD4C-DBFA-4C32-B178-C2F568A703B2}")
	iidIAudioCaptureClient  = ole.NewGUID("{C8ADBD64-E71E-48A0-A4DE-185C395CD317}")

	// PKEY_Device_FriendlyName
	pkeyDeviceFriendlyName = propertyKey{
		fmtid: *ole.NewGUID("{A45C254E-DF1C-4EFD-8020-67D146A850E0}"),
		pid:   14,
	}
)

const (
	clsctxAll = 0x1 | 0x2 | 0x4 | 0x10

	eRender            = 0
	eConsole           = 0
	deviceStateActive  = 0x1
	stgmRead           = 0x0
	vtLPWSTR           = 31
	hnsPerMillisecond  = 10_000
	audclntShareShared = 0

	audclntStreamFlagsLoopback      = 0x00020000
	audclntStreamFlagsEventCallback = 0x00040000
	audclntBufferFlagsSilent        = 0x2
)

// vtable indices. IUnknown occupies 0..2 in every interface.
const (
	// IMMDeviceEnumerator
	vtblEnumAudioEndpoints      = 3
	vtblGetDefaultAudioEndpoint = 4
	vtblGetDevice               = 5

	// IMMDeviceCollection
	vtblCollectionGetCount = 3
	vtblCollectionItem     = 4

	// IMMDevice
	vtblDeviceActivate          = 3
	vtblDeviceOpenPropertyStore = 4
	vtblDeviceGetID             = 5

	// IPropertyStore
	vtblPropertyStoreGetValue = 5

	// IAudioClient
	vtblAudioClientInitialize     = 3
	vtblAudioClientGetBufferSize  = 4
	vtblAudioClientGetMixFormat   = 8
	vtblAudioClientStart          = 10
	vtblAudioClientStop           = 11
	vtblAudioClientSetEventHandle = 13
	vtblAudioClientGetService     = 14

	// IAudioCaptureClient
	vtblCaptureGetBuffer         = 3
	vtblCaptureReleaseBuffer     = 4
	vtblCaptureGetNextPacketSize = 5
)

type propertyKey struct {
	fmtid ole.GUID
	pid   uint32
}

// propVariant matches the PROPVARIANT layout for pointer-valued variants.
type propVariant struct {
	vt       uint16
	reserved [3]uint16
	val      uintptr
	pad      uintptr
}

var (
	ole32DLL             = windows.NewLazySystemDLL("ole32.dll")
	procPropVariantClear = ole32DLL.NewProc("PropVariantClear")

	avrtDLL                             = windows.NewLazySystemDLL("avrt.dll")
	procAvSetMmThreadCharacteristicsW   = avrtDLL.NewProc("AvSetMmThreadCharacteristicsW")
	procAvRevertMmThreadCharacteristics = avrtDLL.NewProc("AvRevertMmThreadCharacteristics")
)

// comThread is an OS thread initialized into the multithreaded apartment.
// Every COM call for one backend or one directory query runs on it.
type comThread struct {
	calls chan func()
	done  chan struct{}
}

func startCOMThread() (*comThread, error) {
	t := &comThread{
		calls: make(chan func()),
		done:  make(chan struct{}),
	}
	initErr := make(chan error, 1)

	go func() {
		defer close(t.done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
			var oleErr *ole.OleError
			if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
				initErr <- fmt.Errorf("CoInitializeEx: %w", err)
				return
			}
		}
		defer ole.CoUninitialize()
		initErr <- nil

		for fn := range t.calls {
			fn()
		}
	}()

	if err := <-initErr; err != nil {
		<-t.done
		return nil, err
	}
	return t, nil
}

// do runs fn on the COM thread and waits for it.
func (t *comThread) do(fn func()) {
	finished := make(chan struct{})
	t.calls <- func() {
		defer close(finished)
		fn()
	}
	<-finished
}

// stop uninitializes COM and releases the OS thread.
func (t *comThread) stop() {
	close(t.calls)
	<-t.done
}

// withCOM runs fn on a temporary COM thread.
func withCOM(fn func() error) error {
	t, err := startCOMThread()
	if err != nil {
		return err
	}
	defer t.stop()

	t.do(func() { err = fn() })
	return err
}

// newDeviceEnumerator creates an IMMDeviceEnumerator. Caller releases it.
func newDeviceEnumerator() (uintptr, error) {
	unk, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		return 0, fmt.Errorf("CoCreateInstance MMDeviceEnumerator: %w", err)
	}
	return uintptr(unsafe.Pointer(unk)), nil
}

// deviceID reads IMMDevice::GetId.
func deviceID(device uintptr) (string, error) {
	var pwstr *uint16
	if err := comCall(device, vtblDeviceGetID, uintptr(unsafe.Pointer(&pwstr))); err != nil {
		return "", fmt.Errorf("IMMDevice.GetId: %w", err)
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(pwstr)))
	return windows.UTF16PtrToString(pwstr), nil
}

// deviceFriendlyName reads PKEY_Device_FriendlyName from the device's
// property store. Returns "" if the property is missing.
func deviceFriendlyName(device uintptr) (string, error) {
	var store uintptr
	if err := comCall(device, vtblDeviceOpenPropertyStore, stgmRead, uintptr(unsafe.Pointer(&store))); err != nil {
		return "", fmt.Errorf("IMMDevice.OpenPropertyStore: %w", err)
	}
	defer comRelease(store)

	var pv propVariant
	if err := comCall(store, vtblPropertyStoreGetValue,
		uintptr(unsafe.Pointer(&pkeyDeviceFriendlyName)),
		uintptr(unsafe.Pointer(&pv)),
	); err != nil {
		return "", fmt.Errorf("IPropertyStore.GetValue: %w", err)
	}
	defer procPropVariantClear.Call(uintptr(unsafe.Pointer(&pv)))

	if pv.vt != vtLPWSTR || pv.val == 0 {
		return "", nil
	}
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(pv.val))), nil
}

// describeDevice builds a Device from an IMMDevice.
func describeDevice(device uintptr) (Device, error) {
	id, err := deviceID(device)
	if err != nil {
		return Device{}, err
	}
	name, err := deviceFriendlyName(device)
	if err != nil {
		return Device{}, err
	}
	if name == "" {
		name = id
	}
	return Device{ID: id, DisplayName: name}, nil
}

// defaultRenderEndpoint returns the console default render IMMDevice.
func defaultRenderEndpoint(enumerator uintptr) (uintptr, error) {
	var device uintptr
	err := comCall(enumerator, vtblGetDefaultAudioEndpoint,
		eRender, eConsole, uintptr(unsafe.Pointer(&device)))
	if err != nil {
		if isHRESULT(err, eNotFound) {
			return 0, ErrDeviceNotFound
		}
		return 0, fmt.Errorf("IMMDeviceEnumerator.GetDefaultAudioEndpoint: %w", err)
	}
	return device, nil
}

// renderEndpointByID returns the IMMDevice with the given endpoint id.
func renderEndpointByID(enumerator uintptr, id string) (uintptr, error) {
	wid, err := windows.UTF16PtrFromString(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	var device uintptr
	err = comCall(enumerator, vtblGetDevice, uintptr(unsafe.Pointer(wid)), uintptr(unsafe.Pointer(&device)))
	if err != nil {
		if isHRESULT(err, eNotFound) {
			return 0, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
		}
		return 0, fmt.Errorf("IMMDeviceEnumerator.GetDevice: %w", err)
	}
	return device, nil
}

// proAudioPriority registers the calling thread with MMCSS under the
// "Pro Audio" task. The returned func reverts it.
func proAudioPriority() (func(), error) {
	if err := procAvSetMmThreadCharacteristicsW.Find(); err != nil {
		return nil, err
	}
	task, err := windows.UTF16PtrFromString("Pro Audio")
	if err != nil {
		return nil, err
	}
	var taskIndex uint32
	h, _, callErr := procAvSetMmThreadCharacteristicsW.Call(
		uintptr(unsafe.Pointer(task)),
		uintptr(unsafe.Pointer(&taskIndex)),
	)
	if h == 0 {
		return nil, fmt.Errorf("AvSetMmThreadCharacteristics: %w", callErr)
	}
	return func() {
		procAvRevertMmThreadCharacteristics.Call(h)
	}, nil
}
