//go:build windows

package monitor

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	displayDeviceActive   = 0x1
	displayDeviceAttached = 0x2
)

// DISPLAY_DEVICEW
type displayDevice struct {
	cb           uint32
	DeviceName   [32]uint16
	DeviceString [128]uint16
	StateFlags   uint32
	DeviceID     [128]uint16
	DeviceKey    [128]uint16
}

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procEnumDisplayDevicesW = user32.NewProc("EnumDisplayDevicesW")
)

// List enumerates monitors on every display output. An empty list is not an
// error: right after a hot-plug the OS may briefly report nothing.
func List() ([]Info, error) {
	if err := procEnumDisplayDevicesW.Find(); err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}

	var monitors []Info
	for ai := uint32(0); ; ai++ {
		adapter, ok := enumDisplayDevices(nil, ai)
		if !ok {
			break
		}
		if adapter.StateFlags&displayDeviceAttached == 0 {
			continue
		}

		name := &adapter.DeviceName[0]
		for mi := uint32(0); ; mi++ {
			mon, ok := enumDisplayDevices(name, mi)
			if !ok {
				break
			}
			id := windows.UTF16ToString(mon.DeviceID[:])
			monitors = append(monitors, Info{
				Index:        len(monitors),
				DeviceName:   windows.UTF16ToString(mon.DeviceName[:]),
				DeviceString: windows.UTF16ToString(mon.DeviceString[:]),
				HardwareID:   HardwareIDFromDeviceID(id),
				Active:       mon.StateFlags&displayDeviceActive != 0,
			})
		}
	}
	return monitors, nil
}

func enumDisplayDevices(device *uint16, index uint32) (displayDevice, bool) {
	var dd displayDevice
	dd.cb = uint32(unsafe.Sizeof(dd))
	r, _, _ := procEnumDisplayDevicesW.Call(
		uintptr(unsafe.Pointer(device)),
		uintptr(index),
		uintptr(unsafe.Pointer(&dd)),
		0,
	)
	return dd, r != 0
}
