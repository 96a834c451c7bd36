//go:build windows

package channel

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/windows"

	"github.com/breeze-rmm/vdd/internal/protocol"
)

type winKernel struct {
	h windows.Handle
}

type winRequest struct {
	h  windows.Handle
	ov windows.Overlapped
}

func openKernel(adapterGUID string) (kernel, string, error) {
	guid, err := windows.GUIDFromString(adapterGUID)
	if err != nil {
		return nil, "", fmt.Errorf("channel: adapter guid %q: %w", adapterGUID, err)
	}

	paths, err := windows.CM_Get_Device_Interface_List("", &guid, windows.CM_GET_DEVICE_INTERFACE_LIST_PRESENT)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	path := ""
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			path = p
			break
		}
	}
	if path == "" {
		return nil, "", ErrDeviceNotFound
	}

	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, "", fmt.Errorf("channel: device path: %w", err)
	}

	h, err := windows.CreateFile(
		name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL|windows.FILE_FLAG_NO_BUFFERING|windows.FILE_FLAG_OVERLAPPED|windows.FILE_FLAG_WRITE_THROUGH,
		0,
	)
	switch {
	case err == nil:
		return &winKernel{h: h}, path, nil
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return nil, "", fmt.Errorf("%w: %s", ErrAccessDenied, path)
	case errors.Is(err, windows.ERROR_FILE_NOT_FOUND), errors.Is(err, windows.ERROR_PATH_NOT_FOUND):
		return nil, "", fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	default:
		return nil, "", fmt.Errorf("channel: open %s: %w", path, err)
	}
}

func (k *winKernel) submit(code uint32, in *protocol.Frame, out []byte) (request, error) {
	ev, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	r := &winRequest{h: k.h}
	r.ov.HEvent = ev

	var outPtr *byte
	if len(out) > 0 {
		outPtr = &out[0]
	}

	err = windows.DeviceIoControl(k.h, code, &in[0], uint32(len(in)), outPtr, uint32(len(out)), nil, &r.ov)
	if err != nil && !errors.Is(err, windows.ERROR_IO_PENDING) {
		windows.CloseHandle(ev)
		return nil, err
	}
	return r, nil
}

func (k *winKernel) cancel() error {
	err := windows.CancelIoEx(k.h, nil)
	if errors.Is(err, windows.ERROR_NOT_FOUND) {
		return nil
	}
	return err
}

func (k *winKernel) close() error {
	return windows.CloseHandle(k.h)
}

func (r *winRequest) wait(timeout time.Duration) (bool, error) {
	ev, err := windows.WaitForSingleObject(r.ov.HEvent, waitMillis(timeout))
	switch ev {
	case windows.WAIT_OBJECT_0:
		return true, nil
	case uint32(windows.WAIT_TIMEOUT):
		return false, nil
	default:
		if err == nil {
			err = fmt.Errorf("unexpected wait status 0x%X", ev)
		}
		return false, err
	}
}

func (r *winRequest) result() (uint32, error) {
	var n uint32
	if err := windows.GetOverlappedResult(r.h, &r.ov, &n, false); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *winRequest) release() error {
	if r.ov.HEvent == 0 {
		return nil
	}
	err := windows.CloseHandle(r.ov.HEvent)
	r.ov.HEvent = 0
	return err
}

// pending reads the status the kernel stores in the OVERLAPPED, the same
// test HasOverlappedIoCompleted makes.
func (r *winRequest) pending() bool {
	return atomic.LoadUintptr(&r.ov.Internal) == uintptr(windows.STATUS_PENDING)
}
