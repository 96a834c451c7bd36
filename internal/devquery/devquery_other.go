//go:build !windows

package devquery

import "fmt"

// Query reports the adapter as not installed; it only exists on Windows.
func Query(classGUID, hardwareID string) DeviceStatus {
	return DeviceStatus{Status: StatusNotInstalled}
}

// ServiceState is not implemented on this platform.
func ServiceState(name string) (string, error) {
	return ServiceUnknown, fmt.Errorf("devquery: not implemented on this platform")
}
