// Package monitor takes read-only snapshots of the monitors the OS reports.
package monitor

import "strings"

// Info describes one monitor attached to a display output.
type Info struct {
	// Index is the enumeration order, not a stable identifier.
	Index        int    `json:"index"`
	DeviceName   string `json:"deviceName"`   // e.g. \\.\DISPLAY3\Monitor0
	DeviceString string `json:"deviceString"` // friendly name
	// HardwareID is the monitor's PnP model token, e.g. PSCCDD0.
	HardwareID string `json:"hardwareId"`
	Active     bool   `json:"active"`
}

// Source produces a monitor snapshot.
type Source interface {
	List() ([]Info, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ([]Info, error)

func (f SourceFunc) List() ([]Info, error) { return f() }

// System returns the OS monitor source.
func System() Source {
	return SourceFunc(List)
}

// HardwareIDFromDeviceID extracts the model token from a monitor device ID of
// the form MONITOR\<model>\{class-guid}\<instance>.
func HardwareIDFromDeviceID(id string) string {
	parts := strings.Split(id, `\`)
	if len(parts) < 2 || !strings.EqualFold(parts[0], "MONITOR") {
		return ""
	}
	return parts[1]
}
