// Package devquery reports whether the virtual display adapter is installed
// and healthy, independently of any open handle.
package devquery

// Status is the health of the adapter's device node.
type Status string

const (
	StatusOK              Status = "ok"
	StatusInaccessible    Status = "inaccessible"
	StatusRestartRequired Status = "restart_required"
	StatusDisabled        Status = "disabled"
	StatusDriverError     Status = "driver_error"
	StatusNotInstalled    Status = "not_installed"
	StatusUnknown         Status = "unknown"
)

// DeviceStatus describes the adapter's device node.
type DeviceStatus struct {
	Status Status `json:"status"`
	// Problem is the CM_PROB_* code when the node reports one.
	Problem    uint32 `json:"problem,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
	// Service is the state of the driver host service, when it was read.
	Service string `json:"service,omitempty"`
}

// Usable reports whether opening the adapter can be expected to work.
func (s DeviceStatus) Usable() bool {
	return s.Status == StatusOK
}

// Devnode flags and problem codes from cfg.h.
const (
	dnStarted     = 0x00000008
	dnHasProblem  = 0x00000400
	dnNeedRestart = 0x00000100

	cmProbNeedRestart     = 0x0000000E
	cmProbDisabled        = 0x00000016
	cmProbDisabledService = 0x00000020
)

func statusFromDevNode(status, problem uint32) Status {
	switch {
	case status&dnHasProblem != 0:
		switch problem {
		case cmProbDisabled, cmProbDisabledService:
			return StatusDisabled
		case cmProbNeedRestart:
			return StatusRestartRequired
		default:
			return StatusDriverError
		}
	case status&dnNeedRestart != 0:
		return StatusRestartRequired
	case status&dnStarted != 0:
		return StatusOK
	default:
		return StatusInaccessible
	}
}

// ServiceStatus constants for the driver's host service.
const (
	ServiceRunning  = "running"
	ServiceStopped  = "stopped"
	ServiceDisabled = "disabled"
	ServiceUnknown  = "unknown"
)
