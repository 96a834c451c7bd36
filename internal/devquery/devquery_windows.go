//go:build windows

package devquery

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/breeze-rmm/vdd/internal/logging"
)

var log = logging.L("devquery")

// Query finds the present device of classGUID whose hardware IDs include
// hardwareID and maps its devnode state.
func Query(classGUID, hardwareID string) DeviceStatus {
	guid, err := windows.GUIDFromString(classGUID)
	if err != nil {
		log.Error("invalid class guid", "guid", classGUID, logging.Err(err))
		return DeviceStatus{Status: StatusUnknown}
	}

	devs, err := windows.SetupDiGetClassDevsEx(&guid, "", 0, windows.DIGCF_PRESENT, 0, "")
	if err != nil {
		log.Warn("enumerate device class", "guid", classGUID, logging.Err(err))
		return DeviceStatus{Status: StatusUnknown}
	}
	defer devs.Close()

	for i := 0; ; i++ {
		data, err := devs.EnumDeviceInfo(i)
		if err != nil {
			if !errors.Is(err, windows.ERROR_NO_MORE_ITEMS) {
				log.Warn("enumerate device", "index", i, logging.Err(err))
			}
			break
		}
		if !hasHardwareID(devs, data, hardwareID) {
			continue
		}

		id, _ := devs.DeviceInstanceID(data)
		var status, problem uint32
		if err := windows.CM_Get_DevNode_Status(&status, &problem, data.DevInst, 0); err != nil {
			log.Warn("devnode status", "instance", id, logging.Err(err))
			return DeviceStatus{Status: StatusInaccessible, InstanceID: id}
		}
		ds := DeviceStatus{Status: statusFromDevNode(status, problem), InstanceID: id}
		if status&dnHasProblem != 0 {
			ds.Problem = problem
		}
		return ds
	}

	return DeviceStatus{Status: StatusNotInstalled}
}

func hasHardwareID(devs windows.DevInfo, data *windows.DevInfoData, want string) bool {
	v, err := devs.DeviceRegistryProperty(data, windows.SPDRP_HARDWAREID)
	if err != nil {
		return false
	}
	switch ids := v.(type) {
	case []string:
		for _, id := range ids {
			if strings.EqualFold(id, want) {
				return true
			}
		}
	case string:
		return strings.EqualFold(ids, want)
	}
	return false
}

// ServiceState queries the driver host service by name.
func ServiceState(name string) (string, error) {
	m, err := mgr.Connect()
	if err != nil {
		return ServiceUnknown, fmt.Errorf("devquery: connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return ServiceUnknown, fmt.Errorf("devquery: open service %s: %w", name, err)
	}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		return ServiceUnknown, fmt.Errorf("devquery: query %s: %w", name, err)
	}
	if cfg, err := s.Config(); err == nil && cfg.StartType == mgr.StartDisabled {
		return ServiceDisabled, nil
	}
	return mapServiceState(status.State), nil
}

func mapServiceState(state svc.State) string {
	switch state {
	case svc.Running, svc.StartPending, svc.ContinuePending:
		return ServiceRunning
	case svc.Stopped, svc.Paused, svc.StopPending, svc.PausePending:
		return ServiceStopped
	default:
		return ServiceUnknown
	}
}
