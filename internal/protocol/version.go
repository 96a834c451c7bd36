package protocol

import "fmt"

// UnknownVersion is what DriverVersion renders when the driver did not answer.
const UnknownVersion = "0.???"

// DriverVersion is the decoded reply to CodeVersion.
type DriverVersion struct {
	Major int
	Minor int
	Known bool
}

// DecodeVersion splits the raw reply. The driver has never bumped its major
// number, so only the low 16 bits carry information.
func DecodeVersion(raw uint32) DriverVersion {
	return DriverVersion{Major: 0, Minor: int(raw & 0xFFFF), Known: true}
}

func (v DriverVersion) String() string {
	if !v.Known {
		return UnknownVersion
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
