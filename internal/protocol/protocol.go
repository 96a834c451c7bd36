// Package protocol defines the control codes understood by the virtual display
// adapter driver and the fixed-size frames they are sent in.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// FrameSize is the size of every input buffer handed to the driver.
const FrameSize = 32

// OutputSize is the size of the single integer a command may return.
const OutputSize = 4

// MaxSlot is the highest slot a remove frame can address; the slot travels
// in a single byte.
const MaxSlot = 0xFF

// Code is a device I/O control code.
type Code uint32

const (
	CodeAddDisplay    Code = 0x22E004
	CodeRemoveDisplay Code = 0x22A008
	CodeUpdate        Code = 0x22A00C
	CodeVersion       Code = 0x22E010

	// CodeReserved appeared in driver 0.45 alongside per-display state. Its
	// semantics are not known, so it is never sent.
	CodeReserved Code = 0x22A014
)

var (
	ErrUnsupported = errors.New("protocol: unsupported control code")
	ErrShortOutput = errors.New("protocol: output buffer too short")
	ErrInvalidSlot = errors.New("protocol: display slot out of range")
)

func (c Code) String() string {
	switch c {
	case CodeAddDisplay:
		return "add"
	case CodeRemoveDisplay:
		return "remove"
	case CodeUpdate:
		return "update"
	case CodeVersion:
		return "version"
	case CodeReserved:
		return "reserved"
	default:
		return fmt.Sprintf("0x%06X", uint32(c))
	}
}

// Mutates reports whether the command changes the set of attached displays.
// The driver must be pinged after every successful mutating command.
func (c Code) Mutates() bool {
	return c == CodeAddDisplay || c == CodeRemoveDisplay
}

// Supported reports whether this client knows how to issue the code.
func (c Code) Supported() bool {
	switch c {
	case CodeAddDisplay, CodeRemoveDisplay, CodeUpdate, CodeVersion:
		return true
	}
	return false
}

// Frame is the wire form of a command's input.
type Frame [FrameSize]byte

// Command is a single request to the driver.
type Command struct {
	Code          Code
	Input         []byte
	ExpectsOutput bool
	Timeout       time.Duration

	slot    int
	badSlot bool
}

// Frame copies the logical input into a zeroed frame. Input longer than the
// frame is truncated.
func (c Command) Frame() Frame {
	var f Frame
	copy(f[:], c.Input)
	return f
}

// Validate rejects commands that must not reach the driver.
func (c Command) Validate() error {
	if !c.Code.Supported() {
		return fmt.Errorf("%w: %s", ErrUnsupported, c.Code)
	}
	if c.badSlot {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, c.slot)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("protocol: %s: non-positive timeout %s", c.Code, c.Timeout)
	}
	return nil
}

// DecodeOutput reads the little-endian integer the driver wrote back.
func DecodeOutput(b []byte) (uint32, error) {
	if len(b) < OutputSize {
		return 0, fmt.Errorf("%w: got %d bytes", ErrShortOutput, len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// VersionCommand builds the driver version query.
func VersionCommand(t Timeouts) Command {
	return Command{Code: CodeVersion, ExpectsOutput: true, Timeout: t.For(CodeVersion)}
}

// AddDisplayCommand builds the request that plugs a new virtual display.
func AddDisplayCommand(t Timeouts) Command {
	return Command{Code: CodeAddDisplay, ExpectsOutput: true, Timeout: t.For(CodeAddDisplay)}
}

// RemoveDisplayCommand builds the request that unplugs the display in slot
// index. The driver reads the slot from the second byte, so index must be in
// [0, MaxSlot]; Validate rejects anything else.
func RemoveDisplayCommand(t Timeouts, index int) Command {
	if index < 0 || index > MaxSlot {
		return Command{Code: CodeRemoveDisplay, Timeout: t.For(CodeRemoveDisplay), slot: index, badSlot: true}
	}
	return Command{
		Code:    CodeRemoveDisplay,
		Input:   []byte{0, byte(index & 0xFF)},
		Timeout: t.For(CodeRemoveDisplay),
	}
}

// UpdateCommand builds the keepalive that makes the driver recompute its
// displays.
func UpdateCommand(t Timeouts) Command {
	return Command{Code: CodeUpdate, Timeout: t.For(CodeUpdate)}
}
