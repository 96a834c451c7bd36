// Package prefs persists the driver's custom display modes and its preferred
// render GPU. Reads never fail: missing or malformed data reads as "no data".
// Writes are privileged.
package prefs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/breeze-rmm/vdd/internal/logging"
	"github.com/breeze-rmm/vdd/internal/privilege"
)

var log = logging.L("prefs")

const (
	ModesPath      = `SOFTWARE\Parsec\vdd`
	ParametersPath = `SOFTWARE\Microsoft\Windows NT\CurrentVersion\WUDF\Services\ParsecVDA\Parameters`

	ValueWidth           = "width"
	ValueHeight          = "height"
	ValueHz              = "hz"
	ValuePreferredVendor = "PreferredRenderAdapterVendorId"

	// MaxModes is the number of custom mode slots the driver reads.
	MaxModes = 5
)

var (
	ErrPermissionDenied = errors.New("prefs: permission denied")
	ErrTooManyModes     = fmt.Errorf("prefs: more than %d modes", MaxModes)
	ErrInvalidMode      = errors.New("prefs: invalid display mode")
	ErrUnknownVendor    = errors.New("prefs: unknown GPU vendor")
)

// DisplayMode is one custom resolution the driver offers.
type DisplayMode struct {
	Width  uint16 `yaml:"width" json:"width"`
	Height uint16 `yaml:"height" json:"height"`
	Hz     uint16 `yaml:"hz" json:"hz"`
}

func (m DisplayMode) String() string {
	return fmt.Sprintf("%dx%d@%d", m.Width, m.Height, m.Hz)
}

func (m DisplayMode) valid() bool {
	return m.Width > 0 && m.Height > 0 && m.Hz > 0
}

// GPUAffinity selects the GPU the driver renders on, by PCI vendor ID.
type GPUAffinity uint32

const (
	GPUAuto   GPUAffinity = 0
	GPUNvidia GPUAffinity = 0x10DE
	GPUAMD    GPUAffinity = 0x1002
)

// Known reports whether the driver understands the vendor.
func (g GPUAffinity) Known() bool {
	switch g {
	case GPUAuto, GPUNvidia, GPUAMD:
		return true
	}
	return false
}

func (g GPUAffinity) String() string {
	switch g {
	case GPUAuto:
		return "auto"
	case GPUNvidia:
		return "nvidia"
	case GPUAMD:
		return "amd"
	default:
		return fmt.Sprintf("0x%04X", uint32(g))
	}
}

// ParseGPUAffinity accepts the names String produces.
func ParseGPUAffinity(s string) (GPUAffinity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return GPUAuto, nil
	case "nvidia":
		return GPUNvidia, nil
	case "amd":
		return GPUAMD, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVendor, s)
}

// Store reads and writes preferences through a KeyStore.
type Store struct {
	kv       KeyStore
	elevated func() bool
}

// Option configures a Store.
type Option func(*Store)

// WithElevationCheck replaces the process elevation check used before writes.
func WithElevationCheck(fn func() bool) Option {
	return func(s *Store) { s.elevated = fn }
}

// New creates a Store over kv.
func New(kv KeyStore, opts ...Option) *Store {
	s := &Store{kv: kv, elevated: privilege.IsElevated}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func slotPath(i int) string {
	return ModesPath + `\` + strconv.Itoa(i)
}

// Modes returns the stored custom modes in slot order. Slots with a missing
// or out-of-range field are skipped.
func (s *Store) Modes() []DisplayMode {
	var modes []DisplayMode
	for i := 0; i < MaxModes; i++ {
		m, ok := s.readSlot(i)
		if ok {
			modes = append(modes, m)
		}
	}
	return modes
}

func (s *Store) readSlot(i int) (DisplayMode, bool) {
	path := slotPath(i)
	var fields [3]uint16
	for j, name := range []string{ValueWidth, ValueHeight, ValueHz} {
		v, ok, err := s.kv.GetInt(path, name)
		if err != nil {
			log.Warn("read mode field", "slot", i, "field", name, logging.Err(err))
			return DisplayMode{}, false
		}
		if !ok {
			return DisplayMode{}, false
		}
		if v == 0 || v > 0xFFFF {
			log.Warn("mode field out of range", "slot", i, "field", name, "value", v)
			return DisplayMode{}, false
		}
		fields[j] = uint16(v)
	}
	return DisplayMode{Width: fields[0], Height: fields[1], Hz: fields[2]}, true
}

// SetModes replaces the stored modes. Slots past len(modes) are deleted so
// no stale mode survives a shorter list.
func (s *Store) SetModes(modes []DisplayMode) error {
	if len(modes) > MaxModes {
		return ErrTooManyModes
	}
	for i, m := range modes {
		if !m.valid() {
			return fmt.Errorf("%w: slot %d: %s", ErrInvalidMode, i, m)
		}
	}
	if err := s.checkElevated(privilege.OpSetModes); err != nil {
		return err
	}

	for i := 0; i < MaxModes; i++ {
		path := slotPath(i)
		if i >= len(modes) {
			if err := s.kv.DeleteKey(path); err != nil {
				return fmt.Errorf("prefs: delete slot %d: %w", i, err)
			}
			continue
		}
		m := modes[i]
		for _, f := range []struct {
			name string
			v    uint16
		}{{ValueWidth, m.Width}, {ValueHeight, m.Height}, {ValueHz, m.Hz}} {
			if err := s.kv.SetDWord(path, f.name, uint32(f.v)); err != nil {
				return fmt.Errorf("prefs: write slot %d %s: %w", i, f.name, err)
			}
		}
	}
	log.Info("custom modes updated", "count", len(modes))
	return nil
}

// GPUAffinity returns the preferred render GPU. Absence of the value means
// GPUAuto; an unrecognized vendor also reads as GPUAuto.
func (s *Store) GPUAffinity() GPUAffinity {
	v, ok, err := s.kv.GetInt(ParametersPath, ValuePreferredVendor)
	if err != nil {
		log.Warn("read gpu affinity", logging.Err(err))
		return GPUAuto
	}
	if !ok {
		return GPUAuto
	}
	g := GPUAffinity(v)
	if v > 0xFFFFFFFF || !g.Known() {
		log.Warn("unrecognized gpu vendor", "value", v)
		return GPUAuto
	}
	return g
}

// SetGPUAffinity stores the preferred render GPU. GPUAuto removes the value.
func (s *Store) SetGPUAffinity(g GPUAffinity) error {
	if !g.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownVendor, g)
	}
	if err := s.checkElevated(privilege.OpSetGPUAffinity); err != nil {
		return err
	}

	var err error
	if g == GPUAuto {
		err = s.kv.DeleteValue(ParametersPath, ValuePreferredVendor)
	} else {
		err = s.kv.SetDWord(ParametersPath, ValuePreferredVendor, uint32(g))
	}
	if err != nil {
		return fmt.Errorf("prefs: write gpu affinity: %w", err)
	}
	log.Info("gpu affinity updated", "gpu", g.String())
	return nil
}

func (s *Store) checkElevated(op string) error {
	if privilege.RequiresElevation(op) && !s.elevated() {
		return fmt.Errorf("%w: %s requires elevation", ErrPermissionDenied, op)
	}
	return nil
}
