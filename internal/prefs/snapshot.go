package prefs

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Snapshot is the portable form of all driver preferences.
type Snapshot struct {
	Modes []DisplayMode `yaml:"modes"`
	GPU   string        `yaml:"gpu"`
}

// Snapshot reads the current preferences.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{Modes: s.Modes(), GPU: s.GPUAffinity().String()}
}

// Export writes the current preferences as YAML.
func (s *Store) Export(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s.Snapshot()); err != nil {
		return fmt.Errorf("prefs: export: %w", err)
	}
	return enc.Close()
}

// Import applies a YAML snapshot through the privileged setters. The snapshot
// is validated completely before anything is written.
func (s *Store) Import(r io.Reader) error {
	var snap Snapshot
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("prefs: import: %w", err)
	}

	gpu, err := ParseGPUAffinity(snap.GPU)
	if err != nil {
		return err
	}
	if len(snap.Modes) > MaxModes {
		return ErrTooManyModes
	}

	if err := s.SetModes(snap.Modes); err != nil {
		return err
	}
	return s.SetGPUAffinity(gpu)
}
