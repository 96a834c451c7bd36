package prefs

import (
	"strings"
	"sync"
)

// KeyStore is the small slice of a hierarchical key-value store the
// preferences need. Paths use backslash separators.
type KeyStore interface {
	// GetInt reads an integer value. ok is false when the key or value does
	// not exist.
	GetInt(path, name string) (v uint64, ok bool, err error)
	// SetDWord writes a 32-bit value, creating the key if needed.
	SetDWord(path, name string, v uint32) error
	// DeleteValue removes a value. A missing value is not an error.
	DeleteValue(path, name string) error
	// DeleteKey removes a leaf key and its values. A missing key is not an error.
	DeleteKey(path string) error
}

// MemoryStore is an in-process KeyStore. Key paths and value names are case
// insensitive, as in the registry.
type MemoryStore struct {
	mu       sync.Mutex
	keys     map[string]map[string]uint64
	ReadOnly bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]map[string]uint64)}
}

func (m *MemoryStore) GetInt(path, name string) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals, ok := m.keys[strings.ToLower(path)]
	if !ok {
		return 0, false, nil
	}
	v, ok := vals[strings.ToLower(name)]
	return v, ok, nil
}

// SetInt writes any integer; it lets tests store values a DWORD cannot hold.
func (m *MemoryStore) SetInt(path, name string, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadOnly {
		return ErrPermissionDenied
	}
	k := strings.ToLower(path)
	if m.keys[k] == nil {
		m.keys[k] = make(map[string]uint64)
	}
	m.keys[k][strings.ToLower(name)] = v
	return nil
}

func (m *MemoryStore) SetDWord(path, name string, v uint32) error {
	return m.SetInt(path, name, uint64(v))
}

func (m *MemoryStore) DeleteValue(path, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadOnly {
		return ErrPermissionDenied
	}
	if vals, ok := m.keys[strings.ToLower(path)]; ok {
		delete(vals, strings.ToLower(name))
	}
	return nil
}

func (m *MemoryStore) DeleteKey(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadOnly {
		return ErrPermissionDenied
	}
	delete(m.keys, strings.ToLower(path))
	return nil
}

// HasKey reports whether the key exists.
func (m *MemoryStore) HasKey(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[strings.ToLower(path)]
	return ok
}
