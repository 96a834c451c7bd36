//go:build windows

package prefs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// registryStore reads and writes under HKEY_LOCAL_MACHINE.
type registryStore struct {
	root registry.Key
}

// OpenRegistry returns the machine registry KeyStore.
func OpenRegistry() (KeyStore, error) {
	return &registryStore{root: registry.LOCAL_MACHINE}, nil
}

func (r *registryStore) GetInt(path, name string) (uint64, bool, error) {
	key, err := registry.OpenKey(r.root, path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, mapRegistryError(err)
	}
	defer key.Close()

	v, _, err := key.GetIntegerValue(name)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, registry.ErrNotExist):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("value %s: %w", name, mapRegistryError(err))
	}
}

func (r *registryStore) SetDWord(path, name string, v uint32) error {
	key, _, err := registry.CreateKey(r.root, path, registry.SET_VALUE)
	if err != nil {
		return mapRegistryError(err)
	}
	defer key.Close()
	return mapRegistryError(key.SetDWordValue(name, v))
}

func (r *registryStore) DeleteValue(path, name string) error {
	key, err := registry.OpenKey(r.root, path, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return mapRegistryError(err)
	}
	defer key.Close()

	if err := key.DeleteValue(name); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return mapRegistryError(err)
	}
	return nil
}

func (r *registryStore) DeleteKey(path string) error {
	if err := registry.DeleteKey(r.root, path); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return mapRegistryError(err)
	}
	return nil
}

func mapRegistryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return err
}
