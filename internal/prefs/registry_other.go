//go:build !windows

package prefs

import "errors"

// OpenRegistry fails: the driver settings live in the Windows registry.
func OpenRegistry() (KeyStore, error) {
	return nil, errors.New("prefs: registry is only supported on Windows")
}
