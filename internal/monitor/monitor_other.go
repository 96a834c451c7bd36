//go:build !windows

package monitor

// List reports no monitors; the adapter's monitors only appear on Windows.
func List() ([]Info, error) {
	return nil, nil
}
