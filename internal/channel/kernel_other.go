//go:build !windows

package channel

import "fmt"

// The adapter only exists on Windows.
func openKernel(adapterGUID string) (kernel, string, error) {
	return nil, "", fmt.Errorf("%w: unsupported platform", ErrDeviceNotFound)
}
