//go:build windows

package fsprobe

import (
	"path/filepath"
	"strings"
	"syscall"
)

// deviceID returns the Windows volume serial number for path's drive,
// mirroring the unix device-identifier comparison.
func deviceID(path string) (uint64, error) {
	root := filepath.VolumeName(path) + `\`
	pathPtr, err := syscall.UTF16PtrFromString(root)
	if err != nil {
		return 0, err
	}
	var volumeSerial uint32
	err = syscall.GetVolumeInformation(pathPtr, nil, 0, &volumeSerial, nil, nil, nil, 0)
	if err != nil {
		return 0, err
	}
	return uint64(volumeSerial), nil
}

// hasShortPathLimit is true on Windows: MAX_PATH and its extended-path
// workaround apply.
func hasShortPathLimit() bool { return true }

// extendedForm rewrites path into the \\?\ namespace (\\?\UNC\ for network
// shares) so calls on paths past the short-path limit reach the filesystem
// instead of failing with a path-too-long error.
func extendedForm(path string) string {
	if strings.HasPrefix(path, `\\?\`) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if strings.HasPrefix(abs, `\\`) {
		return `\\?\UNC\` + strings.TrimPrefix(abs, `\\`)
	}
	return `\\?\` + abs
}
