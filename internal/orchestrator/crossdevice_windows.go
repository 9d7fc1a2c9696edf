//go:build windows

package orchestrator

import (
	"os"
	"syscall"
)

// errorNotSameDevice is the error code MoveFileEx returns on Windows when
// asked to rename across devices.
const errorNotSameDevice = 0x11

// isCrossDeviceError reports whether err is the failure os.Rename returns
// when src and dst resolve to different devices.
func isCrossDeviceError(err error) bool {
	linkErr, ok := err.(*os.LinkError)
	if !ok {
		return false
	}
	errno, ok := linkErr.Err.(syscall.Errno)
	if !ok {
		return false
	}
	return errno == errorNotSameDevice
}
