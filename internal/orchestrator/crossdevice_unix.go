//go:build !windows

package orchestrator

import (
	"os"
	"syscall"
)

// isCrossDeviceError reports whether err is the failure os.Rename returns
// when src and dst resolve to different devices.
func isCrossDeviceError(err error) bool {
	linkErr, ok := err.(*os.LinkError)
	if !ok {
		return false
	}
	return linkErr.Err == syscall.EXDEV
}
