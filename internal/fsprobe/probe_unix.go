//go:build !windows

package fsprobe

import (
	"os"
	"syscall"
)

// deviceID returns the unix device identifier for path, used to decide
// whether two paths share a filesystem.
func deviceID(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, errNoStatT
	}
	return uint64(stat.Dev), nil
}

// hasShortPathLimit is false on unix-like platforms: no practical short-path
// limit exists there.
func hasShortPathLimit() bool { return false }

// extendedForm is the identity on unix: there is no extended-path prefix.
func extendedForm(path string) string { return path }

var errNoStatT = errUnsupportedStat{}

type errUnsupportedStat struct{}

func (errUnsupportedStat) Error() string { return "fsprobe: unsupported stat_t on this platform" }
