//go:build !windows

package orchestrator

import (
	"os"
	"strconv"
	"strings"
	"syscall"
)

// platformBlockDeviceFor walks /sys/dev/block/<major>:<minor> to its target
// and returns the leaf device name (e.g. "sda" for a partition "sda1"),
// following the symlink chain the kernel exposes under /sys.
func platformBlockDeviceFor(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", false
	}
	major := (stat.Dev >> 8) & 0xfff
	minor := stat.Dev & 0xff
	link := "/sys/dev/block/" + strconv.FormatUint(uint64(major), 10) + ":" + strconv.FormatUint(uint64(minor), 10)
	target, err := os.Readlink(link)
	if err != nil {
		return "", false
	}
	name := target[strings.LastIndex(target, "/")+1:]
	// Partitions resolve to e.g. "sda1" nested under "../sda/sda1"; the
	// rotational flag lives one level up on the whole-disk device.
	if parent := parentDiskName(name); parent != "" {
		return parent, true
	}
	return name, true
}

// parentDiskName strips a trailing partition suffix ("sda1" -> "sda",
// "nvme0n1p1" -> "nvme0n1"). It returns "" when name has no recognized
// partition suffix, meaning name is already a whole-disk device.
func parentDiskName(name string) string {
	trimmed := strings.TrimRight(name, "0123456789")
	if trimmed == name || trimmed == "" {
		return ""
	}
	if strings.HasPrefix(name, "nvme") && strings.Contains(trimmed, "p") {
		return strings.TrimSuffix(trimmed, "p")
	}
	if strings.HasPrefix(name, "nvme") {
		return ""
	}
	return trimmed
}
