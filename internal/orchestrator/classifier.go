// Package orchestrator runs one full operation: it materialises empty
// directories, classifies the destination's storage so it can pick a safe
// worker count, fans file items out across a bounded worker pool (or
// processes them sequentially for moves), and folds every per-file outcome
// into the aggregate result the public engine returns.
package orchestrator

import (
	"os"
	"runtime"
	"strings"
)

// ClassifyWorkers returns the worker count the orchestrator should use for
// parallel copies from src to dst, honoring an explicit override when
// positive. Parallel copies only pay off when both sides are solid-state:
// a spinning disk on either end gets a conservative single-worker cap
// (parallel reads would thrash the head and slow every stream down), while
// solid-state or unknown media on both ends uses up to the number of
// logical CPUs, capped at 8.
func ClassifyWorkers(src, dst string, override int) int {
	if override > 0 {
		return override
	}
	if isRotational(src) || isRotational(dst) {
		return 1
	}
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// isRotational reports whether dst's backing block device is a spinning
// disk. It is best-effort: any failure to resolve the device is treated as
// non-rotational (solid-state), since that's the safer default for worker
// concurrency and matches what happens on platforms without /sys/block.
func isRotational(dst string) bool {
	dev, ok := blockDeviceFor(dst)
	if !ok {
		return false
	}
	data, err := os.ReadFile("/sys/block/" + dev + "/queue/rotational")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// blockDeviceFor resolves the bare block device name (e.g. "sda") backing
// the filesystem containing path. It only has a real implementation on
// unix; see classifier_unix.go / classifier_windows.go.
func blockDeviceFor(path string) (string, bool) {
	return platformBlockDeviceFor(path)
}
