// Package fsprobe answers two advisory questions for the orchestrator:
// whether a source and destination share a filesystem (device identity),
// and whether a resolved path exceeds the platform's short-path limit.
package fsprobe

import (
	"os"
	"path/filepath"

	"forensiccopy/internal/model"
)

// Result is the advisory probe outcome for one (source, destination) pair.
type Result struct {
	SameDevice    bool
	NeedsLongPath bool
}

// SameFilesystem resolves both paths (following symlinks; if dst does not
// yet exist, its nearest existing ancestor is resolved instead) and reports
// whether they share a device identifier. Any resolution failure is conservative: it returns
// false, which forces the orchestrator into copy mode.
func SameFilesystem(src, dst string) bool {
	srcResolved, err := resolveExisting(src)
	if err != nil {
		return false
	}
	dstResolved, err := resolveForDestination(dst)
	if err != nil {
		return false
	}
	srcDev, err := deviceID(srcResolved)
	if err != nil {
		return false
	}
	dstDev, err := deviceID(dstResolved)
	if err != nil {
		return false
	}
	return srcDev == dstDev
}

func resolveExisting(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

// resolveForDestination walks up from dst to the nearest ancestor that
// already exists and resolves that, since the copy/move has not happened
// yet and the destination tree may be several mkdirs away from existing.
func resolveForDestination(dst string) (string, error) {
	p := dst
	for {
		if _, err := os.Lstat(p); err == nil {
			return filepath.EvalSymlinks(p)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.EvalSymlinks(p)
		}
		p = parent
	}
}

// NeedsLongPath reports whether the resolved absolute path's length exceeds
// threshold. Platforms without a short-path limit always report false (see
// the build-tagged platform implementations of hasShortPathLimit).
func NeedsLongPath(path string, threshold int) bool {
	if threshold <= 0 {
		threshold = model.DefaultLongPathThreshold
	}
	if !hasShortPathLimit() {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return len(abs) > threshold
}

// ExtendedForm returns path in the platform's extended-path form when one
// exists (the \\?\ prefix on Windows); elsewhere it returns path unchanged.
// Callers that rewrite one path of a (source, destination) pair must
// rewrite the other too, so the pair never straddles two path namespaces.
func ExtendedForm(path string) string {
	return extendedForm(path)
}

// Probe computes both advisory results for one (source, destination) pair.
func Probe(src, dst string, longPathThreshold int) Result {
	return Result{
		SameDevice:    SameFilesystem(src, dst),
		NeedsLongPath: NeedsLongPath(dst, longPathThreshold),
	}
}
