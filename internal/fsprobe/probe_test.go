package fsprobe

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestSameFilesystem_SameTempDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "sub", "b.txt")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}

	if !SameFilesystem(src, dst) {
		t.Fatalf("expected %q and %q to share a device", src, dst)
	}
}

func TestSameFilesystem_NonexistentDestResolvesParent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	os.WriteFile(src, []byte("x"), 0o644)
	dst := filepath.Join(dir, "not-yet-created.txt")

	if !SameFilesystem(src, dst) {
		t.Fatalf("expected same device for a not-yet-created destination in the same dir")
	}
}

func TestSameFilesystem_UnresolvableIsConservative(t *testing.T) {
	if SameFilesystem("/no/such/path/at/all", "/also/missing") {
		t.Fatalf("expected false (forces copy) when resolution fails")
	}
}

func TestNeedsLongPath_UnixNeverTrue(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("only meaningful on platforms without a short-path limit")
	}
	longName := strings.Repeat("x", 400)
	if NeedsLongPath("/tmp/"+longName, 248) {
		t.Fatalf("expected NeedsLongPath to be false on a platform without a short-path limit")
	}
}
