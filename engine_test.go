package forensiccopy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"forensiccopy/errs"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun_ForensicCopySingleMediumFile(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	data := make([]byte, 10*1024*1024)
	for i := range data {
		data[i] = byte(i)
	}
	src := filepath.Join(srcDir, "evidence.bin")
	writeFile(t, src, data)

	outcome, err := Run(context.Background(), []string{src}, dstDir, Options{CalculateHash: true, HashAlgorithm: SHA256}, Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success")
	}
	if outcome.BytesProcessed != int64(len(data)) {
		t.Fatalf("bytes processed = %d, want %d", outcome.BytesProcessed, len(data))
	}
	if outcome.DiskReadsSaved != 1 {
		t.Fatalf("disk reads saved = %d, want 1", outcome.DiskReadsSaved)
	}
	fo, ok := outcome.PerFile["evidence.bin"]
	if !ok {
		t.Fatalf("missing outcome for evidence.bin")
	}
	if !fo.Verified || fo.SourceHash != fo.DestHash {
		t.Fatalf("expected verified outcome with matching hashes")
	}
	got, err := os.ReadFile(filepath.Join(dstDir, "evidence.bin"))
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("destination content mismatch")
	}
}

func TestRun_PreserveStructureMixedSelection(t *testing.T) {
	root := t.TempDir()
	x := filepath.Join(root, "A", "B", "C", "x.txt")
	y := filepath.Join(root, "A", "B", "C", "y.txt")
	z := filepath.Join(root, "A", "B", "D", "z.txt")
	writeFile(t, x, []byte("x"))
	writeFile(t, y, []byte("y"))
	writeFile(t, z, []byte("z"))

	dst := t.TempDir()
	outcome, err := Run(context.Background(), []string{x, y, z}, dst, Options{PreserveStructure: true}, Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success")
	}
	for _, want := range []string{
		filepath.Join("B", "C", "x.txt"),
		filepath.Join("B", "C", "y.txt"),
		filepath.Join("B", "D", "z.txt"),
	} {
		if _, err := os.Stat(filepath.Join(dst, want)); err != nil {
			t.Fatalf("expected %s to exist under destination: %v", want, err)
		}
	}
}

func TestRun_EmptySelectionsIsPlanningError(t *testing.T) {
	dst := t.TempDir()
	outcome, err := Run(context.Background(), nil, dst, Options{}, Callbacks{})
	if err == nil {
		t.Fatalf("expected a planning error for empty selections")
	}
	if !errors.Is(err, errs.Sentinel(errs.Planning)) {
		t.Fatalf("expected a Planning error, got %v", err)
	}
	if outcome.Success {
		t.Fatalf("expected Success=false")
	}
	entries, readErr := os.ReadDir(dst)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no side effects in destination, found %v", entries)
	}
}

func TestRun_CancellationMidStreamReportsFailure(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	data := bytes.Repeat([]byte("c"), 5*1024*1024)
	src := filepath.Join(srcDir, "big.bin")
	writeFile(t, src, data)

	ctx, cancel := context.WithCancel(context.Background())
	var reads int
	cb := Callbacks{Cancelled: func() bool {
		reads++
		if reads == 3 {
			cancel()
		}
		return false
	}}

	outcome, err := Run(ctx, []string{src}, dstDir, Options{CalculateHash: true, BufferSizeBytes: 64 * 1024}, cb)
	if err == nil {
		t.Fatalf("expected a cancellation error")
	}
	if outcome.Success {
		t.Fatalf("expected Success=false after cancellation")
	}
}

func TestRun_ParallelCopyOfManySmallFiles(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	const fileCount = 100
	const fileSize = 64 * 1024
	var total int64
	for i := 0; i < fileCount; i++ {
		data := bytes.Repeat([]byte{byte(i)}, fileSize)
		writeFile(t, filepath.Join(srcDir, fmt.Sprintf("chunk-%03d.bin", i)), data)
		total += fileSize
	}

	opts := Options{CalculateHash: true, HashAlgorithm: SHA256, MaxParallelWorkers: 4}
	outcome, err := Run(context.Background(), []string{srcDir}, dstDir, opts, Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got err=%v", outcome.Err)
	}
	if outcome.FilesProcessed != fileCount {
		t.Fatalf("files processed = %d, want %d", outcome.FilesProcessed, fileCount)
	}
	if outcome.BytesProcessed != total {
		t.Fatalf("bytes processed = %d, want %d", outcome.BytesProcessed, total)
	}
	if len(outcome.PerFile) != fileCount {
		t.Fatalf("expected %d per-file outcomes, got %d", fileCount, len(outcome.PerFile))
	}
	for rel, fo := range outcome.PerFile {
		if !fo.Verified {
			t.Fatalf("expected %s to verify", rel)
		}
	}
	if outcome.PeakSpeedMBPS < outcome.AvgSpeedMBPS {
		t.Fatalf("peak speed %f below average %f", outcome.PeakSpeedMBPS, outcome.AvgSpeedMBPS)
	}
}

func TestRun_CancelledCallbackStopsBeforeAnyWork(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "a.txt"), []byte("a"))
	writeFile(t, filepath.Join(srcDir, "b.txt"), []byte("b"))

	cb := Callbacks{Cancelled: func() bool { return true }}
	outcome, err := Run(context.Background(), []string{srcDir}, dstDir, Options{CalculateHash: true}, cb)
	if err == nil {
		t.Fatalf("expected a cancellation error")
	}
	if outcome.Success {
		t.Fatalf("expected Success=false")
	}
	if !errors.Is(outcome.Err, errs.Sentinel(errs.Cancelled)) {
		t.Fatalf("expected a Cancelled aggregate error, got %v", outcome.Err)
	}
	if outcome.FilesProcessed != 0 {
		t.Fatalf("expected no files processed, got %d", outcome.FilesProcessed)
	}
}

func TestRun_DestinationRootIsCreatedWhenMissing(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	writeFile(t, src, []byte("hi"))

	dst := filepath.Join(t.TempDir(), "nested", "dest")
	outcome, err := Run(context.Background(), []string{src}, dst, Options{}, Callbacks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success")
	}
	if _, statErr := os.Stat(filepath.Join(dst, "a.txt")); statErr != nil {
		t.Fatalf("expected destination file to exist: %v", statErr)
	}
}
