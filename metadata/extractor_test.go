package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCaptureTime_FallsBackToMtimeForNonEXIFExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := CaptureTime(path, ".txt")
	if res.Confidence != ConfidenceLow {
		t.Fatalf("expected ConfidenceLow fallback, got %v", res.Confidence)
	}
	if res.Time.IsZero() {
		t.Fatalf("expected a non-zero mtime")
	}
}

func TestCaptureTime_MissingFileYieldsNoConfidence(t *testing.T) {
	res := CaptureTime("/nonexistent/path/x.jpg", ".jpg")
	if res.Confidence != ConfidenceNone {
		t.Fatalf("expected ConfidenceNone for a missing file, got %v", res.Confidence)
	}
	if res.Annotate() != "" {
		t.Fatalf("expected empty annotation for ConfidenceNone, got %q", res.Annotate())
	}
}
