package metrics

import (
	"testing"
	"time"

	"forensiccopy/internal/model"
)

func TestTracker_RecordFileBucketsBySize(t *testing.T) {
	tr := New()
	tr.RecordFile(model.FileOutcome{Bytes: 500}, false)
	tr.RecordFile(model.FileOutcome{Bytes: 5 * 1024 * 1024}, true)
	tr.RecordFile(model.FileOutcome{Bytes: 200 * 1024 * 1024}, true)

	snap := tr.Snapshot()
	if snap.SizeHistogram.Small != 1 || snap.SizeHistogram.Medium != 1 || snap.SizeHistogram.Large != 1 {
		t.Fatalf("unexpected histogram: %+v", snap.SizeHistogram)
	}
	if snap.FilesProcessed != 3 {
		t.Fatalf("expected 3 files processed, got %d", snap.FilesProcessed)
	}
	if snap.DiskReadsSaved != 2 {
		t.Fatalf("expected 2 disk reads saved, got %d", snap.DiskReadsSaved)
	}
	if snap.BytesCopied != 500+5*1024*1024+200*1024*1024 {
		t.Fatalf("unexpected bytes copied total: %d", snap.BytesCopied)
	}
}

func TestTracker_RecordSampleTracksPeak(t *testing.T) {
	tr := New()
	tr.RecordSample(10*1024*1024, time.Second)
	tr.RecordSample(50*1024*1024, time.Second)
	tr.RecordSample(5*1024*1024, time.Second)

	snap := tr.Snapshot()
	if snap.PeakSpeedMBPS < 49 || snap.PeakSpeedMBPS > 51 {
		t.Fatalf("expected peak around 50 MB/s, got %f", snap.PeakSpeedMBPS)
	}
	if snap.CurrentSpeedMBPS < 4 || snap.CurrentSpeedMBPS > 6 {
		t.Fatalf("expected current speed around 5 MB/s (most recent sample), got %f", snap.CurrentSpeedMBPS)
	}
	if len(snap.Samples) != 3 {
		t.Fatalf("expected 3 retained samples, got %d", len(snap.Samples))
	}
}

func TestTracker_SampleWindowIsBounded(t *testing.T) {
	tr := New()
	for i := 0; i < maxSamples+50; i++ {
		tr.RecordSample(1024*1024, time.Second)
	}
	snap := tr.Snapshot()
	if len(snap.Samples) != maxSamples {
		t.Fatalf("expected sample window capped at %d, got %d", maxSamples, len(snap.Samples))
	}
}

func TestThrottle_FirstCallAlwaysFires(t *testing.T) {
	var calls int
	fn := Throttle(time.Hour, func() { calls++ })
	fn()
	fn()
	fn()
	if calls != 1 {
		t.Fatalf("expected exactly 1 call within the throttle window, got %d", calls)
	}
}
