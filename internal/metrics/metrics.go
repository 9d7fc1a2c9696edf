// Package metrics accumulates the running counters and throughput samples
// the orchestrator publishes through Callbacks.MetricsSnapshot.
package metrics

import (
	"sync"
	"time"

	"forensiccopy/internal/model"
)

// maxSamples bounds the sliding window of instantaneous speed samples kept
// for the snapshot's Samples field. The average is computed from the byte
// counter and elapsed time, and the peak is tracked over every sample ever
// recorded, so neither depends on the window.
const maxSamples = 600

// Tracker accumulates cumulative counters and a bounded window of
// instantaneous throughput samples. All methods are safe for concurrent
// use by multiple copy-core workers.
type Tracker struct {
	mu sync.Mutex

	bytesCopied    int64
	filesProcessed int64
	histogram      model.SizeHistogram
	diskReadsSaved int64

	samples   []model.SpeedSample
	peakSpeed float64
	startedAt time.Time
}

// New returns a Tracker with its clock started at construction time.
func New() *Tracker {
	return &Tracker{startedAt: time.Now()}
}

// RecordSample folds one throughput sample (bytesDelta transferred over
// elapsed wall-clock time) into the sliding window and updates the peak.
func (tr *Tracker) RecordSample(bytesDelta int64, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	speed := (float64(bytesDelta) / (1024 * 1024)) / elapsed.Seconds()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.samples = append(tr.samples, model.SpeedSample{At: time.Now(), SpeedMBPS: speed})
	if len(tr.samples) > maxSamples {
		tr.samples = tr.samples[len(tr.samples)-maxSamples:]
	}
	if speed > tr.peakSpeed {
		tr.peakSpeed = speed
	}
}

// RecordFile folds one completed file outcome into the cumulative counters.
func (tr *Tracker) RecordFile(outcome model.FileOutcome, diskReadSaved bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.bytesCopied += outcome.Bytes
	tr.filesProcessed++
	switch {
	case outcome.Bytes < model.SmallFileThreshold:
		tr.histogram.Small++
	case outcome.Bytes < 100*1024*1024:
		tr.histogram.Medium++
	default:
		tr.histogram.Large++
	}
	if diskReadSaved {
		tr.diskReadsSaved++
	}
}

// Snapshot returns a point-in-time, race-free copy of the tracker's state.
func (tr *Tracker) Snapshot() model.MetricsSnapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	current := 0.0
	if len(tr.samples) > 0 {
		current = tr.samples[len(tr.samples)-1].SpeedMBPS
	}

	avg := 0.0
	if elapsed := time.Since(tr.startedAt); elapsed > 0 {
		avg = (float64(tr.bytesCopied) / (1024 * 1024)) / elapsed.Seconds()
	}

	// The instantaneous rate must have met or exceeded the running average
	// at some point; small-file bursts finish between samples, so the
	// recorded peak is floored at the average to keep that relation true.
	peak := tr.peakSpeed
	if peak < avg {
		peak = avg
	}

	samplesCopy := make([]model.SpeedSample, len(tr.samples))
	copy(samplesCopy, tr.samples)

	return model.MetricsSnapshot{
		BytesCopied:      tr.bytesCopied,
		FilesProcessed:   tr.filesProcessed,
		SizeHistogram:    tr.histogram,
		CurrentSpeedMBPS: current,
		PeakSpeedMBPS:    peak,
		AvgSpeedMBPS:     avg,
		DiskReadsSaved:   tr.diskReadsSaved,
		Samples:          samplesCopy,
	}
}

// Elapsed returns the wall-clock duration since the tracker was created.
func (tr *Tracker) Elapsed() time.Duration {
	return time.Since(tr.startedAt)
}

// Throttle returns a function that invokes fn at most once per interval,
// always allowing the first call through immediately. Used to cap
// Callbacks.Progress / Callbacks.MetricsSnapshot at ~10Hz.
func Throttle(interval time.Duration, fn func()) func() {
	var mu sync.Mutex
	var last time.Time
	return func() {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if last.IsZero() || now.Sub(last) >= interval {
			last = now
			fn()
		}
	}
}
