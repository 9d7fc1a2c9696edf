package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"forensiccopy"
)

// progressReporter drives a schollz/progressbar bar from the engine's
// throttled Progress/MetricsSnapshot callbacks.
type progressReporter struct {
	bar *progressbar.ProgressBar
}

func newProgressReporter(totalSelections int) *progressReporter {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Ingesting evidence"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &progressReporter{bar: bar}
}

func (r *progressReporter) onProgress(percentage int, message string) {
	r.bar.Describe(fmt.Sprintf("Ingesting evidence: %s", message))
	r.bar.Set(percentage)
}

func (r *progressReporter) onMetrics(snap forensiccopy.MetricsSnapshot) {
	r.bar.Describe(fmt.Sprintf("Ingesting evidence: %s/s (peak %s/s)",
		humanize.Bytes(uint64(snap.CurrentSpeedMBPS*1024*1024)),
		humanize.Bytes(uint64(snap.PeakSpeedMBPS*1024*1024))))
}

func (r *progressReporter) finish() {
	r.bar.Finish()
	fmt.Println()
}

func printSummary(outcome forensiccopy.AggregateOutcome) {
	status := color.New(color.FgGreen, color.Bold).Sprint("SUCCESS")
	if !outcome.Success {
		status = color.New(color.FgRed, color.Bold).Sprint("FAILED")
	}
	fmt.Printf("%s  files=%d bytes=%s avg=%.1fMB/s peak=%.1fMB/s disk-reads-saved=%d\n",
		status, outcome.FilesProcessed, humanize.Bytes(uint64(outcome.BytesProcessed)),
		outcome.AvgSpeedMBPS, outcome.PeakSpeedMBPS, outcome.DiskReadsSaved)
	fmt.Printf("  size classes: small=%d medium=%d large=%d\n",
		outcome.SizeHistogram.Small, outcome.SizeHistogram.Medium, outcome.SizeHistogram.Large)
	if outcome.Err != nil {
		color.New(color.FgRed).Printf("  run error: %v\n", outcome.Err)
	}
	for _, rbErr := range outcome.RollbackErrors {
		color.New(color.FgRed).Printf("  rollback error: %v\n", rbErr)
	}
}
