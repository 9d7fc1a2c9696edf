// Package metadata extracts a best-effort capture time for media files
// selected by the planner. It backs exactly one planner feature: when flat
// mode collapses two different source files onto the same destination
// basename, the collision warning is enriched with each file's capture time
// (when one can be read) so an investigator can tell the files apart
// without re-opening them.
package metadata

import (
	"fmt"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Confidence records how much the caller should trust a CaptureTime result.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow             // filesystem mtime fallback
	ConfidenceHigh            // EXIF capture tag
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// Result is the outcome of a capture-time lookup for one file.
type Result struct {
	Time       time.Time
	Confidence Confidence
	Source     string
}

// exifFields are tried in order of preference: the moment the shutter
// opened beats the moment the file was digitized or last written.
var exifFields = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
}

// exifExtensions lists the extensions goexif can decode EXIF tags from.
var exifExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".heic": true, ".heif": true,
}

// CaptureTime returns the best available capture time for path: an EXIF
// date tag when the extension supports it and the file has one, otherwise
// the filesystem modification time. It never returns an error; a file with
// neither usable EXIF nor a readable mtime yields a zero Result.
func CaptureTime(path, ext string) Result {
	if exifExtensions[ext] {
		if res, ok := fromEXIF(path); ok {
			return res
		}
	}
	if info, err := os.Stat(path); err == nil {
		return Result{Time: info.ModTime(), Confidence: ConfidenceLow, Source: "filesystem mtime"}
	}
	return Result{}
}

func fromEXIF(path string) (Result, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, false
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return Result{}, false
	}

	for _, field := range exifFields {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		dateStr, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.Parse("2006:01:02 15:04:05", dateStr)
		if err != nil {
			continue
		}
		return Result{Time: t, Confidence: ConfidenceHigh, Source: string(field)}, true
	}
	return Result{}, false
}

// Annotate renders a Result as a short human-readable suffix for a planning
// warning message, e.g. " (captured 2024-03-01 10:02:11, DateTimeOriginal)".
func (r Result) Annotate() string {
	if r.Confidence == ConfidenceNone {
		return ""
	}
	return fmt.Sprintf(" (captured %s, %s)", r.Time.Format("2006-01-02 15:04:05"), r.Source)
}
