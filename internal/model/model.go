// Package model holds the data types shared by every engine component
// (planner, probe, copy core, orchestrator, metrics) so that none of them
// needs to import the public forensiccopy package, which instead imports
// model and re-exports the names callers see.
package model

import "time"

// ItemKind distinguishes a plan item that names a single file from one that
// names a directory (tracked only for the empty-directory set).
type ItemKind int

const (
	KindFile ItemKind = iota
	KindDirectory
)

// PlanItem is one entry in a Plan: a source path and where it lands under
// the destination root. With HasRelative false the item is placed under the
// destination root using the source's basename (flat-mode file
// selections); with HasRelative true the destination is destRoot/Relative
// (preserved mode, and flat-mode directory walks, whose Relative is the
// basename).
type PlanItem struct {
	Kind        ItemKind
	Source      string
	Relative    string
	HasRelative bool
}

// Warning is a non-fatal planning-time note: an unreadable source, a
// skipped entry, or an EXIF-derived annotation on a basename collision.
type Warning struct {
	Path   string
	Reason string
}

// Plan is the materialised, immutable result of the planner: every file and
// empty directory to place under the destination, plus aggregate totals.
type Plan struct {
	Items      []PlanItem
	EmptyDirs  []string
	FileCount  int
	TotalBytes int64
	Warnings   []Warning
}

// OperationKind records whether a given file outcome resulted from a move
// (same-filesystem rename, or rename-fallback copy-then-delete) or a copy.
type OperationKind int

const (
	OpCopy OperationKind = iota
	OpMove
)

func (o OperationKind) String() string {
	if o == OpMove {
		return "move"
	}
	return "copy"
}

// FileOutcome is the result of processing a single plan item.
//
// Invariant: for a successful outcome with hashing enabled,
// SourceHash == DestHash iff Verified is true.
type FileOutcome struct {
	Source      string
	Destination string
	Bytes       int64
	SourceHash  string
	DestHash    string
	Verified    bool
	Operation   OperationKind
	Duration    time.Duration
	SpeedMBPS   float64
	Err         error
}

// SizeHistogram buckets processed files by size class: small (<1MB),
// medium (<100MB), large (>=100MB).
type SizeHistogram struct {
	Small  int
	Medium int
	Large  int
}

// AggregateOutcome is what Run returns: the complete accounting of one
// invocation, including every per-file outcome keyed by its relative
// destination path.
type AggregateOutcome struct {
	FilesProcessed int64
	BytesProcessed int64
	Duration       time.Duration
	AvgSpeedMBPS   float64
	PeakSpeedMBPS  float64
	SizeHistogram  SizeHistogram
	DiskReadsSaved int64
	PerFile        map[string]FileOutcome
	Errors         []error
	RollbackErrors []error
	Success        bool
	// Err is the run-aborting error, if any: the first unrecoverable
	// per-file error, a hash mismatch, or OperationCancelled. Per-file
	// outcomes gathered before the abort are preserved in PerFile.
	Err error
}

// HashAlgorithm selects the digest used by the Streaming Copy Core. The
// algorithm is fixed for the whole operation; it is never changed mid-run.
type HashAlgorithm int

const (
	SHA256 HashAlgorithm = iota
	MD5
)

func (h HashAlgorithm) String() string {
	if h == MD5 {
		return "md5"
	}
	return "sha256"
}

// SameDrivePolicy selects how the orchestrator chooses between a rename and
// a full copy for items that share a filesystem with the destination.
type SameDrivePolicy int

const (
	AlwaysCopy SameDrivePolicy = iota
	AlwaysMove
	Ask
)

const (
	MinBufferSize = 8 * 1024
	MaxBufferSize = 10 * 1024 * 1024
	// SmallFileThreshold is the size below which the Copy Core takes the
	// whole-file-in-memory fast path instead of streaming chunks.
	SmallFileThreshold = 1_000_000
	// DefaultLongPathThreshold is the short-path limit (in characters)
	// past which the extended-path form is required on platforms that
	// have one.
	DefaultLongPathThreshold = 248
)

// Options configures one Run invocation.
type Options struct {
	PreserveStructure   bool
	CalculateHash       bool
	HashAlgorithm       HashAlgorithm
	BufferSizeBytes     int
	SameDrivePolicy     SameDrivePolicy
	MaxParallelWorkers  int
	VerifyOnReadFailure bool
}

// Normalize clamps buffer size in place and floors a negative
// MaxParallelWorkers to 0. A MaxParallelWorkers of 0 is left unresolved
// here deliberately: the orchestrator's ClassifyWorkers derives the actual
// default (CPU count capped at 8, further gated by the storage profile) at
// the start of each run, since that decision depends on the destination
// path Normalize doesn't have.
func (o *Options) Normalize() {
	if o.BufferSizeBytes < MinBufferSize {
		o.BufferSizeBytes = MinBufferSize
	}
	if o.BufferSizeBytes > MaxBufferSize {
		o.BufferSizeBytes = MaxBufferSize
	}
	if o.MaxParallelWorkers < 0 {
		o.MaxParallelWorkers = 0
	}
}

// MetricsSnapshot is a point-in-time, read-only copy of the orchestrator's
// running counters, handed to Callbacks.MetricsSnapshot.
type MetricsSnapshot struct {
	BytesCopied      int64
	FilesProcessed   int64
	SizeHistogram    SizeHistogram
	CurrentSpeedMBPS float64
	PeakSpeedMBPS    float64
	AvgSpeedMBPS     float64
	DiskReadsSaved   int64
	Samples          []SpeedSample
}

// SpeedSample is one entry in the sliding window of instantaneous
// throughput samples taken inside the streaming loop.
type SpeedSample struct {
	At        time.Time
	SpeedMBPS float64
}

// Callbacks are all optional. Every one of them may be invoked from a
// worker goroutine; the caller is responsible for routing to its own UI
// thread (or channel) if it needs that.
type Callbacks struct {
	// Progress is called from the streaming loop at most once per 100ms
	// (only when the plan carries a byte total), and additionally once
	// after every completed file; the per-file calls are not throttled.
	Progress func(percentage int, message string)
	// Cancelled is polled once per chunk inside the Copy Core.
	Cancelled func() bool
	// PauseCheck blocks until resume or cancel; called once per chunk.
	PauseCheck func()
	// MetricsSnapshot is invoked alongside the throttled streaming-loop
	// Progress calls (at most once per 100ms); it is not invoked on file
	// completion.
	MetricsSnapshot func(snapshot MetricsSnapshot)
	// Log receives human-readable operational messages. Nil is fine; the
	// engine never panics for a missing logger.
	Log func(format string, args ...any)
	// DecideSameDrive is consulted when SameDrivePolicy is Ask. A nil
	// callback behaves as AlwaysCopy, matching the source tool's
	// documented current behavior pending a wired decision dialog.
	DecideSameDrive func(item PlanItem) (SameDrivePolicy, error)
}

func (c Callbacks) Logf(format string, args ...any) {
	if c.Log != nil {
		c.Log(format, args...)
	}
}

func (c Callbacks) IsCancelled() bool {
	return c.Cancelled != nil && c.Cancelled()
}

func (c Callbacks) Pause() {
	if c.PauseCheck != nil {
		c.PauseCheck()
	}
}

func (c Callbacks) Progressf(pct int, msg string) {
	if c.Progress != nil {
		c.Progress(pct, msg)
	}
}
