// Package forensiccopy is the evidence-copy engine: a streaming copy/move
// library that reads each file exactly twice under the forensic integrity
// contract (source hashed while written, destination re-hashed from disk),
// chooses rename vs copy per policy and filesystem probe, preserves
// directory structure, and reports fine-grained progress with cooperative
// pause/cancel. It is a library with callbacks — no GUI, no CLI, no wire
// protocol; see cmd/forensiccopy for a command-line consumer.
package forensiccopy

import (
	"context"
	"os"

	"forensiccopy/errs"
	"forensiccopy/internal/model"
	"forensiccopy/internal/orchestrator"
	"forensiccopy/internal/planner"
)

// Re-exported so callers never need to import the internal packages
// directly; forensiccopy is the only package meant to be imported.
type (
	Options          = model.Options
	Callbacks        = model.Callbacks
	AggregateOutcome = model.AggregateOutcome
	FileOutcome      = model.FileOutcome
	MetricsSnapshot  = model.MetricsSnapshot
	SpeedSample      = model.SpeedSample
	SizeHistogram    = model.SizeHistogram
	HashAlgorithm    = model.HashAlgorithm
	SameDrivePolicy  = model.SameDrivePolicy
	OperationKind    = model.OperationKind
	PlanItem         = model.PlanItem
	Warning          = model.Warning
	Plan             = model.Plan
)

const (
	SHA256 = model.SHA256
	MD5    = model.MD5

	AlwaysCopy = model.AlwaysCopy
	AlwaysMove = model.AlwaysMove
	Ask        = model.Ask

	OpCopy = model.OpCopy
	OpMove = model.OpMove
)

const (
	MinBufferSize = model.MinBufferSize
	MaxBufferSize = model.MaxBufferSize
)

// Run expands selections into a plan under destinationRoot and executes it
// according to opts, invoking cb's callbacks as work proceeds. It returns
// the complete AggregateOutcome together with the run-aborting error, if
// any — the same value as outcome.Err, returned again so callers that only
// check the error get the usual Go idiom for free.
//
// ctx cancellation is merged with cb.Cancelled: either one observed true
// stops the run at the next chunk boundary.
func Run(ctx context.Context, selections []string, destinationRoot string, opts Options, cb Callbacks) (AggregateOutcome, error) {
	opts.Normalize()
	cb = mergeContextCancellation(ctx, cb)

	if len(selections) == 0 {
		err := errs.New(errs.Planning, "no selections provided", "Select at least one file or folder to copy.")
		return model.AggregateOutcome{Err: err, Errors: []error{err}}, err
	}

	if err := ensureWritableDestination(destinationRoot); err != nil {
		return model.AggregateOutcome{Err: err, Errors: []error{err}}, err
	}

	plan, err := planner.Build(selections, opts.PreserveStructure)
	if err != nil {
		wrapped := errs.Wrap(errs.Planning, "build plan", "Could not resolve the selected files and folders.", err)
		return model.AggregateOutcome{Err: wrapped, Errors: []error{wrapped}}, wrapped
	}

	outcome := orchestrator.Run(plan, destinationRoot, opts, cb)
	return outcome, outcome.Err
}

// BuildPlan expands selections into a Plan without executing any copy or
// move, for callers that want file/byte totals and planning warnings up
// front.
func BuildPlan(selections []string, preserveStructure bool) (Plan, error) {
	return planner.Build(selections, preserveStructure)
}

// ensureWritableDestination creates destinationRoot if needed and confirms
// the caller can actually write into it, failing fast with a PlanningError
// rather than letting the first file's mkdir/open surface the problem deep
// inside the copy core.
func ensureWritableDestination(destinationRoot string) error {
	if destinationRoot == "" {
		return errs.New(errs.Planning, "destination root is empty", "Choose a destination folder.")
	}
	if err := os.MkdirAll(destinationRoot, 0o755); err != nil {
		return errs.Wrap(errs.Planning, "create destination root", "Could not create or access the destination folder.", err).
			WithContext("path", destinationRoot)
	}
	probe, err := os.CreateTemp(destinationRoot, ".forensiccopy-probe-*")
	if err != nil {
		return errs.Wrap(errs.Planning, "probe destination writability", "Destination folder is not writable.", err).
			WithContext("path", destinationRoot)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// mergeContextCancellation returns a Callbacks whose Cancelled also reports
// true once ctx is done, without disturbing any Cancelled the caller set.
func mergeContextCancellation(ctx context.Context, cb Callbacks) Callbacks {
	if ctx == nil {
		return cb
	}
	userCancelled := cb.Cancelled
	cb.Cancelled = func() bool {
		if ctx.Err() != nil {
			return true
		}
		return userCancelled != nil && userCancelled()
	}
	return cb
}
