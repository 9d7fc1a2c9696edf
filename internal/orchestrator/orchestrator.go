package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"forensiccopy/errs"
	"forensiccopy/internal/copycore"
	"forensiccopy/internal/fsprobe"
	"forensiccopy/internal/metrics"
	"forensiccopy/internal/model"
)

// Token is the cooperative cancel/pause control every in-flight worker
// polls. It is channel-based rather than busy-waiting: Cancel closes a
// channel once, and Wait blocks on a paused gate instead of spinning.
type Token struct {
	cancel     chan struct{}
	cancelOnce sync.Once

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewToken returns a ready-to-use Token in the running (not cancelled, not
// paused) state.
func NewToken() *Token {
	return &Token{cancel: make(chan struct{})}
}

// Cancel marks the token cancelled. Safe to call more than once or
// concurrently with Wait/IsCancelled.
func (t *Token) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancel) })
}

// IsCancelled reports whether Cancel has been called.
func (t *Token) IsCancelled() bool {
	select {
	case <-t.cancel:
		return true
	default:
		return false
	}
}

// Pause blocks future Wait calls until Resume is called.
func (t *Token) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return
	}
	t.paused = true
	t.resume = make(chan struct{})
}

// Resume releases any goroutine blocked in Wait.
func (t *Token) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		return
	}
	t.paused = false
	close(t.resume)
}

// Wait blocks until the token is resumed or cancelled. It is the function
// the Copy Core calls once per chunk via copycore.Tokens.Pause.
func (t *Token) Wait() {
	t.mu.Lock()
	if !t.paused {
		t.mu.Unlock()
		return
	}
	gate := t.resume
	t.mu.Unlock()
	select {
	case <-gate:
	case <-t.cancel:
	}
}

// Run processes every item in plan, copying or moving it into dstRoot
// according to opts, and returns the complete aggregate outcome.
func Run(plan model.Plan, dstRoot string, opts model.Options, cb model.Callbacks) model.AggregateOutcome {
	start := time.Now()
	tr := metrics.New()
	token := NewToken()
	cb = wireCancelIntoCallbacks(cb, token)

	outcome := model.AggregateOutcome{PerFile: make(map[string]model.FileOutcome, len(plan.Items)), Success: true}

	for _, w := range plan.Warnings {
		cb.Logf("warning: %s: %s", w.Path, w.Reason)
	}

	if err := materializeEmptyDirs(plan.EmptyDirs, dstRoot); err != nil {
		outcome.Success = false
		outcome.Err = err
		outcome.Errors = append(outcome.Errors, err)
		return outcome
	}

	var moveItems, copyItems []model.PlanItem
	for _, item := range plan.Items {
		if item.Kind != model.KindFile {
			continue
		}
		op, err := decideOperation(item, dstRoot, opts, cb)
		if err != nil {
			outcome.Success = false
			outcome.Err = err
			outcome.Errors = append(outcome.Errors, err)
			return outcome
		}
		if op == model.OpMove {
			moveItems = append(moveItems, item)
		} else {
			copyItems = append(copyItems, item)
		}
	}

	// Percentage prefers global bytes when the plan carries a byte total;
	// plans built without totals fall back to the file count.
	emit := metrics.Throttle(100*time.Millisecond, func() {
		snap := tr.Snapshot()
		if cb.MetricsSnapshot != nil {
			cb.MetricsSnapshot(snap)
		}
		if cb.Progress != nil && plan.TotalBytes > 0 {
			pct := int(snap.BytesCopied * 100 / plan.TotalBytes)
			cb.Progress(pct, fmt.Sprintf("%d of %d bytes", snap.BytesCopied, plan.TotalBytes))
		}
	})
	reportSample := func(delta int64, elapsed time.Duration) {
		tr.RecordSample(delta, elapsed)
		emit()
	}

	total := len(copyItems) + len(moveItems)
	done := 0
	reportFileDone := func(rel string) {
		done++
		pct := 0
		if plan.TotalBytes > 0 {
			pct = int(tr.Snapshot().BytesCopied * 100 / plan.TotalBytes)
		} else if total > 0 {
			pct = done * 100 / total
		}
		cb.Progressf(pct, rel)
	}

	tokens := copycore.Tokens{Cancelled: cb.IsCancelled, Pause: cb.Pause}

	copyResults, copyErr := runCopyPool(copyItems, dstRoot, opts, token, tokens, tr, reportSample, reportFileDone)
	for rel, fo := range copyResults {
		outcome.PerFile[rel] = fo
	}
	if copyErr != nil {
		outcome.Success = false
		outcome.Err = copyErr
		outcome.Errors = append(outcome.Errors, copyErr)
		finalizeOutcome(&outcome, tr, start)
		return outcome
	}

	moveResults, moveErr, rollbackErrs := runMoves(moveItems, dstRoot, opts, tokens, tr, reportSample, reportFileDone, os.Rename)
	for rel, fo := range moveResults {
		outcome.PerFile[rel] = fo
	}
	outcome.RollbackErrors = append(outcome.RollbackErrors, rollbackErrs...)
	if moveErr != nil {
		outcome.Success = false
		outcome.Err = moveErr
		outcome.Errors = append(outcome.Errors, moveErr)
	}

	// A cancel observed between items leaves no per-file error behind, so
	// the aggregate must carry the cancellation itself.
	if outcome.Err == nil && done < total && cb.IsCancelled() {
		e := errs.New(errs.Cancelled, "operation cancelled", "Operation was cancelled.")
		outcome.Success = false
		outcome.Err = e
		outcome.Errors = append(outcome.Errors, e)
	}

	finalizeOutcome(&outcome, tr, start)

	if outcome.Err == nil {
		if err := checkByteAccounting(&outcome); err != nil {
			outcome.Success = false
			outcome.Err = err
			outcome.Errors = append(outcome.Errors, err)
		}
	}
	return outcome
}

// checkByteAccounting cross-checks the metrics byte counter against the sum
// of per-file bytes for error-free outcomes. A disagreement means a counter
// was updated twice or skipped, which is a bug worth failing loudly over.
// Flat-mode basename collisions collapse outcomes onto one key and make the
// sum meaningless, so the check is skipped when the map lost entries (the
// planner has already warned about the collision).
func checkByteAccounting(outcome *model.AggregateOutcome) error {
	if int64(len(outcome.PerFile)) != outcome.FilesProcessed {
		return nil
	}
	var sum int64
	for _, fo := range outcome.PerFile {
		if fo.Err == nil {
			sum += fo.Bytes
		}
	}
	if sum != outcome.BytesProcessed {
		return errs.New(errs.InternalInvariant,
			fmt.Sprintf("per-file byte sum %d disagrees with the processed-byte counter %d", sum, outcome.BytesProcessed),
			"Internal accounting error; the operation's byte counts are inconsistent.")
	}
	return nil
}

func finalizeOutcome(outcome *model.AggregateOutcome, tr *metrics.Tracker, start time.Time) {
	snap := tr.Snapshot()
	outcome.BytesProcessed = snap.BytesCopied
	outcome.FilesProcessed = snap.FilesProcessed
	outcome.SizeHistogram = snap.SizeHistogram
	outcome.DiskReadsSaved = snap.DiskReadsSaved
	outcome.PeakSpeedMBPS = snap.PeakSpeedMBPS
	outcome.AvgSpeedMBPS = snap.AvgSpeedMBPS
	outcome.Duration = time.Since(start)
}

func wireCancelIntoCallbacks(cb model.Callbacks, token *Token) model.Callbacks {
	userCancelled := cb.Cancelled
	cb.Cancelled = func() bool {
		if token.IsCancelled() {
			return true
		}
		return userCancelled != nil && userCancelled()
	}
	userPause := cb.PauseCheck
	cb.PauseCheck = func() {
		token.Wait()
		if userPause != nil {
			userPause()
		}
	}
	return cb
}

// decideOperation resolves the copy-vs-move question for one item: items on
// a different filesystem from the destination are always copied (a rename
// cannot cross devices); same-filesystem items follow opts.SameDrivePolicy,
// consulting Callbacks.DecideSameDrive when the policy is Ask.
func decideOperation(item model.PlanItem, dstRoot string, opts model.Options, cb model.Callbacks) (model.OperationKind, error) {
	dst := destinationFor(item, dstRoot)
	if !fsprobe.SameFilesystem(item.Source, dst) {
		return model.OpCopy, nil
	}
	policy := opts.SameDrivePolicy
	if policy == model.Ask {
		if cb.DecideSameDrive == nil {
			policy = model.AlwaysCopy
		} else {
			decided, err := cb.DecideSameDrive(item)
			if err != nil {
				return model.OpCopy, errs.Wrap(errs.Planning, "same-drive decision callback failed", "Could not determine whether to copy or move.", err).WithContext("path", item.Source)
			}
			policy = decided
		}
	}
	if policy == model.AlwaysMove {
		return model.OpMove, nil
	}
	return model.OpCopy, nil
}

func destinationFor(item model.PlanItem, dstRoot string) string {
	if item.HasRelative {
		return filepath.Join(dstRoot, item.Relative)
	}
	return filepath.Join(dstRoot, filepath.Base(item.Source))
}

func materializeEmptyDirs(dirs []string, dstRoot string) error {
	for _, rel := range dirs {
		full := filepath.Join(dstRoot, rel)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return errs.Wrap(errs.DestinationWrite, "create empty directory", "Could not recreate an empty source directory.", err).WithContext("path", full)
		}
	}
	return nil
}

type fileJob struct {
	item model.PlanItem
	dst  string
}

type fileResult struct {
	rel string
	fo  model.FileOutcome
	err error
}

// runCopyPool fans copyItems out across ClassifyWorkers(...) goroutines
// using a buffered job/result channel pool. The first fatal per-file error
// (anything but a cancellation observed after another worker already
// failed) aborts the whole pool.
func runCopyPool(items []model.PlanItem, dstRoot string, opts model.Options, token *Token, tokens copycore.Tokens, tr *metrics.Tracker, onSample copycore.SampleFunc, onDone func(rel string)) (map[string]model.FileOutcome, error) {
	results := make(map[string]model.FileOutcome, len(items))
	if len(items) == 0 {
		return results, nil
	}

	workers := ClassifyWorkers(items[0].Source, dstRoot, opts.MaxParallelWorkers)
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan fileJob, workers*2)
	out := make(chan fileResult, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				fo, err := copyOne(j.item, j.dst, opts, tokens, onSample)
				out <- fileResult{rel: relKeyFor(j.item), fo: fo, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, item := range items {
			if tokens.Cancelled != nil && tokens.Cancelled() {
				return
			}
			jobs <- fileJob{item: item, dst: destinationFor(item, dstRoot)}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	var firstErr error
	for r := range out {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
			token.Cancel()
		}
		results[r.rel] = r.fo
		if r.err == nil {
			tr.RecordFile(r.fo, diskReadSavedFor(r.fo, opts))
		}
		onDone(r.rel)
	}
	return results, firstErr
}

func diskReadSavedFor(fo model.FileOutcome, opts model.Options) bool {
	return opts.CalculateHash && fo.Bytes >= model.SmallFileThreshold
}

func copyOne(item model.PlanItem, dst string, opts model.Options, tokens copycore.Tokens, onSample copycore.SampleFunc) (model.FileOutcome, error) {
	src, dstPath := longPathPair(item.Source, dst)
	res, err := copycore.Copy(context.Background(), src, dstPath, copycore.Options{
		BufferSize:          opts.BufferSizeBytes,
		CalculateHash:       opts.CalculateHash,
		Algorithm:           opts.HashAlgorithm,
		VerifyOnReadFailure: opts.VerifyOnReadFailure,
	}, tokens, onSample)
	res.Outcome.Operation = model.OpCopy
	return res.Outcome, err
}

// longPathPair rewrites both paths into the platform's extended-path form
// when either exceeds the short-path limit. Source and destination always
// use the same form within one operation so the pair never straddles two
// path namespaces.
func longPathPair(src, dst string) (string, string) {
	if fsprobe.NeedsLongPath(src, 0) || fsprobe.NeedsLongPath(dst, 0) {
		return fsprobe.ExtendedForm(src), fsprobe.ExtendedForm(dst)
	}
	return src, dst
}

func relKeyFor(item model.PlanItem) string {
	if item.HasRelative {
		return item.Relative
	}
	return filepath.Base(item.Source)
}

// completedMove records one already-finished rename so rollbackMoves can
// undo it if a later item in the same runMoves call fails.
type completedMove struct {
	src, dst string
}

// runMoves processes move items sequentially (never in the parallel pool:
// a same-device rename is near-instant, and serializing it keeps rollback
// ordering simple and predictable). Only a cross-device rename failure is
// retried as copy-then-delete, for the edge case the planner/probe couldn't
// see in advance (e.g. a bind mount). On any failure (a parent mkdir, a
// non-cross-device rename failure, or a failed fallback), every
// already-completed move in this call is rolled back in reverse order.
// renameFn performs the atomic rename attempt; callers pass os.Rename in
// production and a failing stub in tests to exercise the rollback path.
func runMoves(items []model.PlanItem, dstRoot string, opts model.Options, tokens copycore.Tokens, tr *metrics.Tracker, onSample copycore.SampleFunc, onDone func(rel string), renameFn func(src, dst string) error) (map[string]model.FileOutcome, error, []error) {
	results := make(map[string]model.FileOutcome, len(items))
	if len(items) == 0 {
		return results, nil, nil
	}

	var completed []completedMove

	for _, item := range items {
		if tokens.Cancelled != nil && tokens.Cancelled() {
			break
		}
		dst := destinationFor(item, dstRoot)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			wrapped := errs.Wrap(errs.DestinationWrite, "mkdir destination parent", "Could not create destination directory.", err).WithContext("path", dst)
			return results, wrapped, rollbackMoves(completed)
		}

		fo, err := moveOne(item, dst, opts, tokens, onSample, renameFn)
		rel := relKeyFor(item)
		results[rel] = fo
		if err == nil {
			tr.RecordFile(fo, false)
		}
		onDone(rel)

		if err != nil {
			return results, err, rollbackMoves(completed)
		}
		completed = append(completed, completedMove{src: item.Source, dst: dst})
	}
	return results, nil, nil
}

func rollbackMoves(completed []completedMove) []error {
	var errsOut []error
	for i := len(completed) - 1; i >= 0; i-- {
		m := completed[i]
		if err := os.Rename(m.dst, m.src); err != nil {
			errsOut = append(errsOut, errs.Wrap(errs.MoveRollback, "undo completed move", "Could not restore a file to its original location after a later failure.", err).WithContext("path", m.dst))
		}
	}
	return errsOut
}

// moveOne attempts an atomic rename first (the only case that matters,
// since callers only route same-device items here). A rename failure is
// retried as copy-then-delete only when it is explicitly a cross-device
// failure (the probe's same-device read was stale, e.g. a bind mount); any
// other rename failure is fatal and propagates up for runMoves to roll
// back.
func moveOne(item model.PlanItem, dst string, opts model.Options, tokens copycore.Tokens, onSample copycore.SampleFunc, renameFn func(src, dst string) error) (model.FileOutcome, error) {
	start := time.Now()
	renameErr := renameFn(item.Source, dst)
	if renameErr == nil {
		info, statErr := os.Stat(dst)
		var size int64
		if statErr == nil {
			size = info.Size()
		}
		return model.FileOutcome{
			Source: item.Source, Destination: dst, Bytes: size, Verified: true,
			Operation: model.OpMove, Duration: time.Since(start),
		}, nil
	}
	if !isCrossDeviceError(renameErr) {
		wrapped := errs.Wrap(errs.DestinationWrite, "rename source to destination", "Could not move the file to its destination.", renameErr).WithContext("path", dst)
		return model.FileOutcome{Source: item.Source, Destination: dst, Err: wrapped}, wrapped
	}

	src, dstPath := longPathPair(item.Source, dst)
	res, err := copycore.Copy(context.Background(), src, dstPath, copycore.Options{
		BufferSize: opts.BufferSizeBytes, CalculateHash: opts.CalculateHash, Algorithm: opts.HashAlgorithm,
	}, tokens, onSample)
	if err != nil {
		return res.Outcome, err
	}
	if removeErr := os.Remove(item.Source); removeErr != nil {
		wrapped := errs.Wrap(errs.SourceAccess, "remove source after copy-fallback move", "Copied a file during a move but could not remove the original.", removeErr).WithContext("path", item.Source)
		res.Outcome.Err = wrapped
		return res.Outcome, wrapped
	}
	res.Outcome.Operation = model.OpMove
	return res.Outcome, nil
}
