package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"forensiccopy/internal/copycore"
	"forensiccopy/internal/metrics"
	"forensiccopy/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun_CopiesFilesAndTracksAggregate(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(srcDir, "b.txt"), "beta")

	plan := model.Plan{
		Items: []model.PlanItem{
			{Kind: model.KindFile, Source: filepath.Join(srcDir, "a.txt"), Relative: "a.txt", HasRelative: true},
			{Kind: model.KindFile, Source: filepath.Join(srcDir, "b.txt"), Relative: "b.txt", HasRelative: true},
		},
		FileCount: 2,
	}
	opts := model.Options{CalculateHash: true, HashAlgorithm: model.SHA256}
	opts.Normalize()

	outcome := Run(plan, dstDir, opts, model.Callbacks{})
	if !outcome.Success {
		t.Fatalf("expected success, got err=%v", outcome.Err)
	}
	if outcome.FilesProcessed != 2 {
		t.Fatalf("expected 2 files processed, got %d", outcome.FilesProcessed)
	}
	for _, rel := range []string{"a.txt", "b.txt"} {
		fo, ok := outcome.PerFile[rel]
		if !ok {
			t.Fatalf("missing outcome for %s", rel)
		}
		if !fo.Verified {
			t.Fatalf("expected %s to verify", rel)
		}
	}
	if got, err := os.ReadFile(filepath.Join(dstDir, "a.txt")); err != nil || string(got) != "alpha" {
		t.Fatalf("unexpected destination content: %q err=%v", got, err)
	}
}

func TestRun_MaterializesEmptyDirs(t *testing.T) {
	dstDir := t.TempDir()
	plan := model.Plan{EmptyDirs: []string{"a/empty", "b"}}
	opts := model.Options{}
	opts.Normalize()

	outcome := Run(plan, dstDir, opts, model.Callbacks{})
	if !outcome.Success {
		t.Fatalf("expected success, got %v", outcome.Err)
	}
	for _, d := range []string{"a/empty", "b"} {
		if info, err := os.Stat(filepath.Join(dstDir, d)); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist", d)
		}
	}
}

func TestRun_AlwaysMovePolicyMovesSameDeviceFile(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	dstDir := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(srcDir, "m.txt"), "move me")

	plan := model.Plan{Items: []model.PlanItem{
		{Kind: model.KindFile, Source: filepath.Join(srcDir, "m.txt"), Relative: "m.txt", HasRelative: true},
	}}
	opts := model.Options{SameDrivePolicy: model.AlwaysMove}
	opts.Normalize()

	outcome := Run(plan, dstDir, opts, model.Callbacks{})
	if !outcome.Success {
		t.Fatalf("expected success, got %v", outcome.Err)
	}
	if _, err := os.Stat(filepath.Join(srcDir, "m.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected source to be gone after a move")
	}
	if _, err := os.Stat(filepath.Join(dstDir, "m.txt")); err != nil {
		t.Fatalf("expected destination to exist after a move: %v", err)
	}
	fo := outcome.PerFile["m.txt"]
	if fo.Operation != model.OpMove {
		t.Fatalf("expected Operation to be OpMove, got %v", fo.Operation)
	}
}

func TestRun_MissingSourceAbortsWithFatalError(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "a.txt"), "fine")
	writeFile(t, filepath.Join(srcDir, "missing.txt"), "also fine")
	if err := os.Remove(filepath.Join(srcDir, "missing.txt")); err != nil {
		t.Fatal(err)
	}

	plan := model.Plan{Items: []model.PlanItem{
		{Kind: model.KindFile, Source: filepath.Join(srcDir, "a.txt"), Relative: "a.txt", HasRelative: true},
		{Kind: model.KindFile, Source: filepath.Join(srcDir, "missing.txt"), Relative: "missing.txt", HasRelative: true},
	}}
	opts := model.Options{CalculateHash: true}
	opts.Normalize()

	outcome := Run(plan, dstDir, opts, model.Callbacks{})
	if outcome.Success {
		t.Fatalf("expected failure for a missing source file")
	}
	if outcome.Err == nil {
		t.Fatalf("expected a recorded aggregate error")
	}
}

func TestRun_DecideSameDriveAskCallbackConsulted(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	dstDir := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(srcDir, "m.txt"), "ask me")

	plan := model.Plan{Items: []model.PlanItem{
		{Kind: model.KindFile, Source: filepath.Join(srcDir, "m.txt"), Relative: "m.txt", HasRelative: true},
	}}
	opts := model.Options{SameDrivePolicy: model.Ask}
	opts.Normalize()

	var consulted bool
	cb := model.Callbacks{DecideSameDrive: func(item model.PlanItem) (model.SameDrivePolicy, error) {
		consulted = true
		return model.AlwaysMove, nil
	}}

	outcome := Run(plan, dstDir, opts, cb)
	if !outcome.Success {
		t.Fatalf("expected success, got %v", outcome.Err)
	}
	if !consulted {
		t.Fatalf("expected DecideSameDrive to be consulted for an Ask policy")
	}
	if _, err := os.Stat(filepath.Join(srcDir, "m.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected the file to be moved once the callback chose AlwaysMove")
	}
}

func TestToken_PauseBlocksUntilResume(t *testing.T) {
	tok := NewToken()
	tok.Pause()

	done := make(chan struct{})
	go func() {
		tok.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("expected Wait to block while paused")
	default:
	}

	tok.Resume()
	<-done
}

func TestToken_CancelUnblocksWait(t *testing.T) {
	tok := NewToken()
	tok.Pause()

	done := make(chan struct{})
	go func() {
		tok.Wait()
		close(done)
	}()

	tok.Cancel()
	<-done

	if !tok.IsCancelled() {
		t.Fatalf("expected token to report cancelled")
	}
}

// TestRunMoves_RollsBackCompletedMoveWhenLaterRenameFails covers same-device
// move rollback. The first item's rename succeeds for real; the second's
// renameFn is rigged to fail with a non-cross-device error, so runMoves must
// undo the first move before returning.
func TestRunMoves_RollsBackCompletedMoveWhenLaterRenameFails(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	dstDir := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(srcDir, "first.txt"), "first")
	writeFile(t, filepath.Join(srcDir, "second.txt"), "second")

	items := []model.PlanItem{
		{Kind: model.KindFile, Source: filepath.Join(srcDir, "first.txt"), Relative: "first.txt", HasRelative: true},
		{Kind: model.KindFile, Source: filepath.Join(srcDir, "second.txt"), Relative: "second.txt", HasRelative: true},
	}

	injectedErr := errors.New("injected rename failure")
	renameFn := func(src, dst string) error {
		if filepath.Base(src) == "second.txt" {
			return injectedErr
		}
		return os.Rename(src, dst)
	}

	opts := model.Options{}
	opts.Normalize()
	tr := metrics.New()

	_, err, rollbackErrs := runMoves(items, dstDir, opts, copycore.Tokens{}, tr, nil, func(string) {}, renameFn)
	if err == nil {
		t.Fatalf("expected runMoves to return the injected rename failure")
	}
	if len(rollbackErrs) != 0 {
		t.Fatalf("expected the first move's rollback to succeed cleanly, got errors: %v", rollbackErrs)
	}

	if _, statErr := os.Stat(filepath.Join(srcDir, "first.txt")); statErr != nil {
		t.Fatalf("expected first.txt restored to its source location after rollback: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(dstDir, "first.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("expected first.txt removed from the destination after rollback")
	}
	if _, statErr := os.Stat(filepath.Join(srcDir, "second.txt")); statErr != nil {
		t.Fatalf("expected second.txt to remain at its source since its rename never succeeded: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(dstDir, "second.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("expected second.txt to never have reached the destination")
	}
}

func TestClassifyWorkers_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	if got := ClassifyWorkers(dir, dir, 4); got != 4 {
		t.Fatalf("expected override of 4, got %d", got)
	}
}
