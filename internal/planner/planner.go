// Package planner expands a caller's file/directory selections into a flat
// Plan: an ordered list of (source, relative destination) items, the set of
// empty directories to recreate, and aggregate byte/file totals.
package planner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"forensiccopy/internal/model"
	"forensiccopy/metadata"
)

// Plan mirrors model.Plan; kept as a type alias so callers across the
// engine share one definition.
type Plan = model.Plan

// ErrNoSelections is returned by Build when selections is empty; the
// caller translates this into a PlanningError.
var ErrNoSelections = errors.New("no selections provided")

// Build expands selections into a Plan according to preserveStructure. It never aborts for a single unreadable entry; such
// entries are recorded as Warnings instead.
func Build(selections []string, preserveStructure bool) (Plan, error) {
	if len(selections) == 0 {
		return Plan{}, ErrNoSelections
	}
	return buildPlan(selections, preserveStructure)
}

type selectionInfo struct {
	path   string
	isDir  bool
	anchor string // parent dir (file) or the directory itself (dir selection)
}

func buildPlan(selections []string, preserveStructure bool) (Plan, error) {
	var plan Plan
	plan.Items = make([]model.PlanItem, 0, len(selections))

	infos := make([]selectionInfo, 0, len(selections))
	for _, sel := range selections {
		clean := filepath.Clean(sel)
		st, err := os.Stat(clean)
		if err != nil {
			plan.Warnings = append(plan.Warnings, model.Warning{Path: sel, Reason: "unreadable_source"})
			continue
		}
		info := selectionInfo{path: clean, isDir: st.IsDir()}
		if info.isDir {
			info.anchor = clean
		} else {
			info.anchor = filepath.Dir(clean)
		}
		infos = append(infos, info)
	}

	if len(infos) == 0 {
		// Every selection was unreadable. Planning does not abort for a
		// single bad entry, but with nothing left there is nothing to do.
		return plan, nil
	}

	var rebaseRoot string
	if preserveStructure {
		rebaseRoot = computeRebaseRoot(infos)
	}

	for _, info := range infos {
		if !info.isDir {
			addFileItem(&plan, info.path, preserveStructure, rebaseRoot)
			continue
		}
		walkDirectory(&plan, info.path, preserveStructure, rebaseRoot)
	}

	kept := plan.Items[:0]
	for _, it := range plan.Items {
		if it.Kind == model.KindFile {
			fi, err := os.Stat(it.Source)
			if err != nil {
				plan.Warnings = append(plan.Warnings, model.Warning{Path: it.Source, Reason: "unreadable_source"})
				continue
			}
			plan.FileCount++
			plan.TotalBytes += fi.Size()
		}
		kept = append(kept, it)
	}
	plan.Items = kept

	if !preserveStructure {
		warnAboutBasenameCollisions(&plan)
	}

	return plan, nil
}

// warnAboutBasenameCollisions records a planning warning for every basename
// that two or more flat-mode file items would land on, since flat mode
// places every file directly under the destination root by basename alone
// and a later file silently overwrites an earlier one with the same name.
// Each warning is enriched with a best-effort capture time (EXIF for
// photos, filesystem mtime otherwise) so an investigator can tell which
// source produced which destination without re-opening either file.
func warnAboutBasenameCollisions(plan *Plan) {
	bySourceBasename := map[string][]string{}
	for _, it := range plan.Items {
		if it.Kind != model.KindFile {
			continue
		}
		base := filepath.Base(it.Source)
		bySourceBasename[base] = append(bySourceBasename[base], it.Source)
	}

	bases := make([]string, 0, len(bySourceBasename))
	for base := range bySourceBasename {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	for _, base := range bases {
		sources := bySourceBasename[base]
		if len(sources) < 2 {
			continue
		}
		sort.Strings(sources)
		for _, src := range sources {
			ext := strings.ToLower(filepath.Ext(src))
			cap := metadata.CaptureTime(src, ext)
			reason := fmt.Sprintf("basename_collision: %d selections would land on %q under the destination root%s", len(sources), base, cap.Annotate())
			plan.Warnings = append(plan.Warnings, model.Warning{Path: src, Reason: reason})
		}
	}
}

// computeRebaseRoot picks the anchor every selection's preserved path is
// made relative to: the parent of the longest common directory prefix of
// every selection's anchor (a file's anchor is its parent directory; a
// directory selection's anchor is the directory itself). For a lone file
// this yields the parent of the file's parent directory; for a lone
// directory selection it yields the directory's own parent; for a mix of
// selections under different subtrees, it finds their shared ancestor and
// rebases one level above it, so each selection keeps one level of
// identifying structure (e.g. selecting /A/B/C/x.txt, /A/B/C/y.txt, and
// /A/B/D/z.txt together preserves "B/C/x.txt", "B/C/y.txt", "B/D/z.txt"
// under the destination rather than collapsing everything flat).
func computeRebaseRoot(infos []selectionInfo) string {
	anchors := make([]string, len(infos))
	for i, info := range infos {
		anchors[i] = info.anchor
	}
	commonPrefix := longestCommonDir(anchors)
	return filepath.Dir(commonPrefix)
}

// longestCommonDir returns the deepest directory that is a prefix of (or
// equal to) every path given. With one path, that path itself.
func longestCommonDir(paths []string) string {
	if len(paths) == 1 {
		return paths[0]
	}

	split := make([][]string, len(paths))
	minLen := -1
	for i, p := range paths {
		parts := pathComponents(p)
		split[i] = parts
		if minLen == -1 || len(parts) < minLen {
			minLen = len(parts)
		}
	}

	commonLen := 0
	for i := 0; i < minLen; i++ {
		seg := split[0][i]
		ok := true
		for _, parts := range split[1:] {
			if parts[i] != seg {
				ok = false
				break
			}
		}
		if !ok {
			break
		}
		commonLen++
	}
	if commonLen == 0 {
		return string(filepath.Separator)
	}
	return componentsToPath(split[0][:commonLen])
}

// pathComponents splits a cleaned absolute path into components, with the
// root (if any) as the first element.
func pathComponents(p string) []string {
	p = filepath.Clean(p)
	vol := filepath.VolumeName(p)
	rest := strings.TrimPrefix(p, vol)
	rest = strings.Trim(rest, string(filepath.Separator))
	var parts []string
	if rest != "" {
		parts = strings.Split(rest, string(filepath.Separator))
	}
	root := vol + string(filepath.Separator)
	return append([]string{root}, parts...)
}

func componentsToPath(parts []string) string {
	if len(parts) == 0 {
		return string(filepath.Separator)
	}
	root := parts[0]
	if len(parts) == 1 {
		return root
	}
	return filepath.Join(append([]string{root}, parts[1:]...)...)
}

func addFileItem(plan *Plan, src string, preserveStructure bool, rebaseRoot string) {
	item := model.PlanItem{Kind: model.KindFile, Source: src}
	if preserveStructure {
		if rel, err := filepath.Rel(rebaseRoot, src); err == nil {
			item.Relative = rel
			item.HasRelative = true
		}
	}
	plan.Items = append(plan.Items, item)
}

func walkDirectory(plan *Plan, dir string, preserveStructure bool, rebaseRoot string) {
	dirsWithFiles := map[string]bool{}
	var dirs []string

	filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			plan.Warnings = append(plan.Warnings, model.Warning{Path: path, Reason: "unreadable_source"})
			return nil
		}
		if fi.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		item := model.PlanItem{Kind: model.KindFile, Source: path}
		if preserveStructure {
			if rel, relErr := filepath.Rel(rebaseRoot, path); relErr == nil {
				item.Relative = rel
				item.HasRelative = true
			}
		} else {
			item.Relative = filepath.Base(path)
			item.HasRelative = true
		}
		plan.Items = append(plan.Items, item)
		markAncestorsWithFiles(dirsWithFiles, filepath.Dir(path))
		return nil
	})

	sort.Strings(dirs)
	for _, d := range dirs {
		if dirsWithFiles[d] {
			continue
		}
		if preserveStructure {
			if rel, err := filepath.Rel(rebaseRoot, d); err == nil {
				plan.EmptyDirs = append(plan.EmptyDirs, rel)
			}
		} else {
			plan.EmptyDirs = append(plan.EmptyDirs, filepath.Base(d))
		}
	}
}

// markAncestorsWithFiles marks dir and every ancestor up to the root as
// containing at least one file, so none of them is later recorded as an
// empty directory.
func markAncestorsWithFiles(dirsWithFiles map[string]bool, dir string) {
	for {
		if dirsWithFiles[dir] {
			return
		}
		dirsWithFiles[dir] = true
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
