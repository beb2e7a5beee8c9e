package runner

import (
	"io/fs"
	"path/filepath"
	"sort"
)

// Directories that change constantly without representing work product.
var snapshotSkipDirs = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	".sahaidachny":  {},
	".venv":         {},
	"venv":          {},
	"node_modules":  {},
	"__pycache__":   {},
	".mypy_cache":   {},
	".pytest_cache": {},
	".ruff_cache":   {},
	".codex":        {},
	".claude":       {},
	".idea":         {},
}

var snapshotSkipFiles = map[string]struct{}{
	".DS_Store": {},
}

type fileMeta struct {
	mtimeNS int64
	size    int64
}

// Snapshot records (mtime, size) for every regular file under a root,
// keyed by slash-separated relative path. Diffing two snapshots is how
// embedding-style backends detect which files an agent touched.
type Snapshot struct {
	root  string
	files map[string]fileMeta
}

// TakeSnapshot walks root and records the current file set. A missing root
// yields an empty snapshot, not an error.
func TakeSnapshot(root string) *Snapshot {
	snap := &Snapshot{root: root, files: make(map[string]fileMeta)}

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if _, skip := snapshotSkipDirs[name]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if _, skip := snapshotSkipFiles[name]; skip {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		snap.files[filepath.ToSlash(rel)] = fileMeta{
			mtimeNS: info.ModTime().UnixNano(),
			size:    info.Size(),
		}
		return nil
	})

	return snap
}

// Diff compares this (pre) snapshot against a fresh one. A path present in
// both with a different (mtime, size) tuple is changed; a path present only
// in the new snapshot is added. Deletions are not reported. Results are
// sorted so the diff is independent of walk order.
func (s *Snapshot) Diff() (changed, added []string) {
	after := TakeSnapshot(s.root)

	for path, meta := range after.files {
		before, existed := s.files[path]
		switch {
		case !existed:
			added = append(added, path)
		case before != meta:
			changed = append(changed, path)
		}
	}

	sort.Strings(changed)
	sort.Strings(added)
	return changed, added
}
