package tools

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// LineRange is an inclusive range of line numbers in the post-change file.
type LineRange struct {
	Start int
	End   int
}

func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// ChangedRanges maps repository-relative file paths to the line ranges
// touched by uncommitted changes. Files absent from the map were not
// touched. AddedFiles holds paths that did not exist before.
type ChangedRanges struct {
	Ranges     map[string][]LineRange
	AddedFiles map[string]bool
}

var hunkPattern = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// CollectChangedRanges asks git for the uncommitted diff of a working tree
// and parses hunk headers into per-file line ranges. A nil return means the
// range source is unavailable (no git, not a repository); callers then fall
// back to treating every issue as blocking.
func CollectChangedRanges(ctx context.Context, workingDir string) *ChangedRanges {
	if !installed("git") {
		return nil
	}
	exitCode, stdout, _ := runCommand(ctx, []string{"git", "diff", "-U0", "--no-color", "HEAD"}, workingDir, 0)
	if exitCode != 0 {
		return nil
	}

	untracked := make(map[string]bool)
	if code, out, _ := runCommand(ctx, []string{"git", "ls-files", "--others", "--exclude-standard"}, workingDir, 0); code == 0 {
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				untracked[filepath.ToSlash(line)] = true
			}
		}
	}

	return parseUnifiedDiff(stdout, untracked)
}

// parseUnifiedDiff extracts post-image line ranges from a -U0 diff.
func parseUnifiedDiff(diff string, added map[string]bool) *ChangedRanges {
	cr := &ChangedRanges{
		Ranges:     make(map[string][]LineRange),
		AddedFiles: added,
	}
	if cr.AddedFiles == nil {
		cr.AddedFiles = make(map[string]bool)
	}

	current := ""
	wasNewFile := false
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ b/"):
			current = filepath.ToSlash(strings.TrimPrefix(line, "+++ b/"))
			if wasNewFile {
				cr.AddedFiles[current] = true
			}
		case strings.HasPrefix(line, "+++ /dev/null"):
			current = "" // deletion, nothing to attribute
		case strings.HasPrefix(line, "--- /dev/null"):
			wasNewFile = true
		case strings.HasPrefix(line, "--- "):
			wasNewFile = false
		case strings.HasPrefix(line, "@@"):
			if current == "" {
				continue
			}
			m := hunkPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			start, _ := strconv.Atoi(m[1])
			count := 1
			if m[2] != "" {
				count, _ = strconv.Atoi(m[2])
			}
			if count == 0 {
				// Pure deletion hunk: no post-image lines.
				continue
			}
			cr.Ranges[current] = append(cr.Ranges[current], LineRange{Start: start, End: start + count - 1})
		}
	}
	return cr
}

// FilterBlocking demotes issues that fall outside every changed range of
// their file to non-blocking. Issues in added files and issues without a
// file location stay blocking. With a nil range source everything stays
// blocking (degraded mode).
func FilterBlocking(issues []Issue, cr *ChangedRanges) []Issue {
	out := make([]Issue, len(issues))
	for i, issue := range issues {
		issue.Blocking = true
		if cr != nil && issue.File != "" {
			issue.Blocking = issueInChanges(issue, cr)
		}
		out[i] = issue
	}
	return out
}

func issueInChanges(issue Issue, cr *ChangedRanges) bool {
	path := filepath.ToSlash(issue.File)
	if cr.AddedFiles[path] {
		return true
	}
	ranges, touched := cr.Ranges[path]
	if !touched {
		return false
	}
	if issue.Line == 0 {
		// File-level issue on a touched file.
		return true
	}
	for _, r := range ranges {
		if r.Contains(issue.Line) {
			return true
		}
	}
	return false
}
