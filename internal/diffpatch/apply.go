package diffpatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgxlabs/orchestrator/internal/manifest"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// driftWindow bounds how far Apply will search around a hunk's recorded
// start line for a matching context block before giving up. Small patch
// round-trips through an LLM routinely shift line numbers by a line or two
// without the content itself having moved.
const driftWindow = 3

// driftWarnThreshold is the line drift above which a located hunk is still
// applied but recorded as a DriftWarning (spec.md §4.4 step 3: drift of 2
// lines applies silently, drift of 3 or more applies with a warning).
const driftWarnThreshold = 2

// Patch failure sub-kinds, attached to mgxerr.Error.Detail["reason"] so a
// caller can distinguish why a patch_error occurred without string-matching
// the message.
const (
	reasonContextMismatch = "context_mismatch"
	reasonIOError         = "io_error"
	reasonPathUnsafe      = "path_unsafe"
)

// patchErr builds a patch_error tagged with reason in Detail["reason"].
func patchErr(reason, message string, cause error) *mgxerr.Error {
	err := mgxerr.Wrap(types.ErrPatch, message, cause)
	return err.WithDetail(map[string]any{"reason": reason})
}

// DriftWarning records that a hunk was located more than driftWarnThreshold
// lines away from its declared position but was still applied.
type DriftWarning struct {
	HunkIndex int
	Drift     int
}

// ApplyResult describes the outcome of applying one ParsedFileDiff.
type ApplyResult struct {
	Path          string
	BackupPath    string
	Created       bool
	Deleted       bool
	DriftWarnings []DriftWarning
}

// Apply applies fd to the file at basePath/fd path, writing a timestamped
// backup of the previous contents (unless the file is newly created) and
// replacing the target atomically via a temp file + rename. Hunks are
// applied in order; each hunk's context lines are located within
// driftWindow lines of its recorded position before the edit is made.
func Apply(basePath string, fd ParsedFileDiff) (*ApplyResult, error) {
	targetRel := fd.NewPath
	if fd.IsDelete {
		targetRel = fd.OldPath
	}
	if !manifest.SafePath(targetRel) {
		return nil, patchErr(reasonPathUnsafe, fmt.Sprintf("rejected unsafe path %q", targetRel), nil)
	}
	target := filepath.Join(basePath, targetRel)

	if fd.IsDelete {
		backup, err := backupFile(target)
		if err != nil {
			return nil, patchErr(reasonIOError, "backup before delete", err)
		}
		if err := os.Remove(target); err != nil {
			return nil, patchErr(reasonIOError, "remove file", err)
		}
		return &ApplyResult{Path: targetRel, BackupPath: backup, Deleted: true}, nil
	}

	var original []byte
	created := fd.IsNew
	if !created {
		data, err := os.ReadFile(target)
		if err != nil {
			if os.IsNotExist(err) {
				created = true
			} else {
				return nil, patchErr(reasonIOError, "read target file", err)
			}
		} else {
			original = data
		}
	}

	var backup string
	if !created {
		b, err := backupFile(target)
		if err != nil {
			return nil, patchErr(reasonIOError, "backup before apply", err)
		}
		backup = b
	}

	newContent, drift, err := applyHunks(string(original), fd.Hunks)
	if err != nil {
		return nil, patchErr(reasonContextMismatch, fmt.Sprintf("apply hunks to %s", targetRel), err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, patchErr(reasonIOError, "create parent directory", err)
	}
	if err := atomicWrite(target, []byte(newContent)); err != nil {
		return nil, patchErr(reasonIOError, "write target file", err)
	}

	return &ApplyResult{Path: targetRel, BackupPath: backup, Created: created, DriftWarnings: drift}, nil
}

// applyHunks applies parsed hunks to original in order, searching for each
// hunk's leading context within driftWindow lines of its recorded position.
// It returns a DriftWarning for every hunk located more than
// driftWarnThreshold lines away from its declared position.
func applyHunks(original string, hunks []ParsedHunk) (string, []DriftWarning, error) {
	lines := splitLinesKeepEmpty(original)
	offset := 0 // cumulative line shift from prior hunks
	var warnings []DriftWarning

	for idx, h := range hunks {
		oldLines, newLines := hunkSides(h)

		wantStart := h.OldStart - 1 + offset
		if h.OldStart == 0 {
			wantStart = 0
		}

		pos, ok := locateContext(lines, oldLines, wantStart, driftWindow)
		if !ok {
			return "", nil, fmt.Errorf("hunk %d: could not locate context (expected near line %d)", idx+1, h.OldStart)
		}

		if drift := abs(pos - wantStart); drift > driftWarnThreshold {
			warnings = append(warnings, DriftWarning{HunkIndex: idx, Drift: drift})
		}

		lines = append(lines[:pos], append(append([]string{}, newLines...), lines[pos+len(oldLines):]...)...)
		offset += len(newLines) - len(oldLines)
	}

	return strings.Join(lines, "\n"), warnings, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// hunkSides extracts the old-file and new-file line sequences from a hunk's
// context+added+removed lines.
func hunkSides(h ParsedHunk) (oldLines, newLines []string) {
	for _, l := range h.Lines {
		switch l.Type {
		case LineContext:
			oldLines = append(oldLines, l.Content)
			newLines = append(newLines, l.Content)
		case LineRemoved:
			oldLines = append(oldLines, l.Content)
		case LineAdded:
			newLines = append(newLines, l.Content)
		}
	}
	return oldLines, newLines
}

// locateContext searches lines for a contiguous match of want, starting at
// hint and expanding outward by up to window lines in either direction.
func locateContext(lines []string, want []string, hint, window int) (int, bool) {
	if len(want) == 0 {
		if hint >= 0 && hint <= len(lines) {
			return hint, true
		}
		return 0, false
	}
	for d := 0; d <= window; d++ {
		for _, candidate := range []int{hint - d, hint + d} {
			if candidate < 0 || candidate+len(want) > len(lines) {
				continue
			}
			if matchesAt(lines, want, candidate) {
				return candidate, true
			}
			if d == 0 {
				break
			}
		}
	}
	return 0, false
}

func matchesAt(lines, want []string, start int) bool {
	for i, w := range want {
		if lines[start+i] != w {
			return false
		}
	}
	return true
}

func splitLinesKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// backupFile copies path to a sibling file with a timestamp suffix and
// returns the backup's path. No-op (returns "", nil) if path does not
// exist, which is the newly-created-file case.
func backupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102150405"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}
	return backupPath, nil
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it over path, so a crash mid-write never leaves a truncated file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".diffpatch-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
