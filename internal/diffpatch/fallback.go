package diffpatch

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFallback persists three sidecar artifacts next to a file that failed
// to apply, so a human (or a later revision round) can recover the intent
// of the patch without re-deriving it from the LLM transcript:
//
//   - <file>.mgx_new            the fully-rendered new content, when computable
//   - <file>.mgx_apply_log.txt  a short human-readable note on what happened
//   - <file>.mgx_failed_diff.txt the raw hunks that failed to locate
func WriteFallback(basePath string, fd ParsedFileDiff, applyErr error) error {
	targetRel := fd.NewPath
	if fd.IsDelete {
		targetRel = fd.OldPath
	}
	target := filepath.Join(basePath, targetRel)

	logPath := target + ".mgx_apply_log.txt"
	logBody := fmt.Sprintf("apply failed for %s: %v\n", targetRel, applyErr)
	if err := os.WriteFile(logPath, []byte(logBody), 0o644); err != nil {
		return err
	}

	diffPath := target + ".mgx_failed_diff.txt"
	if err := os.WriteFile(diffPath, []byte(renderParsedDiff(fd)), 0o644); err != nil {
		return err
	}

	if newContent, ok := reconstructNewContent(fd); ok {
		newPath := target + ".mgx_new"
		if err := os.WriteFile(newPath, []byte(newContent), 0o644); err != nil {
			return err
		}
	}

	return nil
}

// reconstructNewContent concatenates each hunk's new-side lines. This is a
// best-effort reconstruction, not a guaranteed valid file: when context
// couldn't be located the surrounding unchanged regions are not known, so
// only the changed hunks themselves are written, separated by markers.
func reconstructNewContent(fd ParsedFileDiff) (string, bool) {
	if len(fd.Hunks) == 0 {
		return "", false
	}
	var out string
	for i, h := range fd.Hunks {
		if i > 0 {
			out += "\n--- hunk boundary ---\n"
		}
		for _, l := range h.Lines {
			if l.Type == LineContext || l.Type == LineAdded {
				out += l.Content + "\n"
			}
		}
	}
	return out, true
}

func renderParsedDiff(fd ParsedFileDiff) string {
	out := fmt.Sprintf("--- a/%s\n+++ b/%s\n", fd.OldPath, fd.NewPath)
	for _, h := range fd.Hunks {
		out += renderHunkHeader(Hunk{OldStart: h.OldStart, OldCount: h.OldCount, NewStart: h.NewStart, NewCount: h.NewCount}) + "\n"
		for _, l := range h.Lines {
			switch l.Type {
			case LineContext:
				out += " " + l.Content + "\n"
			case LineAdded:
				out += "+" + l.Content + "\n"
			case LineRemoved:
				out += "-" + l.Content + "\n"
			}
		}
	}
	return out
}

// restoreFromBackup undoes one ApplyResult: restores the backup file over
// the target, or removes the target if it was newly created with nothing
// to restore.
func restoreFromBackup(basePath string, a ApplyResult) {
	target := filepath.Join(basePath, a.Path)
	if a.Deleted {
		if a.BackupPath != "" {
			if data, err := os.ReadFile(a.BackupPath); err == nil {
				_ = os.WriteFile(target, data, 0o644)
			}
		}
		return
	}
	if a.Created {
		_ = os.Remove(target)
		return
	}
	if a.BackupPath != "" {
		if data, err := os.ReadFile(a.BackupPath); err == nil {
			_ = os.WriteFile(target, data, 0o644)
		}
	}
}
