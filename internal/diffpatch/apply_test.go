package diffpatch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgxlabs/orchestrator/internal/mgxerr"
)

func TestParseUnifiedDiff_ModifyRoundTrip(t *testing.T) {
	fd := &FileDiff{
		OldPath: "main.go",
		NewPath: "main.go",
		Hunks: []Hunk{
			{
				OldStart: 1, OldCount: 3, NewStart: 1, NewCount: 3,
				Lines: []Line{
					{Content: "package main", Type: LineContext},
					{Content: "old line", Type: LineRemoved},
					{Content: "new line", Type: LineAdded},
				},
			},
		},
	}

	text := fd.Render()
	parsed, err := ParseUnifiedDiff(text)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	require.Equal(t, "main.go", parsed[0].OldPath)
	require.Equal(t, "main.go", parsed[0].NewPath)
	require.False(t, parsed[0].IsNew)
	require.False(t, parsed[0].IsDelete)
	require.Len(t, parsed[0].Hunks, 1)
	require.Len(t, parsed[0].Hunks[0].Lines, 3)
}

func TestParseUnifiedDiff_NewAndDeleteSentinels(t *testing.T) {
	created := &FileDiff{NewPath: "fresh.go", IsNew: true, Hunks: []Hunk{
		{OldStart: 0, OldCount: 0, NewStart: 1, NewCount: 1, Lines: []Line{{Content: "package x", Type: LineAdded}}},
	}}
	parsed, err := ParseUnifiedDiff(created.Render())
	require.NoError(t, err)
	require.True(t, parsed[0].IsNew)
	require.Equal(t, "", parsed[0].OldPath)

	removed := &FileDiff{OldPath: "gone.go", IsDelete: true, Hunks: []Hunk{
		{OldStart: 1, OldCount: 1, NewStart: 0, NewCount: 0, Lines: []Line{{Content: "package x", Type: LineRemoved}}},
	}}
	parsed2, err := ParseUnifiedDiff(removed.Render())
	require.NoError(t, err)
	require.True(t, parsed2[0].IsDelete)
}

func TestParseUnifiedDiff_MalformedHunkHeaderErrors(t *testing.T) {
	_, err := ParseUnifiedDiff("--- a/x.go\n+++ b/x.go\n@@ garbage @@\n context\n")
	require.Error(t, err)
}

func TestApply_CreatesNewFile(t *testing.T) {
	dir := t.TempDir()
	fd := ParsedFileDiff{
		NewPath: "pkg/new.go",
		IsNew:   true,
		Hunks: []ParsedHunk{
			{OldStart: 0, OldCount: 0, NewStart: 1, NewCount: 2, Lines: []Line{
				{Content: "package pkg", Type: LineAdded},
				{Content: "", Type: LineAdded},
			}},
		},
	}
	res, err := Apply(dir, fd)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Empty(t, res.BackupPath)

	data, err := os.ReadFile(filepath.Join(dir, "pkg/new.go"))
	require.NoError(t, err)
	require.Contains(t, string(data), "package pkg")
}

func TestApply_ModifyExistingWithBackup(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("package main\nold line\ntrailer"), 0o644))

	fd := ParsedFileDiff{
		OldPath: "main.go",
		NewPath: "main.go",
		Hunks: []ParsedHunk{
			{OldStart: 1, OldCount: 2, NewStart: 1, NewCount: 2, Lines: []Line{
				{Content: "package main", Type: LineContext},
				{Content: "old line", Type: LineRemoved},
				{Content: "new line", Type: LineAdded},
			}},
		},
	}

	res, err := Apply(dir, fd)
	require.NoError(t, err)
	require.False(t, res.Created)
	require.NotEmpty(t, res.BackupPath)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(data), "new line")
	require.NotContains(t, string(data), "old line")

	backup, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	require.Contains(t, string(backup), "old line")
}

func TestApply_ToleratesLineDrift(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "drift.go")
	// Two extra leading lines not reflected in the hunk's recorded OldStart:
	// a drift of 2, which applies without a drift warning.
	require.NoError(t, os.WriteFile(target, []byte("// header comment\npackage main\ntarget line\ntrailer"), 0o644))

	fd := ParsedFileDiff{
		OldPath: "drift.go",
		NewPath: "drift.go",
		Hunks: []ParsedHunk{
			{OldStart: 1, OldCount: 1, NewStart: 1, NewCount: 1, Lines: []Line{
				{Content: "target line", Type: LineRemoved},
				{Content: "replaced line", Type: LineAdded},
			}},
		},
	}

	res, err := Apply(dir, fd)
	require.NoError(t, err)
	require.Empty(t, res.DriftWarnings)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(data), "replaced line")
	require.Contains(t, string(data), "header comment")
}

func TestApply_WarnsOnDriftAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "drift.go")
	// Three extra leading lines not reflected in the hunk's recorded OldStart,
	// pushing drift to 3 (above driftWarnThreshold but within driftWindow).
	require.NoError(t, os.WriteFile(target, []byte("// one\n// two\n// three\ntarget line\ntrailer"), 0o644))

	fd := ParsedFileDiff{
		OldPath: "drift.go",
		NewPath: "drift.go",
		Hunks: []ParsedHunk{
			{OldStart: 1, OldCount: 1, NewStart: 1, NewCount: 1, Lines: []Line{
				{Content: "target line", Type: LineRemoved},
				{Content: "replaced line", Type: LineAdded},
			}},
		},
	}

	res, err := Apply(dir, fd)
	require.NoError(t, err)
	require.Len(t, res.DriftWarnings, 1)
	require.Equal(t, 0, res.DriftWarnings[0].HunkIndex)
	require.Equal(t, 3, res.DriftWarnings[0].Drift)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(data), "replaced line")
}

func TestApply_RejectsUnsafePath(t *testing.T) {
	dir := t.TempDir()

	fd := ParsedFileDiff{
		OldPath: "../outside.go",
		NewPath: "../outside.go",
		Hunks: []ParsedHunk{
			{OldStart: 1, OldCount: 1, NewStart: 1, NewCount: 1, Lines: []Line{
				{Content: "x", Type: LineAdded},
			}},
		},
	}

	_, err := Apply(dir, fd)
	require.Error(t, err)

	var mErr *mgxerr.Error
	require.True(t, errors.As(err, &mErr))
	require.Equal(t, "path_unsafe", mErr.Detail["reason"])
}

func TestApply_ContextMismatchCarriesReason(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfoo\nbar"), 0o644))

	fd := ParsedFileDiff{
		OldPath: "a.go", NewPath: "a.go",
		Hunks: []ParsedHunk{{OldStart: 1, OldCount: 1, NewStart: 1, NewCount: 1, Lines: []Line{
			{Content: "nonexistent context", Type: LineRemoved},
			{Content: "x", Type: LineAdded},
		}}},
	}

	_, err := Apply(dir, fd)
	require.Error(t, err)

	var mErr *mgxerr.Error
	require.True(t, errors.As(err, &mErr))
	require.Equal(t, "context_mismatch", mErr.Detail["reason"])
}

func TestApply_DeletesFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.go")
	require.NoError(t, os.WriteFile(target, []byte("package main"), 0o644))

	fd := ParsedFileDiff{OldPath: "gone.go", IsDelete: true}
	res, err := Apply(dir, fd)
	require.NoError(t, err)
	require.True(t, res.Deleted)

	_, err = os.Stat(target)
	require.True(t, os.IsNotExist(err))
}

func TestBatchApply_AllOrNothingRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfoo\nbar"), 0o644))

	good := ParsedFileDiff{
		OldPath: "a.go", NewPath: "a.go",
		Hunks: []ParsedHunk{{OldStart: 2, OldCount: 1, NewStart: 2, NewCount: 1, Lines: []Line{
			{Content: "foo", Type: LineRemoved},
			{Content: "FOO", Type: LineAdded},
		}}},
	}
	bad := ParsedFileDiff{
		OldPath: "missing.go", NewPath: "missing.go",
		Hunks: []ParsedHunk{{OldStart: 1, OldCount: 1, NewStart: 1, NewCount: 1, Lines: []Line{
			{Content: "nonexistent context", Type: LineRemoved},
			{Content: "x", Type: LineAdded},
		}}},
	}

	result, err := BatchApply(dir, []ParsedFileDiff{good, bad}, AllOrNothing)
	require.Error(t, err)
	require.True(t, result.RolledBack)

	data, readErr := os.ReadFile(filepath.Join(dir, "a.go"))
	require.NoError(t, readErr)
	require.Contains(t, string(data), "foo")
	require.NotContains(t, string(data), "FOO")
}

func TestBatchApply_BestEffortKeepsSuccesses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfoo\nbar"), 0o644))

	good := ParsedFileDiff{
		OldPath: "a.go", NewPath: "a.go",
		Hunks: []ParsedHunk{{OldStart: 2, OldCount: 1, NewStart: 2, NewCount: 1, Lines: []Line{
			{Content: "foo", Type: LineRemoved},
			{Content: "FOO", Type: LineAdded},
		}}},
	}
	bad := ParsedFileDiff{
		OldPath: "missing.go", NewPath: "missing.go",
		Hunks: []ParsedHunk{{OldStart: 1, OldCount: 1, NewStart: 1, NewCount: 1, Lines: []Line{
			{Content: "nonexistent context", Type: LineRemoved},
			{Content: "x", Type: LineAdded},
		}}},
	}

	result, err := BatchApply(dir, []ParsedFileDiff{good, bad}, BestEffort)
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "missing.go", result.Failed[0].Path)

	data, readErr := os.ReadFile(filepath.Join(dir, "a.go"))
	require.NoError(t, readErr)
	require.Contains(t, string(data), "FOO")

	_, logErr := os.Stat(filepath.Join(dir, "missing.go.mgx_apply_log.txt"))
	require.NoError(t, logErr)
	_, diffErr := os.Stat(filepath.Join(dir, "missing.go.mgx_failed_diff.txt"))
	require.NoError(t, diffErr)
}
