package diffpatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// parseErr builds a parse_error naming the offending line, per spec.md
// §4.4/§7's "parse_error (malformed diff)" failure kind.
func parseErr(format string, args ...any) *mgxerr.Error {
	return mgxerr.Newf(types.ErrParse, format, args...)
}

// ParsedHunk is a single @@ -s,c +s,c @@ hunk parsed from unified diff text.
type ParsedHunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// ParsedFileDiff is one file's worth of unified diff text, parsed into
// structured hunks ready for Apply.
type ParsedFileDiff struct {
	OldPath  string
	NewPath  string
	IsNew    bool
	IsDelete bool
	Hunks    []ParsedHunk
}

// ParseUnifiedDiff splits text (possibly containing several files' worth of
// diff output) into one ParsedFileDiff per "--- "/"+++ " pair. It accepts
// the exact format FileDiff.Render produces: a/ and b/ path prefixes,
// /dev/null sentinels for creates and deletes, and "@@ -s,c +s,c @@" hunk
// headers. Malformed input returns an error naming the offending line.
func ParseUnifiedDiff(text string) ([]ParsedFileDiff, error) {
	lines := strings.Split(text, "\n")
	var files []ParsedFileDiff
	var cur *ParsedFileDiff
	var hunk *ParsedHunk

	flushHunk := func() {
		if cur != nil && hunk != nil {
			cur.Hunks = append(cur.Hunks, *hunk)
			hunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			files = append(files, *cur)
			cur = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- "):
			flushFile()
			oldPath := strings.TrimPrefix(line, "--- ")
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
				return nil, parseErr("diffpatch: line %d: expected +++ header after --- header", i+1)
			}
			i++
			newPath := strings.TrimPrefix(lines[i], "+++ ")
			fd := ParsedFileDiff{
				OldPath:  trimGitPrefix(oldPath, "a/"),
				NewPath:  trimGitPrefix(newPath, "b/"),
				IsNew:    oldPath == "/dev/null",
				IsDelete: newPath == "/dev/null",
			}
			cur = &fd

		case strings.HasPrefix(line, "@@ "):
			if cur == nil {
				return nil, parseErr("diffpatch: line %d: hunk header before any file header", i+1)
			}
			flushHunk()
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, mgxerr.Wrap(types.ErrParse, fmt.Sprintf("diffpatch: line %d", i+1), err)
			}
			hunk = h

		case strings.HasPrefix(line, " "):
			if hunk == nil {
				continue
			}
			hunk.Lines = append(hunk.Lines, Line{Content: strings.TrimPrefix(line, " "), Type: LineContext})

		case strings.HasPrefix(line, "+"):
			if hunk == nil {
				continue
			}
			hunk.Lines = append(hunk.Lines, Line{Content: strings.TrimPrefix(line, "+"), Type: LineAdded})

		case strings.HasPrefix(line, "-"):
			if hunk == nil {
				continue
			}
			hunk.Lines = append(hunk.Lines, Line{Content: strings.TrimPrefix(line, "-"), Type: LineRemoved})

		case line == "":
			// blank separator between file diffs or trailing newline, ignore
		}
	}
	flushFile()

	if len(files) == 0 {
		return nil, parseErr("diffpatch: no file headers found in diff text")
	}
	return files, nil
}

func trimGitPrefix(path, prefix string) string {
	if path == "/dev/null" {
		return ""
	}
	return strings.TrimPrefix(path, prefix)
}

// parseHunkHeader parses "@@ -oldStart,oldCount +newStart,newCount @@[ ...]".
// A missing ",count" defaults the count to 1, matching patch(1) behavior.
func parseHunkHeader(line string) (*ParsedHunk, error) {
	body := strings.TrimPrefix(line, "@@ ")
	end := strings.Index(body, "@@")
	if end < 0 {
		return nil, parseErr("malformed hunk header %q", line)
	}
	body = strings.TrimSpace(body[:end])
	parts := strings.Fields(body)
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "-") || !strings.HasPrefix(parts[1], "+") {
		return nil, parseErr("malformed hunk header %q", line)
	}
	oldStart, oldCount, err := parseRange(parts[0][1:])
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrParse, fmt.Sprintf("malformed old range in %q", line), err)
	}
	newStart, newCount, err := parseRange(parts[1][1:])
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrParse, fmt.Sprintf("malformed new range in %q", line), err)
	}
	return &ParsedHunk{OldStart: oldStart, OldCount: oldCount, NewStart: newStart, NewCount: newCount}, nil
}

func parseRange(s string) (start, count int, err error) {
	parts := strings.SplitN(s, ",", 2)
	start, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 1 {
		return start, 1, nil
	}
	count, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, count, nil
}
