package manifest

import (
	"fmt"
	"strings"

	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// scanState is the parser's two states, per spec.md §9's instruction to
// avoid regex-driven prose parsing: the parser only ever knows whether it
// is scanning for the next FILE header or accumulating one file's body.
type scanState int

const (
	scanning scanState = iota
	inFileBlock
)

const fileLinePrefix = "FILE: "

// ParseOptions controls strictness of the scan.
type ParseOptions struct {
	// Strict rejects any non-empty line found outside a FILE block.
	// Non-strict silently discards such lines as prose.
	Strict bool
}

// Parse scans text for `FILE: <path>` blocks and returns one
// FileManifestEntry per block, in the order they appear. Duplicate paths
// (after normalization) are a parse error. A line is recognized as a file
// header only when it starts with the exact "FILE: " prefix (case
// sensitive, single space).
func Parse(text string, opts ParseOptions) ([]types.FileManifestEntry, error) {
	lines := strings.Split(text, "\n")

	state := scanning
	var entries []types.FileManifestEntry
	var current *types.FileManifestEntry
	var body []string
	seen := make(map[string]bool)

	flush := func() {
		if current == nil {
			return
		}
		content := strings.Join(body, "\n")
		content = normalizeTrailingNewline(content)
		current.Content = content
		entries = append(entries, *current)
		current = nil
		body = nil
	}

	for i, line := range lines {
		if strings.HasPrefix(line, fileLinePrefix) {
			flush()
			rawPath := strings.TrimPrefix(line, fileLinePrefix)
			normalized := NormalizePath(rawPath)
			if !SafePath(rawPath) {
				return nil, mgxerr.Newf(types.ErrParse, "line %d: unsafe path %q", i+1, rawPath)
			}
			if seen[normalized] {
				return nil, mgxerr.Newf(types.ErrParse, "line %d: duplicate path %q", i+1, normalized)
			}
			seen[normalized] = true

			current = &types.FileManifestEntry{Path: normalized, Op: types.OpModify}
			state = inFileBlock
			continue
		}

		switch state {
		case inFileBlock:
			body = append(body, line)
		case scanning:
			if opts.Strict && strings.TrimSpace(line) != "" {
				return nil, mgxerr.Newf(types.ErrParse, "line %d: non-empty line outside FILE block in strict mode: %q", i+1, line)
			}
		}
	}
	flush()

	if len(entries) == 0 {
		return nil, mgxerr.New(types.ErrParse, "manifest contained no FILE blocks")
	}

	return entries, nil
}

// normalizeTrailingNewline makes non-empty content end in exactly one
// newline, collapsing several trailing newlines and adding the one lost
// when a block's last line is followed directly by the next FILE header,
// per spec.md §4.2. Empty content stays empty.
func normalizeTrailingNewline(content string) string {
	if content == "" {
		return content
	}
	return strings.TrimRight(content, "\n") + "\n"
}

// String renders entries back into FILE-block text, inverse of Parse for
// round-trip tests and for building revision prompts that echo the
// previous manifest.
func String(entries []types.FileManifestEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("FILE: %s\n", e.Path))
		b.WriteString(e.Content)
		if !strings.HasSuffix(e.Content, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
