// Package manifest parses the FILE-block formatted text an implementer or
// tester step produces into an ordered set of FileManifestEntry values, and
// enforces path safety shared with the patch writer (internal/diffpatch).
package manifest

import (
	"path"
	"strings"
)

// forbiddenPrefixes names absolute-path roots a generated file must never
// target, regardless of how the path is otherwise written.
var forbiddenPrefixes = []string{"/etc/", "/proc/", "/sys/", "/dev/"}

// SafePath reports whether rel is an acceptable relative path for a
// manifest entry: no ".." segment, not absolute, does not resolve outside
// the project root, and does not begin with a forbidden absolute prefix.
// Comparison is performed on the cleaned form of rel.
func SafePath(rel string) bool {
	if rel == "" {
		return false
	}
	for _, prefix := range forbiddenPrefixes {
		if strings.HasPrefix(rel, prefix) {
			return false
		}
	}
	if path.IsAbs(rel) {
		return false
	}

	cleaned := path.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	if path.IsAbs(cleaned) {
		return false
	}
	return true
}

// NormalizePath returns rel in its cleaned, slash-normalized form, the way
// duplicate-path detection and guardrail lookups compare paths.
func NormalizePath(rel string) string {
	return path.Clean(strings.ReplaceAll(rel, "\\", "/"))
}
