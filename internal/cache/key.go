package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyFields are the explicit inputs a caller combines into a cache key.
// Two logically identical requests must produce identical Key output; the
// caller is responsible for any prompt normalization (whitespace-only
// differences are NOT normalized here).
type KeyFields struct {
	Model        string
	TempClass    string
	Prompt       string
	CapabilityTag string
	ScopeTag     string
}

// Key returns a stable fingerprint over f, suitable for passing to
// Cache.Lookup/Store. Grounded on the stdlib-hash idiom used by the
// teacher's own internal/diff cache key (an FNV hash over diff inputs);
// SHA-256 is used here since the fields are concatenated external text
// rather than a small fixed-size struct.
func Key(f KeyFields) string {
	var b strings.Builder
	b.WriteString(f.Model)
	b.WriteByte('\x00')
	b.WriteString(f.TempClass)
	b.WriteByte('\x00')
	b.WriteString(f.Prompt)
	b.WriteByte('\x00')
	b.WriteString(f.CapabilityTag)
	b.WriteByte('\x00')
	b.WriteString(f.ScopeTag)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
