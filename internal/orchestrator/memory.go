package orchestrator

import (
	"sync"
	"time"
)

// Message is one entry in the shared append-only log every role reads
// from. Grounded on the teacher's task_result fact pattern in
// internal/campaign/orchestrator_tasks.go (completeTask/storeTaskResult),
// generalized from Mangle facts to plain structs since the pipeline has no
// datalog kernel to assert into.
type Message struct {
	RoleName  string
	Phase     string
	Content   string
	Tags      []string
	CreatedAt time.Time
}

// Memory is the bounded append-only log shared between roles. It caps at a
// fixed capacity (config's memory_size, default 50) by dropping the oldest
// entry, and never exposes the full log to a role directly — callers must
// go through Relevant to get a role-specific, further-bounded slice.
type Memory struct {
	mu       sync.Mutex
	entries  []Message
	capacity int
}

// NewMemory builds a Memory capped at capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory{capacity: capacity}
}

// Append records msg, dropping the oldest entry if the log is at capacity.
func (m *Memory) Append(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, msg)
	if over := len(m.entries) - m.capacity; over > 0 {
		m.entries = m.entries[over:]
	}
}

// Relevant returns the (up to) n most recent entries matching role's
// relevance predicate against taskKeywords, in chronological order, per
// spec.md §4.8's memory discipline: no role is ever handed the entire
// unbounded history.
func (m *Memory) Relevant(role Role, taskKeywords []string, n int) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || role.Relevant == nil {
		return nil
	}

	var out []Message
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		if role.Relevant(m.entries[i], taskKeywords) {
			out = append(out, m.entries[i])
		}
	}
	// Restore chronological order for the rendered prompt.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// taskKeywords splits a task description into words (runs of ASCII
// letters and digits, case kept as written) for substring relevance
// matching; the relevance predicates compare case-insensitively.
// Deliberately simple: spec.md §4.8 calls for substring match on task
// keywords, not a tokenizer or stemmer.
func taskKeywords(description string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	for _, r := range description {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return words
}
