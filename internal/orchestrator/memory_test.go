package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_AppendDropsOldestPastCapacity(t *testing.T) {
	m := NewMemory(2)
	m.Append(Message{RoleName: "planner", Content: "first", CreatedAt: time.Now()})
	m.Append(Message{RoleName: "planner", Content: "second", CreatedAt: time.Now()})
	m.Append(Message{RoleName: "planner", Content: "third", CreatedAt: time.Now()})

	require.Len(t, m.entries, 2)
	require.Equal(t, "second", m.entries[0].Content)
	require.Equal(t, "third", m.entries[1].Content)
}

func TestMemory_RelevantFiltersByTagAndKeyword(t *testing.T) {
	m := NewMemory(10)
	m.Append(Message{RoleName: "planner", Content: "build a todo app", Tags: []string{"plan"}})
	m.Append(Message{RoleName: "tester", Content: "unrelated note", Tags: []string{"test"}})
	m.Append(Message{RoleName: "implementer", Content: "added auth middleware", Tags: []string{"code"}})

	role := Implementer()
	got := m.Relevant(role, []string{"auth"}, 5)
	require.Len(t, got, 1)
	require.Equal(t, "added auth middleware", got[0].Content)
}

func TestMemory_RelevantNeverExceedsN(t *testing.T) {
	m := NewMemory(10)
	for i := 0; i < 8; i++ {
		m.Append(Message{RoleName: "planner", Content: "plan step", Tags: []string{"plan"}})
	}
	role := Planner()
	got := m.Relevant(role, nil, 5)
	require.Len(t, got, 5)
}

func TestMemory_RelevantReturnsChronologicalOrder(t *testing.T) {
	m := NewMemory(10)
	m.Append(Message{RoleName: "planner", Content: "plan A", Tags: []string{"plan"}})
	m.Append(Message{RoleName: "planner", Content: "plan B", Tags: []string{"plan"}})
	m.Append(Message{RoleName: "planner", Content: "plan C", Tags: []string{"plan"}})

	got := m.Relevant(Planner(), nil, 2)
	require.Len(t, got, 2)
	require.Equal(t, "plan B", got[0].Content)
	require.Equal(t, "plan C", got[1].Content)
}

func TestTaskKeywords_SplitsOnNonAlphanumeric(t *testing.T) {
	got := taskKeywords("Build a todo-app with auth!")
	require.Equal(t, []string{"Build", "a", "todo", "app", "with", "auth"}, got)
}
