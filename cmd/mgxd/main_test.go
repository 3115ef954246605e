package main

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgxlabs/orchestrator/internal/types"
)

func TestPromptApproval(t *testing.T) {
	cases := map[string]bool{
		"y\n":   true,
		"Y\n":   true,
		"yes\n": false, // only a bare y/Y counts, mirroring the [y/N] prompt text
		"n\n":   false,
		"\n":    false,
	}
	for input, want := range cases {
		got := promptApproval(bufio.NewReader(strings.NewReader(input)), types.Event{RunID: "run-1"})
		require.Equal(t, want, got, "input %q", input)
	}
}

func TestRunStatusRequiresAnIdentifier(t *testing.T) {
	statusTaskID, statusRunID = "", ""
	err := runStatus(statusCmd, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "--task-id or --run-id")
}
