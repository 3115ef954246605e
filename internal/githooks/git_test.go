package githooks

import (
	"testing"

	"github.com/mgxlabs/orchestrator/internal/config"
	"github.com/stretchr/testify/require"
)

func TestBranchName(t *testing.T) {
	c := New("/tmp/repo", config.GitConfig{RunBranchPrefix: "mgx"})
	require.Equal(t, "mgx/task-42-run-3", c.BranchName("task-42", 3))
}

func TestCommitMessage_FillsTemplate(t *testing.T) {
	c := New("/tmp/repo", config.GitConfig{
		CommitTemplate: "MGX Task: {task_name} - Run #{run_number}",
	})
	require.Equal(t, "MGX Task: Add login - Run #2", c.CommitMessage("Add login", 2))
}

func TestIsHexSHA(t *testing.T) {
	require.True(t, IsHexSHA("deadbeef"))
	require.True(t, IsHexSHA("0123456789abcdefABCDEF"))
	require.False(t, IsHexSHA(""))
	require.False(t, IsHexSHA("not-hex!"))
}

func TestIsAuthError(t *testing.T) {
	require.True(t, IsAuthError("fatal: could not read Username: Authentication required"))
	require.True(t, IsAuthError("HTTP 403: Forbidden"))
	require.False(t, IsAuthError("nothing to commit, working tree clean"))
}
