package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mgxlabs/orchestrator/internal/broadcaster"
	"github.com/mgxlabs/orchestrator/internal/cache"
	"github.com/mgxlabs/orchestrator/internal/config"
	"github.com/mgxlabs/orchestrator/internal/guardrails"
	"github.com/mgxlabs/orchestrator/internal/llm"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/orchestrator"
	"github.com/mgxlabs/orchestrator/internal/repository"
	"github.com/mgxlabs/orchestrator/internal/types"
)

const validReactManifest = `FILE: package.json
{"name": "app", "dependencies": {"react": "^18.0.0", "react-dom": "^18.0.0", "vite": "^5.0.0", "@vitejs/plugin-react": "^4.0.0", "typescript": "^5.0.0"}}
FILE: vite.config.ts
export default {}
FILE: index.html
<!doctype html><html></html>
FILE: src/main.tsx
console.log("vite")
FILE: src/components/App.tsx
export default function App() { return null }
`

// scriptedClient returns canned responses round-robin, mirroring the
// test-local fake convention already used in internal/orchestrator.
type scriptedClient struct {
	responses []llm.Response
	calls     int
}

func (c *scriptedClient) SchemaCapable() bool { return true }

func (c *scriptedClient) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	if c.calls >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func analyzeResponses() []llm.Response {
	return []llm.Response{
		{Text: `{"complexity":"S","stack":"react-vite","manifest_hint":["src/main.tsx"]}`},
		{Text: "1. scaffold vite project\n2. add components"},
	}
}

func newTestExecutor(t *testing.T, client llm.Client, cfg config.ExecutionConfig) (*Executor, *repository.MemoryRepository) {
	t.Helper()
	registry, err := guardrails.NewRegistry()
	require.NoError(t, err)
	pipeline := orchestrator.New(client, cache.NewNullCache(), registry, cfg)
	repo := repository.NewMemory()
	bus := broadcaster.New(16)
	return New(repo, bus, pipeline, cfg, config.GitConfig{}), repo
}

func newTestTask(t *testing.T, repo *repository.MemoryRepository) *types.Task {
	t.Helper()
	task, err := repo.CreateTask(context.Background(), &types.Task{
		Title:               "build a todo app",
		Description:         "build a todo app",
		TargetStack:         "react-vite",
		OutputMode:          types.OutputGenerateNew,
		ExistingProjectPath: t.TempDir(),
	})
	require.NoError(t, err)
	return task
}

func pollStatus(t *testing.T, repo *repository.MemoryRepository, runID string, want types.RunStatus, timeout time.Duration) *types.TaskRun {
	t.Helper()
	deadline := time.After(timeout)
	for {
		run, err := repo.LoadRun(context.Background(), runID)
		require.NoError(t, err)
		if run.Status == want || run.Status.Terminal() {
			return run
		}
		select {
		case <-deadline:
			t.Fatalf("run %s did not reach %s within %s (last status %s)", runID, want, timeout, run.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestExecutor_CompletesOnApprovalAndReview(t *testing.T) {
	client := &scriptedClient{responses: append(analyzeResponses(),
		llm.Response{Text: validReactManifest},
		llm.Response{Text: "FILE: src/App.test.tsx\nexpect(true).toBe(true)\n"},
		llm.Response{Text: `{"verdict":"approved","notes":"looks good"}`},
	)}
	cfg := config.ExecutionConfig{MaxRounds: 3, MaxRevisionRounds: 2, MemorySize: 20, ApprovalTimeoutSeconds: 5, RunTimeoutSeconds: 30, ConcurrencyCap: 2}
	exec, repo := newTestExecutor(t, client, cfg)
	task := newTestTask(t, repo)

	run, err := exec.Start(context.Background(), task.ID)
	require.NoError(t, err)

	pollStatus(t, repo, run.ID, types.StatusAwaitingApproval, time.Second)
	require.NoError(t, exec.Approve(run.ID, true, ""))

	final := pollStatus(t, repo, run.ID, types.StatusCompleted, time.Second)
	require.Equal(t, types.StatusCompleted, final.Status)
	require.Equal(t, "approved", final.Results.ReviewVerdict)
	require.NotEmpty(t, final.Results.Manifest)
}

func TestExecutor_RejectCancelsRun(t *testing.T) {
	client := &scriptedClient{responses: analyzeResponses()}
	cfg := config.ExecutionConfig{MaxRounds: 3, MaxRevisionRounds: 2, MemorySize: 20, ApprovalTimeoutSeconds: 5, RunTimeoutSeconds: 30, ConcurrencyCap: 2}
	exec, repo := newTestExecutor(t, client, cfg)
	task := newTestTask(t, repo)

	run, err := exec.Start(context.Background(), task.ID)
	require.NoError(t, err)

	pollStatus(t, repo, run.ID, types.StatusAwaitingApproval, time.Second)
	require.NoError(t, exec.Approve(run.ID, false, "not what I asked for"))

	final := pollStatus(t, repo, run.ID, types.StatusCancelled, time.Second)
	require.Equal(t, types.StatusCancelled, final.Status)
}

func TestExecutor_ApprovalTimeoutFailsRun(t *testing.T) {
	client := &scriptedClient{responses: analyzeResponses()}
	cfg := config.ExecutionConfig{MaxRounds: 3, MaxRevisionRounds: 2, MemorySize: 20, ApprovalTimeoutSeconds: 1, RunTimeoutSeconds: 30, ConcurrencyCap: 2}
	exec, repo := newTestExecutor(t, client, cfg)
	task := newTestTask(t, repo)

	run, err := exec.Start(context.Background(), task.ID)
	require.NoError(t, err)

	final := pollStatus(t, repo, run.ID, types.StatusFailed, 3*time.Second)
	require.Equal(t, types.StatusFailed, final.Status)
	require.Equal(t, types.ErrApprovalTimeout, final.Error.Kind)
}

func TestExecutor_StartReturnsCapacityExhaustedWhenSaturated(t *testing.T) {
	client := &scriptedClient{responses: analyzeResponses()}
	cfg := config.ExecutionConfig{MaxRounds: 3, MaxRevisionRounds: 2, MemorySize: 20, ApprovalTimeoutSeconds: 30, RunTimeoutSeconds: 30, ConcurrencyCap: 1}
	exec, repo := newTestExecutor(t, client, cfg)
	task := newTestTask(t, repo)

	first, err := exec.Start(context.Background(), task.ID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Cancel(first.ID) })
	pollStatus(t, repo, first.ID, types.StatusAwaitingApproval, time.Second)

	_, err = exec.Start(context.Background(), task.ID)
	require.Error(t, err)
	require.Equal(t, types.ErrCapacityExhausted, mgxerr.KindOf(err))
}

func TestExecutor_NeedsHumanDecisionResumesAfterSecondApproval(t *testing.T) {
	client := &scriptedClient{responses: append(analyzeResponses(),
		llm.Response{Text: validReactManifest},
		llm.Response{Text: "FILE: src/App.test.tsx\nexpect(true).toBe(true)\n"},
		llm.Response{Text: `{"verdict":"needs_human_decision","notes":"touches payments"}`},
	)}
	cfg := config.ExecutionConfig{MaxRounds: 3, MaxRevisionRounds: 2, MemorySize: 20, ApprovalTimeoutSeconds: 5, RunTimeoutSeconds: 30, ConcurrencyCap: 2}
	exec, repo := newTestExecutor(t, client, cfg)
	task := newTestTask(t, repo)

	run, err := exec.Start(context.Background(), task.ID)
	require.NoError(t, err)

	pollStatus(t, repo, run.ID, types.StatusAwaitingApproval, time.Second)
	require.NoError(t, exec.Approve(run.ID, true, ""))

	escalated := pollStatus(t, repo, run.ID, types.StatusAwaitingApproval, time.Second)
	require.Equal(t, types.StatusAwaitingApproval, escalated.Status)
	require.Equal(t, "human_review", escalated.ApprovalReason)

	require.NoError(t, exec.Approve(run.ID, true, ""))
	final := pollStatus(t, repo, run.ID, types.StatusCompleted, time.Second)
	require.Equal(t, types.StatusCompleted, final.Status)
	require.Equal(t, "needs_human_decision", final.Results.ReviewVerdict)
}
