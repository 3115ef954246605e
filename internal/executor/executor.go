// Package executor drives a TaskRun through the state graph from spec.md
// §4.9: it owns the concurrency gate, the approval gate, the run-level
// timeout and cancellation, and the persist-then-publish discipline that
// every transition must obey. It is the one component that calls into
// internal/orchestrator, internal/diffpatch and internal/githooks in
// sequence; none of those packages know about each other or about run
// state. Grounded on the teacher's internal/campaign orchestrator_execution.go
// (the Run(ctx) loop and its heartbeat goroutine) and orchestrator_tasks.go
// (runPhase/runSingleTask's phase-by-phase persistence before emitting
// events), generalized from a Mangle-kernel-driven phase graph to the fixed
// RunStatus graph in internal/repository.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/mgxlabs/orchestrator/internal/broadcaster"
	"github.com/mgxlabs/orchestrator/internal/config"
	"github.com/mgxlabs/orchestrator/internal/githooks"
	"github.com/mgxlabs/orchestrator/internal/logging"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/orchestrator"
	"github.com/mgxlabs/orchestrator/internal/repository"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// openPRFunc is githooks.OpenPR by default; tests override it to avoid
// shelling out to the gh CLI.
var openPRFunc = githooks.OpenPR

// approvalDecision is sent on a run's approval channel when a caller
// resolves its awaiting_approval state via Approve or Reject.
type approvalDecision struct {
	approved bool
	feedback string
}

// Executor runs Tasks to completion, one TaskRun at a time per Start call,
// bounded by a process-wide concurrency cap. It is safe for concurrent use.
type Executor struct {
	repo     repository.Repository
	bus      *broadcaster.Broadcaster
	pipeline *orchestrator.Pipeline
	cfg      config.ExecutionConfig
	gitCfg   config.GitConfig

	tokens chan struct{} // admission token bucket, buffered to cfg.ConcurrencyCap

	mu      sync.Mutex
	gates   map[string]chan approvalDecision // runID -> pending approval gate
	cancels map[string]context.CancelFunc    // runID -> cancel for its run context
}

// New constructs an Executor. gitCfg is passed separately from cfg because
// a githooks.Client is only built per-run, once a Task's Repo is known.
func New(repo repository.Repository, bus *broadcaster.Broadcaster, pipeline *orchestrator.Pipeline, cfg config.ExecutionConfig, gitCfg config.GitConfig) *Executor {
	return &Executor{
		repo:     repo,
		bus:      bus,
		pipeline: pipeline,
		cfg:      cfg,
		gitCfg:   gitCfg,
		tokens:   make(chan struct{}, cfg.ConcurrencyCap),
		gates:    make(map[string]chan approvalDecision),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start admits a new run for task and, on success, launches it in the
// background, returning the run's initial (pending) record immediately. If
// the concurrency cap is saturated it returns a retryable ErrCapacityExhausted
// error rather than blocking, per SPEC_FULL.md's retryable-intake-rejection
// supplement — callers are expected to retry with backoff, not queue here.
func (e *Executor) Start(ctx context.Context, taskID string) (*types.TaskRun, error) {
	select {
	case e.tokens <- struct{}{}:
	default:
		return nil, mgxerr.Newf(types.ErrCapacityExhausted, "executor at capacity (%d concurrent runs); retry shortly", e.cfg.ConcurrencyCap)
	}

	task, err := e.repo.LoadTask(ctx, taskID)
	if err != nil {
		<-e.tokens
		return nil, err
	}

	run, err := e.repo.CreateRun(ctx, taskID)
	if err != nil {
		<-e.tokens
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.RunTimeoutSeconds)*time.Second)
	gate := make(chan approvalDecision, 1)

	e.mu.Lock()
	e.gates[run.ID] = gate
	e.cancels[run.ID] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			<-e.tokens
			e.mu.Lock()
			delete(e.gates, run.ID)
			delete(e.cancels, run.ID)
			e.mu.Unlock()
		}()
		e.drive(runCtx, task, run, gate)
	}()

	return run, nil
}

// Approve resolves an awaiting_approval run. feedback is recorded in the
// rejection case only; an approval carries no feedback payload today but
// the field is kept symmetric for future use.
func (e *Executor) Approve(runID string, approved bool, feedback string) error {
	e.mu.Lock()
	gate, ok := e.gates[runID]
	e.mu.Unlock()
	if !ok {
		return mgxerr.Newf(types.ErrInvalidInput, "run %s has no pending approval", runID)
	}
	select {
	case gate <- approvalDecision{approved: approved, feedback: feedback}:
		return nil
	default:
		return mgxerr.Newf(types.ErrInvalidInput, "run %s approval already resolved", runID)
	}
}

// Cancel cancels an in-flight run's context. The run checks for this
// between phases and before each git-mutating step; an LLM request or git
// command already running under that context is abandoned. Either way the
// run ends as cancelled (or timeout, if its deadline had already passed).
func (e *Executor) Cancel(runID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if !ok {
		return mgxerr.Newf(types.ErrInvalidInput, "run %s is not active", runID)
	}
	cancel()
	return nil
}

// newGitClient builds a githooks.Client rooted at the task's checkout path.
// Returns nil if task has no linked repo, in which case committing/pushing/
// pr_opened are skipped entirely.
func (e *Executor) newGitClient(task *types.Task) *githooks.Client {
	if task.Repo == nil || task.ExistingProjectPath == "" {
		return nil
	}
	cfg := e.gitCfg
	if task.RunBranchPrefix != "" {
		cfg.RunBranchPrefix = task.RunBranchPrefix
	}
	if task.CommitTemplate != "" {
		cfg.CommitTemplate = task.CommitTemplate
	}
	return githooks.New(task.ExistingProjectPath, cfg)
}

func (e *Executor) log() *logging.Logger {
	return logging.Get(logging.CategoryExecutor)
}
