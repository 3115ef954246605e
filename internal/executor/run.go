package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mgxlabs/orchestrator/internal/broadcaster"
	"github.com/mgxlabs/orchestrator/internal/diffpatch"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/orchestrator"
	"github.com/mgxlabs/orchestrator/internal/repository"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// drive runs task's run through pending -> ... -> a terminal status. Every
// status change is written via e.repo.UpdateRun before the matching event
// is published on e.bus (spec.md §4.9's persist-before-publish discipline);
// a crash between the two loses at most one event, never a transition.
func (e *Executor) drive(ctx context.Context, task *types.Task, run *types.TaskRun, gate chan approvalDecision) {
	mem := orchestrator.NewMemory(e.cfg.MemorySize)

	if !e.transition(ctx, task, run, types.StatusAnalyzing, types.EventAnalysisStart, nil) {
		return
	}

	plan, _, err := e.pipeline.Analyze(ctx, task, mem)
	if err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return
	}
	run.Plan = plan
	if _, err := e.repo.UpdateRun(ctx, run.ID, repository.RunPatch{Plan: plan}); err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return
	}
	e.publish(task, run, types.EventPlanReady, plan)

	if !e.transition(ctx, task, run, types.StatusAwaitingApproval, types.EventApprovalRequired, plan) {
		return
	}

	if !e.awaitApproval(ctx, task, run, gate, types.StatusApproved) {
		return
	}

	if !e.transition(ctx, task, run, types.StatusExecuting, types.EventProgress, types.ProgressData{CurrentPhase: "executing"}) {
		return
	}

	results, outcome, err := e.pipeline.Execute(ctx, task, plan, mem)
	if err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return
	}
	run.Results = results
	revisionRounds := results.RevisionRounds
	if _, err := e.repo.UpdateRun(ctx, run.ID, repository.RunPatch{Results: results, RevisionRounds: &revisionRounds}); err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return
	}

	// Code/test/review all already ran inside Execute; Validating here
	// represents the guardrail-confirmed state those internal rounds
	// produced, and is the only state AwaitingApproval may be re-entered
	// from (spec.md §4.9's graph), so every outcome passes through it
	// before branching.
	if !e.transition(ctx, task, run, types.StatusValidating, types.EventValidationPassed, nil) {
		return
	}

	switch outcome {
	case orchestrator.OutcomeNeedsInfo:
		e.fail(ctx, task, run, &types.RunError{
			Kind:    types.ErrRevisionExhausted,
			Message: "implementer could not produce a manifest the guardrails accept within max_revision_rounds",
		})
		return
	case orchestrator.OutcomeNeedsHumanDecision:
		reason := "human_review"
		if !e.transition(ctx, task, run, types.StatusAwaitingApproval, types.EventApprovalRequired, results.ReviewNotes) {
			return
		}
		if _, err := e.repo.UpdateRun(ctx, run.ID, repository.RunPatch{ApprovalReason: &reason}); err != nil {
			e.fail(ctx, task, run, mgxerr.ToRunError(err))
			return
		}
		if !e.awaitApproval(ctx, task, run, gate, types.StatusValidating) {
			return
		}
		// Resuming into Validating means the human cleared the reviewer's
		// escalation; the manifest was already guardrail-valid, so it
		// materializes the same way an OutcomeCompleted run would.
	case orchestrator.OutcomeCompleted:
		// fall through to materialize below
	}

	if !e.materialize(ctx, task, run, results) {
		return
	}

	e.complete(ctx, task, run)
}

// transition checks cancellation, persists the new status, and publishes
// the matching event. It returns false (and has already called fail or
// left the run cancelled) if the step could not proceed.
func (e *Executor) transition(ctx context.Context, task *types.Task, run *types.TaskRun, status types.RunStatus, evt types.EventType, data interface{}) bool {
	if ctx.Err() != nil {
		e.onContextDone(ctx, task, run)
		return false
	}
	updated, err := e.repo.UpdateRun(ctx, run.ID, repository.RunPatch{Status: &status})
	if err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return false
	}
	run.Status = updated.Status
	run.UpdatedAt = updated.UpdatedAt
	e.publish(task, run, evt, data)
	return true
}

// awaitApproval blocks on gate until a decision arrives, the approval
// timeout elapses, or ctx is cancelled, then applies the matching
// transition. It returns false if the run did not reach approvedStatus.
func (e *Executor) awaitApproval(ctx context.Context, task *types.Task, run *types.TaskRun, gate chan approvalDecision, approvedStatus types.RunStatus) bool {
	timer := time.NewTimer(time.Duration(e.cfg.ApprovalTimeoutSeconds) * time.Second)
	defer timer.Stop()

	select {
	case decision := <-gate:
		if !decision.approved {
			e.reject(ctx, task, run, decision.feedback)
			return false
		}
		return e.transition(ctx, task, run, approvedStatus, types.EventApproved, nil)
	case <-timer.C:
		e.fail(ctx, task, run, &types.RunError{Kind: types.ErrApprovalTimeout, Message: "no approval decision within the configured window"})
		return false
	case <-ctx.Done():
		e.onContextDone(ctx, task, run)
		return false
	}
}

// materialize carries a completed Execute's manifest to disk and, if the
// task is linked to a repo, through commit/push/PR. Each git-mutating step
// checks ctx first, since cancellation past this point must not leave a
// half-pushed branch silently abandoned without a recorded status.
func (e *Executor) materialize(ctx context.Context, task *types.Task, run *types.TaskRun, results *types.RunResults) bool {
	if task.OutputMode == types.OutputPatchExisting {
		if !e.transition(ctx, task, run, types.StatusPatching, types.EventProgress, types.ProgressData{CurrentPhase: "patching"}) {
			return false
		}
		if err := e.applyPatches(task, results.Manifest); err != nil {
			e.publish(task, run, types.EventPatchApplyFailed, err.Error())
			e.fail(ctx, task, run, mgxerr.ToRunError(err))
			return false
		}
	} else if err := writeFiles(task.ExistingProjectPath, results.Manifest); err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return false
	}

	git := e.newGitClient(task)
	if git == nil {
		return true
	}

	if ctx.Err() != nil {
		e.onContextDone(ctx, task, run)
		return false
	}
	if !e.transition(ctx, task, run, types.StatusCommitting, types.EventProgress, types.ProgressData{CurrentPhase: "committing"}) {
		return false
	}
	branch := git.BranchName(task.ID, run.RunNumber)
	if err := git.CreateBranch(ctx, branch); err != nil {
		e.gitFail(ctx, task, run, err)
		return false
	}
	if err := git.StageAll(ctx); err != nil {
		e.gitFail(ctx, task, run, err)
		return false
	}
	sha, err := git.Commit(ctx, git.CommitMessage(task.Title, run.RunNumber))
	if err != nil {
		e.gitFail(ctx, task, run, err)
		return false
	}
	committed := types.GitCommitted
	if _, err := e.repo.UpdateRun(ctx, run.ID, repository.RunPatch{BranchName: &branch, CommitSHA: &sha, GitStatus: &committed}); err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return false
	}
	run.BranchName, run.CommitSHA, run.GitStatus = branch, sha, committed
	e.publish(task, run, types.EventGitCommitCreated, sha)

	if ctx.Err() != nil {
		e.onContextDone(ctx, task, run)
		return false
	}
	if !e.transition(ctx, task, run, types.StatusPushing, types.EventProgress, types.ProgressData{CurrentPhase: "pushing"}) {
		return false
	}
	if err := git.Push(ctx, branch); err != nil {
		e.publish(task, run, types.EventGitPushFailed, err.Error())
		e.gitFail(ctx, task, run, err)
		return false
	}
	pushed := types.GitPushed
	if _, err := e.repo.UpdateRun(ctx, run.ID, repository.RunPatch{GitStatus: &pushed}); err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return false
	}
	run.GitStatus = pushed
	e.publish(task, run, types.EventGitPushSuccess, branch)

	if task.Repo.ReferenceBranch == "" {
		return true
	}
	if !e.transition(ctx, task, run, types.StatusPROpened, types.EventProgress, types.ProgressData{CurrentPhase: "pr_opened"}) {
		return false
	}
	prURL, err := openPR(task, branch, run.RunNumber)
	if err != nil {
		e.gitFail(ctx, task, run, err)
		return false
	}
	opened := types.GitPROpened
	if _, err := e.repo.UpdateRun(ctx, run.ID, repository.RunPatch{PRURL: &prURL, GitStatus: &opened}); err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return false
	}
	run.PRURL, run.GitStatus = prURL, opened
	e.publish(task, run, types.EventPullRequestOpened, prURL)
	return true
}

// applyPatches diffs each manifest entry against the file currently on disk
// (absent files are treated as creates) and batch-applies the result
// all-or-nothing, so a single hunk failure never leaves the checkout with
// half a manifest applied.
func (e *Executor) applyPatches(task *types.Task, manifest []types.FileManifestEntry) error {
	var parsed []diffpatch.ParsedFileDiff
	for _, entry := range manifest {
		abs := filepath.Join(task.ExistingProjectPath, entry.Path)
		old := ""
		if b, err := os.ReadFile(abs); err == nil {
			old = string(b)
		}
		fd := diffpatch.ComputeDiff(entry.Path, entry.Path, old, entry.Content)
		files, err := diffpatch.ParseUnifiedDiff(fd.Render())
		if err != nil {
			return mgxerr.WrapPreserving(types.ErrPatch, "rendering diff for "+entry.Path, err)
		}
		parsed = append(parsed, files...)
	}
	result, err := diffpatch.BatchApply(task.ExistingProjectPath, parsed, diffpatch.AllOrNothing)
	if err != nil {
		return mgxerr.WrapPreserving(types.ErrPatch, "batch apply", err)
	}
	if len(result.Failed) > 0 {
		return mgxerr.Newf(types.ErrPatch, "%d file(s) failed to apply: %s", len(result.Failed), result.Failed[0].Path)
	}
	for _, applied := range result.Applied {
		for _, warning := range applied.DriftWarnings {
			e.log().Warn("patch for %s: hunk %d applied with drift %d lines", applied.Path, warning.HunkIndex+1, warning.Drift)
		}
	}
	return nil
}

// writeFiles materializes a generate_new manifest directly, since there is
// no prior content to diff against.
func writeFiles(basePath string, manifest []types.FileManifestEntry) error {
	for _, entry := range manifest {
		abs := filepath.Join(basePath, entry.Path)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return mgxerr.Wrap(types.ErrPatch, "creating directory for "+entry.Path, err)
		}
		if err := os.WriteFile(abs, []byte(entry.Content), 0o644); err != nil {
			return mgxerr.Wrap(types.ErrPatch, "writing "+entry.Path, err)
		}
	}
	return nil
}

func (e *Executor) complete(ctx context.Context, task *types.Task, run *types.TaskRun) {
	done := true
	status := types.StatusCompleted
	updated, err := e.repo.UpdateRun(ctx, run.ID, repository.RunPatch{Status: &status, CompletedAt: &done})
	if err != nil {
		e.fail(ctx, task, run, mgxerr.ToRunError(err))
		return
	}
	run.Status, run.CompletedAt = updated.Status, updated.CompletedAt
	_ = e.repo.BumpTaskCounters(ctx, task.ID, repository.OutcomeSuccess, nil)
	e.publish(task, run, types.EventCompletion, run.Results)
}

func (e *Executor) fail(ctx context.Context, task *types.Task, run *types.TaskRun, runErr *types.RunError) {
	if ctx.Err() != nil {
		// The step failed because the run context was cancelled or timed
		// out mid-call; record that rather than a plain failure.
		e.onContextDone(ctx, task, run)
		return
	}
	done := true
	status := types.StatusFailed
	updated, err := e.repo.UpdateRun(context.Background(), run.ID, repository.RunPatch{Status: &status, Error: runErr, CompletedAt: &done})
	if err == nil {
		run.Status, run.Error, run.CompletedAt = updated.Status, updated.Error, updated.CompletedAt
	}
	_ = e.repo.BumpTaskCounters(context.Background(), task.ID, repository.OutcomeFailure, runErr)
	e.publish(task, run, types.EventFailure, runErr)
	e.log().Warn("run %s failed: %s", run.ID, runErr.Error())
}

func (e *Executor) reject(ctx context.Context, task *types.Task, run *types.TaskRun, feedback string) {
	done := true
	status := types.StatusCancelled
	updated, err := e.repo.UpdateRun(context.Background(), run.ID, repository.RunPatch{Status: &status, CompletedAt: &done})
	if err == nil {
		run.Status, run.CompletedAt = updated.Status, updated.CompletedAt
	}
	_ = e.repo.BumpTaskCounters(context.Background(), task.ID, repository.OutcomeFailure, nil)
	e.publish(task, run, types.EventRejected, feedback)
}

// onContextDone maps a cancelled run context to either a cooperative
// cancellation or a wall-clock timeout, per which error ctx carries.
func (e *Executor) onContextDone(ctx context.Context, task *types.Task, run *types.TaskRun) {
	done := true
	if ctx.Err() == context.DeadlineExceeded {
		status := types.StatusTimeout
		updated, err := e.repo.UpdateRun(context.Background(), run.ID, repository.RunPatch{Status: &status, CompletedAt: &done})
		if err == nil {
			run.Status, run.CompletedAt = updated.Status, updated.CompletedAt
		}
		_ = e.repo.BumpTaskCounters(context.Background(), task.ID, repository.OutcomeFailure, &types.RunError{Kind: types.ErrRunTimeout, Message: "run exceeded run_timeout_seconds"})
		e.publish(task, run, types.EventTimeout, nil)
		return
	}
	status := types.StatusCancelled
	updated, err := e.repo.UpdateRun(context.Background(), run.ID, repository.RunPatch{Status: &status, CompletedAt: &done})
	if err == nil {
		run.Status, run.CompletedAt = updated.Status, updated.CompletedAt
	}
	_ = e.repo.BumpTaskCounters(context.Background(), task.ID, repository.OutcomeFailure, &types.RunError{Kind: types.ErrCancelled, Message: "run cancelled"})
	e.publish(task, run, types.EventCancelled, nil)
}

func (e *Executor) gitFail(ctx context.Context, task *types.Task, run *types.TaskRun, err error) {
	failed := types.GitFailed
	if _, uerr := e.repo.UpdateRun(context.Background(), run.ID, repository.RunPatch{GitStatus: &failed}); uerr == nil {
		run.GitStatus = failed
	}
	e.publish(task, run, types.EventGitOperationFailed, err.Error())
	e.fail(ctx, task, run, mgxerr.ToRunError(err))
}

func (e *Executor) publish(task *types.Task, run *types.TaskRun, evt types.EventType, data interface{}) {
	e.bus.Publish(broadcaster.RunChannel(run.ID), broadcaster.NewEvent(evt, task.WorkspaceID, task.ID, run.ID, data))
	e.bus.Publish(broadcaster.TaskChannel(task.ID), broadcaster.NewEvent(evt, task.WorkspaceID, task.ID, run.ID, data))
}

func openPR(task *types.Task, branch string, runNumber int) (string, error) {
	return openPRFunc(task.Repo.FullName, branch, task.Repo.ReferenceBranch,
		fmt.Sprintf("%s (run #%d)", task.Title, runNumber),
		"Opened automatically by the orchestrator.")
}
