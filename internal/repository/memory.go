package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// MemoryRepository is an in-process Repository for tests and single-node
// development. All state lives in maps guarded by a single mutex; it does
// not persist across restarts.
type MemoryRepository struct {
	mu        sync.Mutex
	tasks     map[string]*types.Task
	runs      map[string]*types.TaskRun
	runsByTask map[string][]string
	artifacts map[string][]*types.Artifact
	metrics   map[string][]*types.Metric
}

// NewMemory constructs an empty MemoryRepository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		tasks:      make(map[string]*types.Task),
		runs:       make(map[string]*types.TaskRun),
		runsByTask: make(map[string][]string),
		artifacts:  make(map[string][]*types.Artifact),
		metrics:    make(map[string][]*types.Metric),
	}
}

func (r *MemoryRepository) CreateTask(_ context.Context, task *types.Task) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	cp := *task
	r.tasks[task.ID] = &cp
	return &cp, nil
}

func (r *MemoryRepository) LoadTask(_ context.Context, taskID string) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, mgxerr.New(types.ErrInvalidInput, "task not found: "+taskID)
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) BumpTaskCounters(_ context.Context, taskID string, outcome TaskOutcome, runErr *types.RunError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return mgxerr.New(types.ErrInvalidInput, "task not found: "+taskID)
	}
	t.TotalRuns++
	now := time.Now().UTC()
	t.LastRunAt = &now
	switch outcome {
	case OutcomeSuccess:
		t.SuccessfulRuns++
		t.LastError = nil
	case OutcomeFailure:
		t.FailedRuns++
		t.LastError = runErr
	}
	t.UpdatedAt = now
	return nil
}

func (r *MemoryRepository) CreateRun(_ context.Context, taskID string) (*types.TaskRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		return nil, mgxerr.New(types.ErrInvalidInput, "task not found: "+taskID)
	}
	now := time.Now().UTC()
	run := &types.TaskRun{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		RunNumber: len(r.runsByTask[taskID]) + 1,
		Status:    types.StatusPending,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.runs[run.ID] = run
	r.runsByTask[taskID] = append(r.runsByTask[taskID], run.ID)
	cp := *run
	return &cp, nil
}

func (r *MemoryRepository) LoadRun(_ context.Context, runID string) (*types.TaskRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil, mgxerr.New(types.ErrInvalidInput, "run not found: "+runID)
	}
	cp := *run
	return &cp, nil
}

func (r *MemoryRepository) UpdateRun(_ context.Context, runID string, patch RunPatch) (*types.TaskRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil, mgxerr.New(types.ErrInvalidInput, "run not found: "+runID)
	}
	if patch.Status != nil {
		if !IsLegalTransition(run.Status, *patch.Status) {
			return nil, mgxerr.Newf(types.ErrValidation, "illegal run transition %s -> %s", run.Status, *patch.Status)
		}
	}
	applyPatch(run, patch)
	run.UpdatedAt = time.Now().UTC()
	cp := *run
	return &cp, nil
}

func applyPatch(run *types.TaskRun, patch RunPatch) {
	if patch.Status != nil {
		run.Status = *patch.Status
	}
	if patch.Plan != nil {
		run.Plan = patch.Plan
	}
	if patch.Results != nil {
		run.Results = patch.Results
	}
	if patch.Error != nil {
		run.Error = patch.Error
	}
	if patch.RevisionRounds != nil {
		run.RevisionRounds = *patch.RevisionRounds
	}
	if patch.BranchName != nil {
		run.BranchName = *patch.BranchName
	}
	if patch.CommitSHA != nil {
		run.CommitSHA = *patch.CommitSHA
	}
	if patch.PRURL != nil {
		run.PRURL = *patch.PRURL
	}
	if patch.GitStatus != nil {
		run.GitStatus = *patch.GitStatus
	}
	if patch.ApprovalReason != nil {
		run.ApprovalReason = *patch.ApprovalReason
	}
	if patch.CompletedAt != nil && *patch.CompletedAt {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
}

func (r *MemoryRepository) AppendArtifact(_ context.Context, runID string, artifact *types.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	artifact.RunID = runID
	artifact.CreatedAt = time.Now().UTC()
	r.artifacts[runID] = append(r.artifacts[runID], artifact)
	return nil
}

func (r *MemoryRepository) ListArtifacts(_ context.Context, runID string) ([]*types.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Artifact, len(r.artifacts[runID]))
	copy(out, r.artifacts[runID])
	return out, nil
}

func (r *MemoryRepository) RecordMetric(_ context.Context, metric *types.Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if metric.ID == "" {
		metric.ID = uuid.NewString()
	}
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now().UTC()
	}
	r.metrics[metric.TaskID] = append(r.metrics[metric.TaskID], metric)
	return nil
}

func (r *MemoryRepository) ListMetrics(_ context.Context, taskID string) ([]*types.Metric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Metric, len(r.metrics[taskID]))
	copy(out, r.metrics[taskID])
	return out, nil
}

func (r *MemoryRepository) Close() error { return nil }
