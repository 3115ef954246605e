// Package repository defines the narrow persistence interface the
// executor consumes, per spec.md §4.7. Two implementations exist:
// MemoryRepository (NewMemory; in-process maps, tests/dev) and
// SQLiteRepository (OpenSQLite; modernc.org/sqlite, the production
// default); artifact blobs live in a separate bbolt-backed store, keyed by
// run id and artifact name.
package repository

import (
	"context"

	"github.com/mgxlabs/orchestrator/internal/types"
)

// RunPatch is a partial update to a TaskRun. Nil fields are left
// unchanged. Repository implementations must apply Status together with
// any other non-nil field atomically (spec.md §4.7's atomicity
// requirement — e.g. CommitSHA and GitStatus land in the same write a
// reader can never observe half-applied).
type RunPatch struct {
	Status         *types.RunStatus
	Plan           *types.Plan
	Results        *types.RunResults
	Error          *types.RunError
	RevisionRounds *int
	BranchName     *string
	CommitSHA      *string
	PRURL          *string
	GitStatus      *types.GitStatus
	ApprovalReason *string
	CompletedAt    *bool // true sets CompletedAt=now; field exists to make "mark complete" explicit
}

// TaskOutcome is the bucket a completed run counts against on its Task.
type TaskOutcome string

const (
	OutcomeSuccess TaskOutcome = "success"
	OutcomeFailure TaskOutcome = "failure"
)

// Repository is the persistence surface the executor depends on. All
// methods are safe for concurrent use.
type Repository interface {
	CreateTask(ctx context.Context, task *types.Task) (*types.Task, error)
	LoadTask(ctx context.Context, taskID string) (*types.Task, error)
	BumpTaskCounters(ctx context.Context, taskID string, outcome TaskOutcome, runErr *types.RunError) error

	CreateRun(ctx context.Context, taskID string) (*types.TaskRun, error)
	LoadRun(ctx context.Context, runID string) (*types.TaskRun, error)
	UpdateRun(ctx context.Context, runID string, patch RunPatch) (*types.TaskRun, error)

	AppendArtifact(ctx context.Context, runID string, artifact *types.Artifact) error
	ListArtifacts(ctx context.Context, runID string) ([]*types.Artifact, error)

	RecordMetric(ctx context.Context, metric *types.Metric) error
	ListMetrics(ctx context.Context, taskID string) ([]*types.Metric, error)

	Close() error
}

// legalTransitions is the state graph from spec.md §4.9. UpdateRun
// implementations must reject a Status patch not present here.
var legalTransitions = map[types.RunStatus][]types.RunStatus{
	types.StatusPending:          {types.StatusAnalyzing, types.StatusFailed, types.StatusCancelled, types.StatusTimeout},
	types.StatusAnalyzing:        {types.StatusAwaitingApproval, types.StatusFailed, types.StatusCancelled, types.StatusTimeout},
	// AwaitingApproval -> Validating is the resumption edge for a reviewer
	// escalation (needs_human_decision): the run re-enters validated state
	// directly rather than Approved, since no further code generation is
	// needed, only the downstream patch/commit/push steps.
	types.StatusAwaitingApproval: {types.StatusApproved, types.StatusValidating, types.StatusCancelled, types.StatusFailed, types.StatusTimeout},
	types.StatusApproved:         {types.StatusExecuting, types.StatusCompleted, types.StatusCancelled, types.StatusTimeout},
	types.StatusExecuting:        {types.StatusValidating, types.StatusFailed, types.StatusCancelled, types.StatusTimeout},
	// Validating may loop back to AwaitingApproval when the reviewer role
	// returns needs_human_decision (spec.md §4.8) rather than a verdict the
	// run can act on unattended. It also goes straight to Committing when
	// output_mode is generate_new, since Patching only applies to
	// patch_existing runs.
	types.StatusValidating:       {types.StatusExecuting, types.StatusAwaitingApproval, types.StatusPatching, types.StatusCommitting, types.StatusCompleted, types.StatusFailed, types.StatusCancelled, types.StatusTimeout},
	types.StatusPatching:         {types.StatusCommitting, types.StatusCompleted, types.StatusFailed, types.StatusCancelled, types.StatusTimeout},
	types.StatusCommitting:       {types.StatusPushing, types.StatusCompleted, types.StatusFailed, types.StatusCancelled, types.StatusTimeout},
	types.StatusPushing:          {types.StatusPROpened, types.StatusCompleted, types.StatusFailed, types.StatusCancelled, types.StatusTimeout},
	types.StatusPROpened:         {types.StatusCompleted, types.StatusFailed},
}

// IsLegalTransition reports whether a run may move from 'from' to 'to'.
// Terminal states accept no further transitions.
func IsLegalTransition(from, to types.RunStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
