// Package types holds the shared entities of the orchestrator: Task,
// TaskRun, Metric, Artifact, StackSpec, and the transient manifest/diff
// values that exist only inside a single executor pass. Keeping them in one
// package with no dependency on internal/executor, internal/orchestrator or
// internal/repository avoids import cycles between the components that all
// need to talk about the same entities.
package types

import "time"

// RunStatus is one of the finite set of TaskRun lifecycle states.
type RunStatus string

const (
	StatusPending           RunStatus = "pending"
	StatusAnalyzing         RunStatus = "analyzing"
	StatusAwaitingApproval  RunStatus = "awaiting_approval"
	StatusApproved          RunStatus = "approved"
	StatusExecuting         RunStatus = "executing"
	StatusValidating        RunStatus = "validating"
	StatusPatching          RunStatus = "patching"
	StatusCommitting        RunStatus = "committing"
	StatusPushing           RunStatus = "pushing"
	StatusPROpened          RunStatus = "pr_opened"
	StatusCompleted         RunStatus = "completed"
	StatusFailed            RunStatus = "failed"
	StatusCancelled         RunStatus = "cancelled"
	StatusTimeout           RunStatus = "timeout"
)

// Terminal reports whether status is absorbing.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// OutputMode is how the orchestrator's artifacts should be materialized.
type OutputMode string

const (
	OutputGenerateNew    OutputMode = "generate_new"
	OutputPatchExisting  OutputMode = "patch_existing"
)

// ProjectType tags the kind of project a Task targets.
type ProjectType string

const (
	ProjectAPI        ProjectType = "api"
	ProjectWebapp     ProjectType = "webapp"
	ProjectFullstack  ProjectType = "fullstack"
	ProjectDevops     ProjectType = "devops"
)

// GitStatus tracks the git side-effects of a run.
type GitStatus string

const (
	GitPending       GitStatus = "pending"
	GitBranchCreated GitStatus = "branch_created"
	GitCommitted     GitStatus = "committed"
	GitPushed        GitStatus = "pushed"
	GitPROpened      GitStatus = "pr_opened"
	GitFailed        GitStatus = "failed"
)

// ErrorKind is the closed taxonomy from spec.md §7.
type ErrorKind string

const (
	ErrInvalidInput        ErrorKind = "invalid_input"
	ErrParse                ErrorKind = "parse_error"
	ErrValidation           ErrorKind = "validation_error"
	ErrRevisionExhausted    ErrorKind = "revision_exhausted"
	ErrPatch                ErrorKind = "patch_error"
	ErrGit                  ErrorKind = "git_error"
	ErrLLM                  ErrorKind = "llm_error"
	ErrCache                ErrorKind = "cache_error"
	ErrTimeout              ErrorKind = "timeout"
	ErrApprovalTimeout      ErrorKind = "approval_timeout"
	ErrRunTimeout           ErrorKind = "run_timeout"
	ErrStepTimeout          ErrorKind = "step_timeout"
	ErrCancelled            ErrorKind = "cancelled"
	ErrInternal             ErrorKind = "internal"
	ErrCapacityExhausted    ErrorKind = "capacity_exhausted"
)

// RunError is the structured error carried on a terminal TaskRun.
type RunError struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// Task is the long-lived unit of work a user creates.
type Task struct {
	ID                    string
	Title                 string
	Description           string
	TargetStack           string
	ProjectType           ProjectType
	OutputMode            OutputMode
	StrictRequirements    bool
	Constraints           []string
	ExistingProjectPath   string
	Repo                  *RepoRef
	RunBranchPrefix       string
	CommitTemplate        string
	WorkspaceID           string

	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastRunAt      *time.Time
	LastError      *RunError

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RepoRef identifies a linked git repository.
type RepoRef struct {
	FullName       string // e.g. "owner/repo"
	ReferenceBranch string
	AuthHandle     string
}

// TaskRun is one execution attempt of a Task.
type TaskRun struct {
	ID        string
	TaskID    string
	RunNumber int
	Status    RunStatus

	Plan    *Plan
	Results *RunResults
	Error   *RunError

	RevisionRounds int

	BranchName string
	CommitSHA  string
	PRURL      string
	GitStatus  GitStatus

	ApprovalReason string // "" normally, "human_review" when escalated

	StartedAt   time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Duration reports completed-started, zero if not yet completed.
func (r *TaskRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Plan is the structured planning artifact shown to a human approver.
type Plan struct {
	Complexity   string   `json:"complexity"` // XS|S|M|L|XL
	Stack        string   `json:"stack"`
	Steps        []string `json:"steps"`
	ManifestHint []string `json:"manifest_hint,omitempty"`
}

// RunResults carries the orchestrator's final output for a run.
type RunResults struct {
	Manifest       []FileManifestEntry `json:"manifest"`
	TestManifest   []FileManifestEntry `json:"test_manifest,omitempty"`
	ReviewVerdict  string              `json:"review_verdict"`
	ReviewNotes    string              `json:"review_notes,omitempty"`
	RevisionRounds int                 `json:"revision_rounds"`
	PhaseTimings   map[string]time.Duration `json:"phase_timings,omitempty"`
	TokensUsed     TokenUsage          `json:"tokens_used"`
}

// TokenUsage is an estimated token accounting for a run or a single call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add accumulates u2 into u.
func (u *TokenUsage) Add(u2 TokenUsage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
}

// MetricType is the kind of numeric measurement a Metric records.
type MetricType string

const (
	MetricCounter MetricType = "counter"
	MetricGauge   MetricType = "gauge"
	MetricTimer   MetricType = "timer"
)

// Metric is a named numeric observation attached to a Task and optionally a TaskRun.
type Metric struct {
	ID        string
	TaskID    string
	RunID     string // optional, empty if task-scoped only
	Name      string
	Type      MetricType
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
}

// ArtifactType tags the kind of content an Artifact holds.
type ArtifactType string

const (
	ArtifactCode   ArtifactType = "code"
	ArtifactTest   ArtifactType = "test"
	ArtifactReview ArtifactType = "review"
	ArtifactDiff   ArtifactType = "diff"
	ArtifactBackup ArtifactType = "backup"
)

// Artifact is an immutable blob attached to a TaskRun.
type Artifact struct {
	ID        string
	RunID     string
	Name      string
	Type      ArtifactType
	Content   []byte
	CreatedAt time.Time
}

// ManifestOp tags the operation a FileManifestEntry describes.
type ManifestOp string

const (
	OpCreate ManifestOp = "create"
	OpModify ManifestOp = "modify"
	OpDelete ManifestOp = "delete"
)

// FileManifestEntry is one parsed FILE block.
type FileManifestEntry struct {
	Path     string     `json:"path"`
	Content  string     `json:"content"`
	Op       ManifestOp `json:"op"`
	Language string     `json:"language,omitempty"`
}

// EventType is a closed enumeration of lifecycle event kinds per spec.md
// §6's event taxonomy.
type EventType string

const (
	EventTaskCreated   EventType = "task.created"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"

	EventAnalysisStart     EventType = "analysis_start"
	EventPlanReady         EventType = "plan_ready"
	EventApprovalRequired  EventType = "approval_required"
	EventApproved          EventType = "approved"
	EventRejected          EventType = "rejected"
	EventProgress          EventType = "progress"
	EventCompletion        EventType = "completion"
	EventFailure           EventType = "failure"
	EventCancelled         EventType = "cancelled"
	EventTimeout           EventType = "timeout"

	EventGitBranchCreated   EventType = "git_branch_created"
	EventGitCommitCreated   EventType = "git_commit_created"
	EventGitPushSuccess     EventType = "git_push_success"
	EventGitPushFailed      EventType = "git_push_failed"
	EventPullRequestOpened  EventType = "pull_request_opened"
	EventGitOperationFailed EventType = "git_operation_failed"

	EventValidationFailed  EventType = "validation_failed"
	EventValidationPassed  EventType = "validation_passed"
	EventPatchApplyFailed  EventType = "patch_apply_failed"

	EventAgentMessage  EventType = "agent.message"
	EventAgentThinking EventType = "agent.thinking"
	EventAgentAction   EventType = "agent.action"
	EventToolCall      EventType = "tool.call"
	EventToolResult    EventType = "tool.result"
)

// EventEnvelopeVersion is the schema tag stamped on every published Event.
const EventEnvelopeVersion = "1.0"

// Event is the envelope published to the broadcaster and consumed by
// transport adapters, per spec.md §6's event envelope shape.
type Event struct {
	EventID     string      `json:"event_id"`
	EventType   EventType   `json:"event_type"`
	Timestamp   time.Time   `json:"timestamp"`
	WorkspaceID string      `json:"workspace_id,omitempty"`
	TaskID      string      `json:"task_id,omitempty"`
	RunID       string      `json:"run_id,omitempty"`
	Data        interface{} `json:"data,omitempty"`
	Version     string      `json:"version"`
}

// ProgressData is the payload of an EventProgress event.
type ProgressData struct {
	Step         int    `json:"step"`
	TotalSteps   int    `json:"total_steps"`
	CurrentPhase string `json:"current_phase"`
}

// StackSpec is the read-only, process-wide rule set for one stack tag.
type StackSpec struct {
	Tag              string
	Name             string
	Language         string
	RequiredFiles    []string
	RequiredDirs     []string
	ForbiddenFiles   []string
	RequiredCommands []string
	ForbiddenImports []string // regex source, compiled by guardrails
	CommonDeps       []string
}
