package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mgxlabs/orchestrator/internal/logging"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// sqliteTimeLayouts covers the formats SQLite's datetime('now') and
// Go's time.Time.Format(time.RFC3339) both produce, since rows may be
// written by either path.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

func parseTimeOrZero(s string) time.Time {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// SQLiteRepository is the production Repository, backed by
// modernc.org/sqlite (a cgo-free driver, matching the teacher's choice
// for its own embedded store in internal/store/vec_compat.go). Status
// transitions and any simultaneous field write happen inside one
// *sql.Tx, satisfying spec.md §4.7's atomicity requirement.
type SQLiteRepository struct {
	db    *sql.DB
	blobs *ArtifactBlobStore
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	target_stack TEXT,
	project_type TEXT,
	output_mode TEXT,
	strict_requirements INTEGER,
	constraints TEXT,
	existing_project_path TEXT,
	repo TEXT,
	run_branch_prefix TEXT,
	commit_template TEXT,
	workspace_id TEXT,
	total_runs INTEGER DEFAULT 0,
	successful_runs INTEGER DEFAULT 0,
	failed_runs INTEGER DEFAULT 0,
	last_run_at TEXT,
	last_error TEXT,
	created_at TEXT,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id),
	run_number INTEGER NOT NULL,
	status TEXT NOT NULL,
	plan TEXT,
	results TEXT,
	error TEXT,
	revision_rounds INTEGER DEFAULT 0,
	branch_name TEXT,
	commit_sha TEXT,
	pr_url TEXT,
	git_status TEXT,
	approval_reason TEXT,
	started_at TEXT,
	completed_at TEXT,
	created_at TEXT,
	updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_task_id ON runs(task_id);

CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	bbolt_key TEXT NOT NULL,
	size INTEGER,
	created_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run_id ON artifacts(run_id);

CREATE TABLE IF NOT EXISTS metrics (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	run_id TEXT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	value REAL,
	labels TEXT,
	timestamp TEXT
);
CREATE INDEX IF NOT EXISTS idx_metrics_task_id ON metrics(task_id);
`

// OpenSQLite opens (creating if absent) the SQLite database at dbPath and
// the sibling bbolt blob store at blobPath, and applies the schema.
func OpenSQLite(dbPath, blobPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, mgxerr.Wrap(types.ErrInternal, "apply sqlite schema", err)
	}
	blobs, err := OpenArtifactBlobStore(blobPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRepository{db: db, blobs: blobs}, nil
}

func (r *SQLiteRepository) Close() error {
	blobErr := r.blobs.Close()
	if err := r.db.Close(); err != nil {
		return err
	}
	return blobErr
}

func (r *SQLiteRepository) CreateTask(ctx context.Context, task *types.Task) (*types.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "begin tx", err)
	}
	defer tx.Rollback()

	constraints, _ := json.Marshal(task.Constraints)
	var repoJSON []byte
	if task.Repo != nil {
		repoJSON, _ = json.Marshal(task.Repo)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, target_stack, project_type, output_mode,
			strict_requirements, constraints, existing_project_path, repo, run_branch_prefix,
			commit_template, workspace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
		task.ID, task.Title, task.Description, task.TargetStack, string(task.ProjectType),
		string(task.OutputMode), boolToInt(task.StrictRequirements), string(constraints),
		task.ExistingProjectPath, string(repoJSON), task.RunBranchPrefix, task.CommitTemplate,
		task.WorkspaceID)
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "insert task", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "commit task insert", err)
	}
	return r.LoadTask(ctx, task.ID)
}

func (r *SQLiteRepository) LoadTask(ctx context.Context, taskID string) (*types.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, title, description, target_stack, project_type,
		output_mode, strict_requirements, constraints, existing_project_path, repo,
		run_branch_prefix, commit_template, workspace_id, total_runs, successful_runs,
		failed_runs, last_run_at, last_error, created_at, updated_at FROM tasks WHERE id = ?`, taskID)
	return scanTask(row)
}

func scanTask(row *sql.Row) (*types.Task, error) {
	var (
		t                                  types.Task
		projectType, outputMode            string
		strictReq                          int
		constraintsJSON, repoJSON          sql.NullString
		lastRunAt, lastErrorJSON           sql.NullString
		createdAt, updatedAt               string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.TargetStack, &projectType, &outputMode,
		&strictReq, &constraintsJSON, &t.ExistingProjectPath, &repoJSON, &t.RunBranchPrefix,
		&t.CommitTemplate, &t.WorkspaceID, &t.TotalRuns, &t.SuccessfulRuns, &t.FailedRuns,
		&lastRunAt, &lastErrorJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, mgxerr.New(types.ErrInvalidInput, "task not found")
	}
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "scan task", err)
	}
	t.ProjectType = types.ProjectType(projectType)
	t.OutputMode = types.OutputMode(outputMode)
	t.StrictRequirements = strictReq != 0
	if constraintsJSON.Valid {
		json.Unmarshal([]byte(constraintsJSON.String), &t.Constraints)
	}
	if repoJSON.Valid && repoJSON.String != "" {
		var ref types.RepoRef
		if json.Unmarshal([]byte(repoJSON.String), &ref) == nil {
			t.Repo = &ref
		}
	}
	if lastErrorJSON.Valid && lastErrorJSON.String != "" {
		var re types.RunError
		if json.Unmarshal([]byte(lastErrorJSON.String), &re) == nil {
			t.LastError = &re
		}
	}
	t.CreatedAt = parseTimeOrZero(createdAt)
	t.UpdatedAt = parseTimeOrZero(updatedAt)
	if lastRunAt.Valid {
		tm := parseTimeOrZero(lastRunAt.String)
		t.LastRunAt = &tm
	}
	return &t, nil
}

func (r *SQLiteRepository) BumpTaskCounters(ctx context.Context, taskID string, outcome TaskOutcome, runErr *types.RunError) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return mgxerr.Wrap(types.ErrInternal, "begin tx", err)
	}
	defer tx.Rollback()

	var errJSON []byte
	if runErr != nil {
		errJSON, _ = json.Marshal(runErr)
	}
	column := "successful_runs"
	if outcome == OutcomeFailure {
		column = "failed_runs"
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET total_runs = total_runs + 1,
		%s = %s + 1, last_run_at = datetime('now'), last_error = ?, updated_at = datetime('now')
		WHERE id = ?`, column, column), string(errJSON), taskID)
	if err != nil {
		return mgxerr.Wrap(types.ErrInternal, "bump task counters", err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) CreateRun(ctx context.Context, taskID string) (*types.TaskRun, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "begin tx", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE task_id = ?`, taskID).Scan(&count); err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "count prior runs", err)
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `INSERT INTO runs (id, task_id, run_number, status, started_at,
		created_at, updated_at) VALUES (?, ?, ?, ?, datetime('now'), datetime('now'), datetime('now'))`,
		id, taskID, count+1, string(types.StatusPending))
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "insert run", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "commit run insert", err)
	}
	return r.LoadRun(ctx, id)
}

func (r *SQLiteRepository) LoadRun(ctx context.Context, runID string) (*types.TaskRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, task_id, run_number, status, plan, results,
		error, revision_rounds, branch_name, commit_sha, pr_url, git_status, approval_reason,
		started_at, completed_at, created_at, updated_at FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func scanRun(row *sql.Row) (*types.TaskRun, error) {
	var (
		run                                       types.TaskRun
		status, gitStatus                         string
		planJSON, resultsJSON, errorJSON           sql.NullString
		branchName, commitSHA, prURL, approvalRsn  sql.NullString
		completedAt                                sql.NullString
		startedAt, createdAt, updatedAt            string
	)
	err := row.Scan(&run.ID, &run.TaskID, &run.RunNumber, &status, &planJSON, &resultsJSON,
		&errorJSON, &run.RevisionRounds, &branchName, &commitSHA, &prURL, &gitStatus,
		&approvalRsn, &startedAt, &completedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, mgxerr.New(types.ErrInvalidInput, "run not found")
	}
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "scan run", err)
	}
	run.Status = types.RunStatus(status)
	run.GitStatus = types.GitStatus(gitStatus)
	run.BranchName = branchName.String
	run.CommitSHA = commitSHA.String
	run.PRURL = prURL.String
	run.ApprovalReason = approvalRsn.String
	if planJSON.Valid && planJSON.String != "" {
		var p types.Plan
		if json.Unmarshal([]byte(planJSON.String), &p) == nil {
			run.Plan = &p
		}
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		var res types.RunResults
		if json.Unmarshal([]byte(resultsJSON.String), &res) == nil {
			run.Results = &res
		}
	}
	if errorJSON.Valid && errorJSON.String != "" {
		var re types.RunError
		if json.Unmarshal([]byte(errorJSON.String), &re) == nil {
			run.Error = &re
		}
	}
	run.StartedAt = parseTimeOrZero(startedAt)
	run.CreatedAt = parseTimeOrZero(createdAt)
	run.UpdatedAt = parseTimeOrZero(updatedAt)
	if completedAt.Valid && completedAt.String != "" {
		tm := parseTimeOrZero(completedAt.String)
		run.CompletedAt = &tm
	}
	return &run, nil
}

func (r *SQLiteRepository) UpdateRun(ctx context.Context, runID string, patch RunPatch) (*types.TaskRun, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "begin tx", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, runID)
	var currentStatus string
	if err := row.Scan(&currentStatus); err != nil {
		if err == sql.ErrNoRows {
			return nil, mgxerr.New(types.ErrInvalidInput, "run not found")
		}
		return nil, mgxerr.Wrap(types.ErrInternal, "load current run status", err)
	}
	if patch.Status != nil && !IsLegalTransition(types.RunStatus(currentStatus), *patch.Status) {
		return nil, mgxerr.Newf(types.ErrValidation, "illegal run transition %s -> %s", currentStatus, *patch.Status)
	}

	sets, args := buildRunUpdate(patch)
	if len(sets) > 0 {
		sets = append(sets, "updated_at = datetime('now')")
		q := "UPDATE runs SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		args = append(args, runID)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return nil, mgxerr.Wrap(types.ErrInternal, "update run", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "commit run update", err)
	}
	return r.LoadRun(ctx, runID)
}

func buildRunUpdate(patch RunPatch) (sets []string, args []any) {
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Plan != nil {
		data, _ := json.Marshal(patch.Plan)
		sets = append(sets, "plan = ?")
		args = append(args, string(data))
	}
	if patch.Results != nil {
		data, _ := json.Marshal(patch.Results)
		sets = append(sets, "results = ?")
		args = append(args, string(data))
	}
	if patch.Error != nil {
		data, _ := json.Marshal(patch.Error)
		sets = append(sets, "error = ?")
		args = append(args, string(data))
	}
	if patch.RevisionRounds != nil {
		sets = append(sets, "revision_rounds = ?")
		args = append(args, *patch.RevisionRounds)
	}
	if patch.BranchName != nil {
		sets = append(sets, "branch_name = ?")
		args = append(args, *patch.BranchName)
	}
	if patch.CommitSHA != nil {
		sets = append(sets, "commit_sha = ?")
		args = append(args, *patch.CommitSHA)
	}
	if patch.PRURL != nil {
		sets = append(sets, "pr_url = ?")
		args = append(args, *patch.PRURL)
	}
	if patch.GitStatus != nil {
		sets = append(sets, "git_status = ?")
		args = append(args, string(*patch.GitStatus))
	}
	if patch.ApprovalReason != nil {
		sets = append(sets, "approval_reason = ?")
		args = append(args, *patch.ApprovalReason)
	}
	if patch.CompletedAt != nil && *patch.CompletedAt {
		sets = append(sets, "completed_at = datetime('now')")
	}
	return sets, args
}

func (r *SQLiteRepository) AppendArtifact(ctx context.Context, runID string, artifact *types.Artifact) error {
	log := logging.Get(logging.CategoryRepository)
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	if err := r.blobs.Put(runID, artifact.Name, artifact.Content); err != nil {
		return err
	}
	bboltKey := runID + "/" + artifact.Name
	_, err := r.db.ExecContext(ctx, `INSERT INTO artifacts (id, run_id, name, type, bbolt_key, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		artifact.ID, runID, artifact.Name, string(artifact.Type), bboltKey, len(artifact.Content))
	if err != nil {
		return mgxerr.Wrap(types.ErrInternal, "insert artifact row", err)
	}
	log.Debug("recorded artifact %s (blob stored under key %s)", artifact.ID, bboltKey)
	return nil
}

func (r *SQLiteRepository) ListArtifacts(ctx context.Context, runID string) ([]*types.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, type, created_at FROM artifacts WHERE run_id = ?`, runID)
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "list artifacts", err)
	}
	defer rows.Close()

	var out []*types.Artifact
	for rows.Next() {
		var a types.Artifact
		var typ, createdAt string
		if err := rows.Scan(&a.ID, &a.Name, &typ, &createdAt); err != nil {
			return nil, mgxerr.Wrap(types.ErrInternal, "scan artifact", err)
		}
		a.RunID = runID
		a.Type = types.ArtifactType(typ)
		a.CreatedAt = parseTimeOrZero(createdAt)
		content, err := r.blobs.Get(runID, a.Name)
		if err != nil {
			return nil, err
		}
		a.Content = content
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) RecordMetric(ctx context.Context, metric *types.Metric) error {
	if metric.ID == "" {
		metric.ID = uuid.NewString()
	}
	labels, _ := json.Marshal(metric.Labels)
	_, err := r.db.ExecContext(ctx, `INSERT INTO metrics (id, task_id, run_id, name, type, value, labels, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		metric.ID, metric.TaskID, metric.RunID, metric.Name, string(metric.Type), metric.Value, string(labels))
	if err != nil {
		return mgxerr.Wrap(types.ErrInternal, "insert metric", err)
	}
	return nil
}

func (r *SQLiteRepository) ListMetrics(ctx context.Context, taskID string) ([]*types.Metric, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, run_id, name, type, value, labels, timestamp
		FROM metrics WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, mgxerr.Wrap(types.ErrInternal, "list metrics", err)
	}
	defer rows.Close()

	var out []*types.Metric
	for rows.Next() {
		var m types.Metric
		var typ, labelsJSON, ts string
		if err := rows.Scan(&m.ID, &m.RunID, &m.Name, &typ, &m.Value, &labelsJSON, &ts); err != nil {
			return nil, mgxerr.Wrap(types.ErrInternal, "scan metric", err)
		}
		m.TaskID = taskID
		m.Type = types.MetricType(typ)
		json.Unmarshal([]byte(labelsJSON), &m.Labels)
		m.Timestamp = parseTimeOrZero(ts)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
