// Package githooks shells out to the local git binary to create run
// branches, stage and commit patch output, and push with retry/backoff, and
// to the gh CLI (via cli/go-gh/v2) to open pull requests. Grounded on the
// "shell out to git/gh" idiom used throughout the gh-aw forks'
// pkg/campaign, pkg/cli and pkg/gitutil.
package githooks

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mgxlabs/orchestrator/internal/config"
	"github.com/mgxlabs/orchestrator/internal/logging"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// Client drives git operations against a single working tree.
type Client struct {
	repoDir string
	cfg     config.GitConfig
}

// New returns a Client operating on repoDir using cfg's branch/commit/push
// defaults.
func New(repoDir string, cfg config.GitConfig) *Client {
	return &Client{repoDir: repoDir, cfg: cfg}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.repoDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Get(logging.CategoryGit).Debug("git %s", strings.Join(args, " "))
	err := cmd.Run()
	if err != nil {
		return stdout.String(), mgxerr.Wrap(types.ErrGit, fmt.Sprintf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String())), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// BranchName derives the run branch name from the configured prefix, task
// ID and run number: <prefix>/<task-id>-run-<n>.
func (c *Client) BranchName(taskID string, runNumber int) string {
	return fmt.Sprintf("%s/%s-run-%d", c.cfg.RunBranchPrefix, taskID, runNumber)
}

// CreateBranch checks out a new branch from the current HEAD.
func (c *Client) CreateBranch(ctx context.Context, branch string) error {
	_, err := c.run(ctx, "checkout", "-b", branch)
	return err
}

// StageAll stages every change in the working tree.
func (c *Client) StageAll(ctx context.Context) error {
	_, err := c.run(ctx, "add", "-A")
	return err
}

// CommitMessage fills the configured commit template with the task name
// and run number, e.g. "MGX Task: {task_name} - Run #{run_number}".
func (c *Client) CommitMessage(taskName string, runNumber int) string {
	msg := c.cfg.CommitTemplate
	msg = strings.ReplaceAll(msg, "{task_name}", taskName)
	msg = strings.ReplaceAll(msg, "{run_number}", fmt.Sprintf("%d", runNumber))
	return msg
}

// Commit commits staged changes with message, returning the new commit SHA.
func (c *Client) Commit(ctx context.Context, message string) (string, error) {
	if _, err := c.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return c.run(ctx, "rev-parse", "HEAD")
}

// Push pushes branch to origin, making at most cfg.PushMaxAttempts attempts
// in total, with exponential backoff between them starting at
// cfg.PushBackoffBaseMs.
func (c *Client) Push(ctx context.Context, branch string) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.PushMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(c.cfg.PushBackoffBaseMs) * time.Millisecond * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return mgxerr.Wrap(types.ErrGit, "push cancelled during backoff", ctx.Err())
			}
		}
		_, err := c.run(ctx, "push", "-u", "origin", branch)
		if err == nil {
			return nil
		}
		lastErr = err
		logging.Get(logging.CategoryGit).Warn("push attempt %d/%d failed: %v", attempt+1, c.cfg.PushMaxAttempts, err)
	}
	return mgxerr.Wrap(types.ErrGit, fmt.Sprintf("push failed after %d attempts", c.cfg.PushMaxAttempts), lastErr)
}

// HeadSHA returns the current HEAD commit hash.
func (c *Client) HeadSHA(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "HEAD")
}

// IsHexSHA reports whether s looks like a git commit SHA (hex digits only).
// Grounded on gitutil.IsHexString from the gh-aw pack.
func IsHexSHA(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}

// IsAuthError reports whether errMsg looks like a git/gh authentication
// failure, so the executor can surface a clearer error kind than a generic
// git_error. Grounded on gitutil.IsAuthError from the gh-aw pack.
func IsAuthError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, marker := range []string{
		"gh_token", "github_token", "authentication",
		"not logged into", "unauthorized", "forbidden", "permission denied",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
