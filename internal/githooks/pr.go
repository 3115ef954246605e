package githooks

import (
	"fmt"
	"strings"

	gh "github.com/cli/go-gh/v2"

	"github.com/mgxlabs/orchestrator/internal/logging"
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// OpenPR creates a pull request for branch against base in repoSlug
// (owner/name) using the gh CLI, returning the PR URL. If an open PR
// already exists for branch, its URL is returned instead of creating a
// duplicate.
func OpenPR(repoSlug, branch, base, title, body string) (string, error) {
	if url, err := findExistingPR(repoSlug, branch); err == nil && url != "" {
		logging.Get(logging.CategoryGit).Info("reusing existing PR for branch %s: %s", branch, url)
		return url, nil
	}

	stdout, stderr, err := gh.Exec(
		"pr", "create",
		"--repo", repoSlug,
		"--head", branch,
		"--base", base,
		"--title", title,
		"--body", body,
	)
	if err != nil {
		return "", mgxerr.Wrap(types.ErrGit, fmt.Sprintf("gh pr create failed: %s", strings.TrimSpace(stderr.String())), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// findExistingPR looks for an already-open PR from branch, returning its
// URL, or "" if none exists. A lookup failure is not itself an error worth
// failing the run over — OpenPR falls through to creating a new PR.
func findExistingPR(repoSlug, branch string) (string, error) {
	stdout, _, err := gh.Exec(
		"pr", "list",
		"--repo", repoSlug,
		"--head", branch,
		"--state", "open",
		"--json", "url",
		"--jq", ".[0].url",
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}
