package diffpatch

import (
	"github.com/mgxlabs/orchestrator/internal/mgxerr"
	"github.com/mgxlabs/orchestrator/internal/types"
)

// TransactionMode selects how a BatchApply handles a per-file failure.
type TransactionMode string

const (
	// AllOrNothing rolls every already-applied file in the batch back to its
	// backup the moment any file fails to apply.
	AllOrNothing TransactionMode = "all_or_nothing"
	// BestEffort keeps whatever files applied successfully and reports the
	// rest as failures, writing fallback artifacts for each one.
	BestEffort TransactionMode = "best_effort"
)

// BatchResult is the outcome of applying a manifest's worth of file diffs.
type BatchResult struct {
	Applied  []ApplyResult
	Failed   []BatchFailure
	RolledBack bool
}

// BatchFailure names a file that could not be applied and why.
type BatchFailure struct {
	Path string
	Err  error
}

// BatchApply applies files in order under mode. basePath is the project
// checkout root. On AllOrNothing, any failure restores every prior
// successfully-applied file in this batch from its backup and deletes files
// that were newly created, then returns the failure. On BestEffort, a
// failure is recorded in Failed and fallback artifacts are written via
// WriteFallback; remaining files still get a chance to apply.
func BatchApply(basePath string, files []ParsedFileDiff, mode TransactionMode) (*BatchResult, error) {
	result := &BatchResult{}

	for _, fd := range files {
		res, err := Apply(basePath, fd)
		if err != nil {
			if mode == AllOrNothing {
				rollback(basePath, result.Applied)
				result.RolledBack = true
				return result, mgxerr.WrapPreserving(types.ErrPatch, "batch apply failed, rolled back", err)
			}

			path := fd.NewPath
			if fd.IsDelete {
				path = fd.OldPath
			}
			if ferr := WriteFallback(basePath, fd, err); ferr != nil {
				// Fallback-writing failure does not mask the original error,
				// but is worth surfacing via the detail bag.
				err = mgxerr.Wrap(types.ErrPatch, "apply failed and fallback write also failed", ferr)
			}
			result.Failed = append(result.Failed, BatchFailure{Path: path, Err: err})
			continue
		}
		result.Applied = append(result.Applied, *res)
	}

	return result, nil
}

// rollback restores every applied file's backup over its current contents,
// or removes the file if it was newly created with no backup.
func rollback(basePath string, applied []ApplyResult) {
	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		restoreFromBackup(basePath, a)
	}
}
