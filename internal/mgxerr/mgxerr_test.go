package mgxerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mgxlabs/orchestrator/internal/types"
)

func TestErrorString(t *testing.T) {
	e := New(types.ErrPatch, "bad hunk")
	require.Equal(t, "patch_error: bad hunk", e.Error())

	wrapped := Wrap(types.ErrGit, "push failed", errors.New("exit status 1"))
	require.Equal(t, "git_error: push failed: exit status 1", wrapped.Error())
}

func TestKindOf(t *testing.T) {
	require.Equal(t, types.ErrPatch, KindOf(New(types.ErrPatch, "x")))
	require.Equal(t, types.ErrGit, KindOf(fmt.Errorf("wrapped: %w", New(types.ErrGit, "x"))))
	require.Equal(t, types.ErrInternal, KindOf(errors.New("plain")))
}

func TestWrapPreserving(t *testing.T) {
	inner := New(types.ErrParse, "malformed diff").WithDetail(map[string]any{"reason": "context_mismatch"})
	outer := WrapPreserving(types.ErrPatch, "batch apply failed, rolled back", inner)
	require.Equal(t, types.ErrParse, outer.Kind)
	require.Equal(t, "context_mismatch", outer.Detail["reason"])
	require.Equal(t, "batch apply failed, rolled back", outer.Message)

	plain := errors.New("disk full")
	outer = WrapPreserving(types.ErrPatch, "apply failed", plain)
	require.Equal(t, types.ErrPatch, outer.Kind)
	require.Equal(t, plain, outer.Cause)
}

func TestToRunError(t *testing.T) {
	require.Nil(t, ToRunError(nil))

	re := ToRunError(New(types.ErrApprovalTimeout, "too slow").WithDetail(map[string]any{"seconds": 30}))
	require.Equal(t, types.ErrApprovalTimeout, re.Kind)
	require.Equal(t, "too slow", re.Message)
	require.Equal(t, 30, re.Detail["seconds"])

	re = ToRunError(errors.New("unstructured"))
	require.Equal(t, types.ErrInternal, re.Kind)
	require.Equal(t, "unstructured", re.Message)
}
