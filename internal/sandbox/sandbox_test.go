package sandbox_test

import (
	"testing"
	"time"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalReturnStatementYieldsMap(t *testing.T) {
	sb := sandbox.New()

	value, err := sb.Eval("return { value: true }", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"value": true}, value)
}

func TestEvalBoolCondition(t *testing.T) {
	sb := sandbox.New()

	env := map[string]any{
		"context": map[string]any{
			"outputs": map[string]any{
				"code1": map[string]any{"value": true},
			},
		},
	}

	ok, err := sb.EvalBool("context.outputs.code1.value", env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalPredicateBindsItemIndexArray(t *testing.T) {
	sb := sandbox.New()

	arr := []any{1, 2, 3}

	ok, err := sb.EvalPredicate("item > 1", 2, 1, arr, map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sb.EvalPredicate("item > 1", 1, 0, arr, map[string]any{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalErrorReturnsSandboxError(t *testing.T) {
	sb := sandbox.New()

	_, err := sb.Eval("1 +", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, domain.ErrSandboxError, domain.KindOf(err))
}

func TestEvalTimeoutReturnsSandboxTimeout(t *testing.T) {
	sb := sandbox.New().WithBudget(1 * time.Microsecond)

	// A large reduction is slow enough to reliably exceed a 1us budget
	// without relying on goroutine-scheduling luck.
	_, err := sb.Eval("reduce(1..2000000, #acc + #, 0)", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, domain.ErrSandboxTimeout, domain.KindOf(err))
}
