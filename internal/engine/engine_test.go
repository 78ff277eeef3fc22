package engine_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/engine"
	"github.com/dukex/operion/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*engine.Engine, store.Store) {
	t.Helper()

	mem := store.NewMemory()
	logger := slog.Default()

	return engine.NewEngine(mem, nil, logger), mem
}

func label(s string) *string { return &s }

func seedWorkflow(t *testing.T, st store.Store, steps []*domain.Step, edges []*domain.Edge) *domain.Workflow {
	t.Helper()

	ctx := context.Background()

	wf, err := st.CreateWorkflow(ctx, &domain.Workflow{Name: "test", IsActive: true})
	require.NoError(t, err)

	for _, s := range steps {
		s.WorkflowID = wf.ID
	}

	for _, e := range edges {
		e.WorkflowID = wf.ID
	}

	_, err = st.UpdateWorkflow(ctx, wf, steps, edges)
	require.NoError(t, err)

	return wf
}

// S1 conditional branching.
func TestEngineConditionalBranching(t *testing.T) {
	eng, st := newTestEngine(t)

	steps := []*domain.Step{
		{ID: "trigger", Kind: domain.StepKindManualTrigger, Order: 0},
		{ID: "codeStep", Kind: domain.StepKindCode, Order: 1, Config: map[string]any{"code": "return { value: true }"}},
		{ID: "cond", Kind: domain.StepKindCondition, Order: 2, Config: map[string]any{"condition": "context.outputs.codeStep.value"}},
		{ID: "trueBranch", Kind: domain.StepKindBasicLLMChain, Order: 3, Config: map[string]any{"prompt": "ok"}},
		{ID: "falseBranch", Kind: domain.StepKindBasicLLMChain, Order: 4, Config: map[string]any{"prompt": "no"}},
	}
	edges := []*domain.Edge{
		{ID: "e1", SourceID: "trigger", TargetID: "codeStep"},
		{ID: "e2", SourceID: "codeStep", TargetID: "cond"},
		{ID: "e3", SourceID: "cond", TargetID: "trueBranch", Label: label("true")},
		{ID: "e4", SourceID: "cond", TargetID: "falseBranch", Label: label("false")},
	}

	wf := seedWorkflow(t, st, steps, edges)

	run, err := eng.StartRun(context.Background(), wf.ID, &domain.TriggerEnvelope{Kind: domain.TriggerKindManual})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, "[MOCK] Response to: ok", run.Outputs["trueBranch"])
	assert.NotContains(t, run.Outputs, "falseBranch")
}

// S2 switch with default.
func TestEngineSwitchWithDefault(t *testing.T) {
	eng, st := newTestEngine(t)

	steps := []*domain.Step{
		{ID: "trigger", Kind: domain.StepKindManualTrigger, Order: 0},
		{ID: "codeStep", Kind: domain.StepKindCode, Order: 1, Config: map[string]any{"code": `return { v: "b" }`}},
		{ID: "sw", Kind: domain.StepKindSwitch, Order: 2, Config: map[string]any{"expression": "context.outputs.codeStep.v"}},
		{ID: "x", Kind: domain.StepKindCode, Order: 3, Config: map[string]any{"code": `return "x"`}},
		{ID: "y", Kind: domain.StepKindCode, Order: 4, Config: map[string]any{"code": `return "y"`}},
		{ID: "z", Kind: domain.StepKindCode, Order: 5, Config: map[string]any{"code": `return "z"`}},
	}
	edges := []*domain.Edge{
		{ID: "e1", SourceID: "trigger", TargetID: "codeStep"},
		{ID: "e2", SourceID: "codeStep", TargetID: "sw"},
		{ID: "e3", SourceID: "sw", TargetID: "x", Label: label("a")},
		{ID: "e4", SourceID: "sw", TargetID: "y", Label: label("b")},
		{ID: "e5", SourceID: "sw", TargetID: "z", Label: label("default")},
	}

	wf := seedWorkflow(t, st, steps, edges)

	run, err := eng.StartRun(context.Background(), wf.ID, &domain.TriggerEnvelope{Kind: domain.TriggerKindManual})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, "y", run.Outputs["y"])
	assert.NotContains(t, run.Outputs, "x")
	assert.NotContains(t, run.Outputs, "z")
}

// S3 loop.
func TestEngineLoopIsolatesCurrentItem(t *testing.T) {
	eng, st := newTestEngine(t)

	steps := []*domain.Step{
		{ID: "trigger", Kind: domain.StepKindManualTrigger, Order: 0},
		{ID: "codeStep", Kind: domain.StepKindCode, Order: 1, Config: map[string]any{"code": "return { items: [1, 2, 3] }"}},
		{ID: "loop", Kind: domain.StepKindLoop, Order: 2, Config: map[string]any{"input": "codeStep.items"}},
		{ID: "double", Kind: domain.StepKindCode, Order: 3, Config: map[string]any{"code": "return currentItem * 2"}},
	}
	edges := []*domain.Edge{
		{ID: "e1", SourceID: "trigger", TargetID: "codeStep"},
		{ID: "e2", SourceID: "codeStep", TargetID: "loop"},
		{ID: "e3", SourceID: "loop", TargetID: "double"},
	}

	wf := seedWorkflow(t, st, steps, edges)

	run, err := eng.StartRun(context.Background(), wf.ID, &domain.TriggerEnvelope{Kind: domain.TriggerKindManual})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, []any{[]any{2}, []any{4}, []any{6}}, run.Outputs["loop"])
	assert.NotContains(t, run.Outputs, "currentItem")
	assert.NotContains(t, run.Outputs, "double")
}

// S4 merge.
func TestEngineMergeFanIn(t *testing.T) {
	eng, st := newTestEngine(t)

	steps := []*domain.Step{
		{ID: "trigger", Kind: domain.StepKindManualTrigger, Order: 0},
		{ID: "predA", Kind: domain.StepKindCode, Order: 1, Config: map[string]any{"code": "return { a: 1 }"}},
		{ID: "predB", Kind: domain.StepKindCode, Order: 2, Config: map[string]any{"code": "return { b: 2 }"}},
		{ID: "merge", Kind: domain.StepKindMerge, Order: 3, Config: map[string]any{"inputs": []any{"predA", "predB"}}},
	}
	edges := []*domain.Edge{
		{ID: "e1", SourceID: "trigger", TargetID: "predA"},
		{ID: "e2", SourceID: "predA", TargetID: "predB"},
		{ID: "e3", SourceID: "predA", TargetID: "merge"},
		{ID: "e4", SourceID: "predB", TargetID: "merge"},
	}

	wf := seedWorkflow(t, st, steps, edges)

	run, err := eng.StartRun(context.Background(), wf.ID, &domain.TriggerEnvelope{Kind: domain.TriggerKindManual})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, run.Outputs["merge"])
}

// S6 cycle. A cycle with no incoming edge would never be reachable, so the
// cycle here hangs off a trigger: trigger -> a -> b -> a.
func TestEngineCycleDetected(t *testing.T) {
	eng, st := newTestEngine(t)

	steps := []*domain.Step{
		{ID: "trigger", Kind: domain.StepKindManualTrigger, Order: 0},
		{ID: "a", Kind: domain.StepKindCode, Order: 1, Config: map[string]any{"code": "return 1"}},
		{ID: "b", Kind: domain.StepKindCode, Order: 2, Config: map[string]any{"code": "return 2"}},
	}
	edges := []*domain.Edge{
		{ID: "e1", SourceID: "trigger", TargetID: "a"},
		{ID: "e2", SourceID: "a", TargetID: "b"},
		{ID: "e3", SourceID: "b", TargetID: "a"},
	}

	wf := seedWorkflow(t, st, steps, edges)

	run, err := eng.StartRun(context.Background(), wf.ID, &domain.TriggerEnvelope{Kind: domain.TriggerKindManual})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "CYCLE_DETECTED")
	assert.Contains(t, run.Error, "a -> b -> a")
}

// Determinism without AI: two runs of the same non-AI workflow with the
// same trigger produce equal outputs maps.
func TestEngineDeterministicWithoutAI(t *testing.T) {
	eng, st := newTestEngine(t)

	steps := []*domain.Step{
		{ID: "trigger", Kind: domain.StepKindManualTrigger, Order: 0},
		{ID: "codeStep", Kind: domain.StepKindCode, Order: 1, Config: map[string]any{"code": "return { n: 1 + 1 }"}},
	}
	edges := []*domain.Edge{
		{ID: "e1", SourceID: "trigger", TargetID: "codeStep"},
	}

	wf := seedWorkflow(t, st, steps, edges)

	run1, err := eng.StartRun(context.Background(), wf.ID, &domain.TriggerEnvelope{Kind: domain.TriggerKindManual})
	require.NoError(t, err)

	run2, err := eng.StartRun(context.Background(), wf.ID, &domain.TriggerEnvelope{Kind: domain.TriggerKindManual})
	require.NoError(t, err)

	assert.Equal(t, run1.Outputs["codeStep"], run2.Outputs["codeStep"])
}
