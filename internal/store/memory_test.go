package store_test

import (
	"context"
	"testing"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWorkflowCRUD(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	created, err := m.CreateWorkflow(ctx, &domain.Workflow{Name: "wf", Description: "d"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	graph, err := m.GetWorkflow(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "wf", graph.Workflow.Name)
	assert.Empty(t, graph.Steps)

	steps := []*domain.Step{{ID: "s1", WorkflowID: created.ID, Kind: domain.StepKindManualTrigger, Order: 0}}
	edges := []*domain.Edge{}

	graph, err = m.UpdateWorkflow(ctx, &domain.Workflow{ID: created.ID, Name: "wf2", Description: "d2"}, steps, edges)
	require.NoError(t, err)
	assert.Equal(t, "wf2", graph.Workflow.Name)
	assert.Len(t, graph.Steps, 1)

	err = m.DeleteWorkflow(ctx, created.ID)
	require.NoError(t, err)

	_, err = m.GetWorkflow(ctx, created.ID)
	assert.True(t, store.IsWorkflowNotFound(err))
}

func TestMemoryExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	exec := &domain.WorkflowExecution{WorkflowID: "wf1", Status: domain.RunStatusRunning, Outputs: map[string]any{}}
	require.NoError(t, m.CreateExecution(ctx, exec))
	require.NotEmpty(t, exec.ID)

	exec.Status = domain.RunStatusCompleted
	require.NoError(t, m.UpdateExecution(ctx, exec))

	got, err := m.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)

	list, err := m.ListExecutions(ctx, "wf1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryCredentialLookupByType(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	cred := Credential("anthropic", "prod-key")
	_, err := m.CreateCredential(ctx, &cred)
	require.NoError(t, err)

	got, err := m.GetCredentialByType(ctx, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "prod-key", got.Value)

	_, err = m.GetCredentialByType(ctx, "openai")
	assert.True(t, store.IsCredentialNotFound(err))
}

func Credential(credType, value string) store.Credential {
	return store.Credential{Type: credType, Name: credType, Value: value}
}
