// Package store implements the Store capability of spec.md §4.6: CRUD
// persistence for workflows, steps, edges, runs, step runs and credentials.
// The engine never holds a Store resource across a step boundary — every
// call here is short and independent, safe for concurrent callers across
// runs (spec.md §5).
package store

import (
	"context"
	"time"

	"github.com/dukex/operion/internal/domain"
)

// Credential is a stored provider credential (spec.md §4.5's "credential
// record stored under type \"anthropic\"").
type Credential struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence contract the engine and TriggerGateway depend
// on. Implementations: Memory (default, no DATABASE_URL) and Postgres.
type Store interface {
	ListWorkflows(ctx context.Context) ([]*domain.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*domain.Graph, error)
	CreateWorkflow(ctx context.Context, w *domain.Workflow) (*domain.Workflow, error)
	UpdateWorkflow(ctx context.Context, w *domain.Workflow, steps []*domain.Step, edges []*domain.Edge) (*domain.Graph, error)
	DeleteWorkflow(ctx context.Context, id string) error

	GetSteps(ctx context.Context, workflowID string) ([]*domain.Step, error)
	GetEdges(ctx context.Context, workflowID string) ([]*domain.Edge, error)

	CreateExecution(ctx context.Context, e *domain.WorkflowExecution) error
	UpdateExecution(ctx context.Context, e *domain.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*domain.WorkflowExecution, error)
	ListExecutions(ctx context.Context, workflowID string) ([]*domain.WorkflowExecution, error)

	CreateStepExecution(ctx context.Context, se *domain.StepExecution) error
	UpdateStepExecution(ctx context.Context, se *domain.StepExecution) error

	ListCredentials(ctx context.Context) ([]*Credential, error)
	GetCredentialByType(ctx context.Context, credType string) (*Credential, error)
	CreateCredential(ctx context.Context, c *Credential) (*Credential, error)
	DeleteCredential(ctx context.Context, id string) error

	Close(ctx context.Context) error
}
