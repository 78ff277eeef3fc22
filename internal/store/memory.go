package store

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/operion/internal/domain"
	"github.com/google/uuid"
)

// Memory is the default Store when DATABASE_URL is unset. Every table is a
// map guarded by a single RWMutex; calls are short (spec.md §5), so a
// single lock is not a contention concern for the process's own runs.
type Memory struct {
	mu sync.RWMutex

	workflows    map[string]*domain.Workflow
	steps        map[string][]*domain.Step // workflowID -> steps
	edges        map[string][]*domain.Edge // workflowID -> edges
	executions   map[string]*domain.WorkflowExecution
	stepRuns     map[string][]*domain.StepExecution // executionID -> step runs
	credentials  map[string]*Credential
}

func NewMemory() *Memory {
	return &Memory{
		workflows:   make(map[string]*domain.Workflow),
		steps:       make(map[string][]*domain.Step),
		edges:       make(map[string][]*domain.Edge),
		executions:  make(map[string]*domain.WorkflowExecution),
		stepRuns:    make(map[string][]*domain.StepExecution),
		credentials: make(map[string]*Credential),
	}
}

func (m *Memory) ListWorkflows(_ context.Context) ([]*domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		wc := *w
		out = append(out, &wc)
	}

	return out, nil
}

func (m *Memory) GetWorkflow(_ context.Context, id string) (*domain.Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workflows[id]
	if !ok {
		return nil, NewOpError("GetWorkflow", id, ErrWorkflowNotFound)
	}

	wc := *w

	return &domain.Graph{
		Workflow: &wc,
		Steps:    cloneSteps(m.steps[id]),
		Edges:    cloneEdges(m.edges[id]),
	}, nil
}

func (m *Memory) CreateWorkflow(_ context.Context, w *domain.Workflow) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	wc := *w
	m.workflows[w.ID] = &wc

	out := *w

	return &out, nil
}

// UpdateWorkflow updates the workflow's own fields and, when steps/edges are
// non-nil, fully replaces the graph. Edges are cleared before steps are
// rewritten so a store backed by foreign keys never sees an edge pointing
// at a step that no longer exists (spec.md §4.6).
func (m *Memory) UpdateWorkflow(_ context.Context, w *domain.Workflow, steps []*domain.Step, edges []*domain.Edge) (*domain.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.workflows[w.ID]
	if !ok {
		return nil, NewOpError("UpdateWorkflow", w.ID, ErrWorkflowNotFound)
	}

	updated := *existing
	updated.Name = w.Name
	updated.Description = w.Description
	updated.IsActive = w.IsActive
	updated.UpdatedAt = time.Now().UTC()
	m.workflows[w.ID] = &updated

	if edges != nil {
		delete(m.edges, w.ID)
	}

	if steps != nil {
		m.steps[w.ID] = cloneSteps(steps)
	}

	if edges != nil {
		m.edges[w.ID] = cloneEdges(edges)
	}

	out := updated

	return &domain.Graph{
		Workflow: &out,
		Steps:    cloneSteps(m.steps[w.ID]),
		Edges:    cloneEdges(m.edges[w.ID]),
	}, nil
}

func (m *Memory) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[id]; !ok {
		return NewOpError("DeleteWorkflow", id, ErrWorkflowNotFound)
	}

	delete(m.workflows, id)
	delete(m.steps, id)
	delete(m.edges, id)

	for execID, exec := range m.executions {
		if exec.WorkflowID == id {
			delete(m.executions, execID)
			delete(m.stepRuns, execID)
		}
	}

	return nil
}

func (m *Memory) GetSteps(_ context.Context, workflowID string) ([]*domain.Step, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	steps := cloneSteps(m.steps[workflowID])
	domain.SortSteps(steps)

	return steps, nil
}

func (m *Memory) GetEdges(_ context.Context, workflowID string) ([]*domain.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneEdges(m.edges[workflowID]), nil
}

func (m *Memory) CreateExecution(_ context.Context, e *domain.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	ec := *e
	m.executions[e.ID] = &ec

	return nil
}

func (m *Memory) UpdateExecution(_ context.Context, e *domain.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executions[e.ID]; !ok {
		return NewOpError("UpdateExecution", e.ID, ErrExecutionNotFound)
	}

	ec := *e
	m.executions[e.ID] = &ec

	return nil
}

func (m *Memory) GetExecution(_ context.Context, id string) (*domain.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.executions[id]
	if !ok {
		return nil, NewOpError("GetExecution", id, ErrExecutionNotFound)
	}

	ec := *e

	return &ec, nil
}

func (m *Memory) ListExecutions(_ context.Context, workflowID string) ([]*domain.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.WorkflowExecution

	for _, e := range m.executions {
		if e.WorkflowID == workflowID {
			ec := *e
			out = append(out, &ec)
		}
	}

	sortExecutionsNewestFirst(out)

	return out, nil
}

func (m *Memory) CreateStepExecution(_ context.Context, se *domain.StepExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if se.ID == "" {
		se.ID = uuid.New().String()
	}

	sc := *se
	m.stepRuns[se.WorkflowExecutionID] = append(m.stepRuns[se.WorkflowExecutionID], &sc)

	return nil
}

func (m *Memory) UpdateStepExecution(_ context.Context, se *domain.StepExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := m.stepRuns[se.WorkflowExecutionID]
	for i, r := range runs {
		if r.ID == se.ID {
			sc := *se
			runs[i] = &sc

			return nil
		}
	}

	return NewOpError("UpdateStepExecution", se.ID, ErrExecutionNotFound)
}

func (m *Memory) ListCredentials(_ context.Context) ([]*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Credential, 0, len(m.credentials))
	for _, c := range m.credentials {
		cc := *c
		out = append(out, &cc)
	}

	return out, nil
}

func (m *Memory) GetCredentialByType(_ context.Context, credType string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.credentials {
		if c.Type == credType {
			cc := *c

			return &cc, nil
		}
	}

	return nil, NewOpError("GetCredentialByType", credType, ErrCredentialNotFound)
}

func (m *Memory) CreateCredential(_ context.Context, c *Credential) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	c.CreatedAt = time.Now().UTC()
	cc := *c
	m.credentials[c.ID] = &cc

	out := *c

	return &out, nil
}

func (m *Memory) DeleteCredential(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.credentials[id]; !ok {
		return NewOpError("DeleteCredential", id, ErrCredentialNotFound)
	}

	delete(m.credentials, id)

	return nil
}

func (m *Memory) Close(_ context.Context) error { return nil }

func cloneSteps(in []*domain.Step) []*domain.Step {
	out := make([]*domain.Step, len(in))
	for i, s := range in {
		sc := *s
		out[i] = &sc
	}

	return out
}

func cloneEdges(in []*domain.Edge) []*domain.Edge {
	out := make([]*domain.Edge, len(in))
	for i, e := range in {
		ec := *e
		out[i] = &ec
	}

	return out
}

func sortExecutionsNewestFirst(execs []*domain.WorkflowExecution) {
	for i := 1; i < len(execs); i++ {
		j := i
		for j > 0 && execs[j].StartTime.After(execs[j-1].StartTime) {
			execs[j], execs[j-1] = execs[j-1], execs[j]
			j--
		}
	}
}
