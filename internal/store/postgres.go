package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/operion/internal/domain"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// schema mirrors spec.md §3/§6: the five data-model tables plus a
// credentials table, JSON columns for position, config, outputs, input and
// output, cascading delete from workflow down to steps, edges and runs.
const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS steps (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	position JSONB NOT NULL DEFAULT '{}',
	config JSONB NOT NULL DEFAULT '{}',
	step_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS edges (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	label TEXT
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ,
	error TEXT NOT NULL DEFAULT '',
	outputs JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS step_executions (
	id TEXT PRIMARY KEY,
	workflow_execution_id TEXT NOT NULL REFERENCES workflow_executions(id) ON DELETE CASCADE,
	step_id TEXT NOT NULL,
	status TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ,
	error TEXT NOT NULL DEFAULT '',
	input JSONB,
	output JSONB
);

CREATE TABLE IF NOT EXISTS credentials (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// Postgres is the Store backing used when DATABASE_URL is set.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) ListWorkflows(ctx context.Context) ([]*domain.Workflow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, description, is_active, created_at, updated_at FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*domain.Workflow

	for rows.Next() {
		w := &domain.Workflow{}
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}

		out = append(out, w)
	}

	return out, rows.Err()
}

func (p *Postgres) GetWorkflow(ctx context.Context, id string) (*domain.Graph, error) {
	w := &domain.Workflow{}

	row := p.db.QueryRowContext(ctx, `SELECT id, name, description, is_active, created_at, updated_at FROM workflows WHERE id = $1`, id)
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewOpError("GetWorkflow", id, ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("get workflow: %w", err)
	}

	steps, err := p.GetSteps(ctx, id)
	if err != nil {
		return nil, err
	}

	edges, err := p.GetEdges(ctx, id)
	if err != nil {
		return nil, err
	}

	return &domain.Graph{Workflow: w, Steps: steps, Edges: edges}, nil
}

func (p *Postgres) CreateWorkflow(ctx context.Context, w *domain.Workflow) (*domain.Workflow, error) {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, is_active, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		w.ID, w.Name, w.Description, w.IsActive, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert workflow: %w", err)
	}

	return w, nil
}

// UpdateWorkflow updates workflow fields and, when steps/edges are
// non-nil, replaces the graph inside a transaction: edges are deleted
// before steps are rewritten (spec.md §4.6). The edges table declares no
// foreign key to steps, so the database does not reject an edge whose
// source or target step is missing.
func (p *Postgres) UpdateWorkflow(ctx context.Context, w *domain.Workflow, steps []*domain.Step, edges []*domain.Edge) (*domain.Graph, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE workflows SET name=$2, description=$3, is_active=$4, updated_at=$5 WHERE id=$1`,
		w.ID, w.Name, w.Description, w.IsActive, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil, NewOpError("UpdateWorkflow", w.ID, ErrWorkflowNotFound)
	}

	if edges != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE workflow_id=$1`, w.ID); err != nil {
			return nil, fmt.Errorf("clear edges: %w", err)
		}
	}

	if steps != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE workflow_id=$1`, w.ID); err != nil {
			return nil, fmt.Errorf("clear steps: %w", err)
		}

		for _, s := range steps {
			position, _ := json.Marshal(s.Position)
			config, _ := json.Marshal(s.Config)

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO steps (id, workflow_id, kind, label, position, config, step_order) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				s.ID, w.ID, string(s.Kind), s.Label, position, config, s.Order,
			); err != nil {
				return nil, fmt.Errorf("insert step %s: %w", s.ID, err)
			}
		}
	}

	if edges != nil {
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO edges (id, workflow_id, source_id, target_id, label) VALUES ($1,$2,$3,$4,$5)`,
				e.ID, w.ID, e.SourceID, e.TargetID, e.Label,
			); err != nil {
				return nil, fmt.Errorf("insert edge %s: %w", e.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return p.GetWorkflow(ctx, w.ID)
}

func (p *Postgres) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM workflows WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return NewOpError("DeleteWorkflow", id, ErrWorkflowNotFound)
	}

	return nil
}

func (p *Postgres) GetSteps(ctx context.Context, workflowID string) ([]*domain.Step, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, workflow_id, kind, label, position, config, step_order FROM steps WHERE workflow_id=$1 ORDER BY step_order, id`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []*domain.Step

	for rows.Next() {
		s := &domain.Step{}

		var kind string

		var position, config []byte

		if err := rows.Scan(&s.ID, &s.WorkflowID, &kind, &s.Label, &position, &config, &s.Order); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}

		s.Kind = domain.StepKind(kind)
		_ = json.Unmarshal(position, &s.Position)
		_ = json.Unmarshal(config, &s.Config)
		out = append(out, s)
	}

	return out, rows.Err()
}

func (p *Postgres) GetEdges(ctx context.Context, workflowID string) ([]*domain.Edge, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, workflow_id, source_id, target_id, label FROM edges WHERE workflow_id=$1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []*domain.Edge

	for rows.Next() {
		e := &domain.Edge{}
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.SourceID, &e.TargetID, &e.Label); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

func (p *Postgres) CreateExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	outputs, _ := json.Marshal(e.Outputs)

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (id, workflow_id, status, start_time, end_time, error, outputs) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.WorkflowID, string(e.Status), e.StartTime, e.EndTime, e.Error, outputs)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	return nil
}

func (p *Postgres) UpdateExecution(ctx context.Context, e *domain.WorkflowExecution) error {
	outputs, _ := json.Marshal(e.Outputs)

	res, err := p.db.ExecContext(ctx,
		`UPDATE workflow_executions SET status=$2, end_time=$3, error=$4, outputs=$5 WHERE id=$1`,
		e.ID, string(e.Status), e.EndTime, e.Error, outputs)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return NewOpError("UpdateExecution", e.ID, ErrExecutionNotFound)
	}

	return nil
}

func (p *Postgres) GetExecution(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	e := &domain.WorkflowExecution{}

	var status string

	var outputs []byte

	row := p.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, status, start_time, end_time, error, outputs FROM workflow_executions WHERE id=$1`, id)
	if err := row.Scan(&e.ID, &e.WorkflowID, &status, &e.StartTime, &e.EndTime, &e.Error, &outputs); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewOpError("GetExecution", id, ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("get execution: %w", err)
	}

	e.Status = domain.RunStatus(status)
	_ = json.Unmarshal(outputs, &e.Outputs)

	return e, nil
}

func (p *Postgres) ListExecutions(ctx context.Context, workflowID string) ([]*domain.WorkflowExecution, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, workflow_id, status, start_time, end_time, error, outputs FROM workflow_executions WHERE workflow_id=$1 ORDER BY start_time DESC`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowExecution

	for rows.Next() {
		e := &domain.WorkflowExecution{}

		var status string

		var outputs []byte

		if err := rows.Scan(&e.ID, &e.WorkflowID, &status, &e.StartTime, &e.EndTime, &e.Error, &outputs); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}

		e.Status = domain.RunStatus(status)
		_ = json.Unmarshal(outputs, &e.Outputs)
		out = append(out, e)
	}

	return out, rows.Err()
}

func (p *Postgres) CreateStepExecution(ctx context.Context, se *domain.StepExecution) error {
	if se.ID == "" {
		se.ID = uuid.New().String()
	}

	input, _ := json.Marshal(se.Input)
	output, _ := json.Marshal(se.Output)

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO step_executions (id, workflow_execution_id, step_id, status, start_time, end_time, error, input, output) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		se.ID, se.WorkflowExecutionID, se.StepID, string(se.Status), se.StartTime, se.EndTime, se.Error, input, output)
	if err != nil {
		return fmt.Errorf("insert step execution: %w", err)
	}

	return nil
}

func (p *Postgres) UpdateStepExecution(ctx context.Context, se *domain.StepExecution) error {
	output, _ := json.Marshal(se.Output)

	res, err := p.db.ExecContext(ctx,
		`UPDATE step_executions SET status=$2, end_time=$3, error=$4, output=$5 WHERE id=$1`,
		se.ID, string(se.Status), se.EndTime, se.Error, output)
	if err != nil {
		return fmt.Errorf("update step execution: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return NewOpError("UpdateStepExecution", se.ID, ErrExecutionNotFound)
	}

	return nil
}

func (p *Postgres) ListCredentials(ctx context.Context) ([]*Credential, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, type, name, value, created_at FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*Credential

	for rows.Next() {
		c := &Credential{}
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &c.Value, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

func (p *Postgres) GetCredentialByType(ctx context.Context, credType string) (*Credential, error) {
	c := &Credential{}

	row := p.db.QueryRowContext(ctx, `SELECT id, type, name, value, created_at FROM credentials WHERE type=$1 LIMIT 1`, credType)
	if err := row.Scan(&c.ID, &c.Type, &c.Name, &c.Value, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewOpError("GetCredentialByType", credType, ErrCredentialNotFound)
		}

		return nil, fmt.Errorf("get credential: %w", err)
	}

	return c, nil
}

func (p *Postgres) CreateCredential(ctx context.Context, c *Credential) (*Credential, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	c.CreatedAt = time.Now().UTC()

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO credentials (id, type, name, value, created_at) VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.Type, c.Name, c.Value, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert credential: %w", err)
	}

	return c, nil
}

func (p *Postgres) DeleteCredential(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM credentials WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return NewOpError("DeleteCredential", id, ErrCredentialNotFound)
	}

	return nil
}

func (p *Postgres) Close(_ context.Context) error {
	return p.db.Close()
}
