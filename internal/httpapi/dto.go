package httpapi

import "github.com/dukex/operion/internal/domain"

// CreateWorkflowRequest is the body of POST /api/workflows.
type CreateWorkflowRequest struct {
	Name        string `json:"name"        validate:"required,min=1"`
	Description string `json:"description"`
}

// UpdateWorkflowRequest is the body of PATCH /api/workflows/{id}. Steps and
// Edges, when present, fully replace the graph (spec.md §6).
type UpdateWorkflowRequest struct {
	Name        *string      `json:"name"        validate:"omitempty,min=1"`
	Description *string      `json:"description"`
	IsActive    *bool        `json:"isActive"`
	Steps       []*StepDTO   `json:"steps,omitempty"`
	Edges       []*EdgeDTO   `json:"edges,omitempty"`
}

type StepDTO struct {
	ID       string             `json:"id"`
	Kind     domain.StepKind    `json:"kind"     validate:"required"`
	Label    string             `json:"label"`
	Position map[string]any     `json:"position"`
	Config   map[string]any     `json:"config"`
	Order    int                `json:"order"`
}

type EdgeDTO struct {
	ID       string  `json:"id"`
	SourceID string  `json:"sourceId" validate:"required"`
	TargetID string  `json:"targetId" validate:"required"`
	Label    *string `json:"label,omitempty"`
}

func (d *StepDTO) toDomain(workflowID string) *domain.Step {
	return &domain.Step{
		ID:         d.ID,
		WorkflowID: workflowID,
		Kind:       d.Kind,
		Label:      d.Label,
		Position:   d.Position,
		Config:     d.Config,
		Order:      d.Order,
	}
}

func (d *EdgeDTO) toDomain(workflowID string) *domain.Edge {
	return &domain.Edge{
		ID:         d.ID,
		WorkflowID: workflowID,
		SourceID:   d.SourceID,
		TargetID:   d.TargetID,
		Label:      d.Label,
	}
}

// EventRequest is the body of POST /api/events.
type EventRequest struct {
	EventType string         `json:"eventType" validate:"required"`
	Payload   map[string]any `json:"payload"`
}

// ChainRequest is the body of POST /api/workflows/{id}/chain.
type ChainRequest struct {
	TargetWorkflowID string `json:"targetWorkflowId" validate:"required"`
}

// CredentialRequest is the body of POST /api/credentials.
type CredentialRequest struct {
	Type  string `json:"type"  validate:"required"`
	Name  string `json:"name"  validate:"required"`
	Value string `json:"value" validate:"required"`
}
