// Package domain holds the data model shared by the engine and its
// collaborators: workflows, steps, edges, runs and step runs (spec.md §3).
package domain

import (
	"sort"
	"time"
)

// StepKind is the closed set of step handlers the dispatcher knows about.
type StepKind string

const (
	StepKindManualTrigger    StepKind = "manual_trigger"
	StepKindScheduleTrigger  StepKind = "schedule_trigger"
	StepKindWebhookTrigger   StepKind = "webhook_trigger"
	StepKindAppEventTrigger  StepKind = "app_event_trigger"
	StepKindWorkflowTrigger  StepKind = "workflow_trigger"
	StepKindBasicLLMChain    StepKind = "basic_llm_chain"
	StepKindAITransform      StepKind = "ai_transform"
	StepKindInfoExtractor    StepKind = "information_extractor"
	StepKindQAChain          StepKind = "qa_chain"
	StepKindSentimentAnalysis StepKind = "sentiment_analysis"
	StepKindSummarization    StepKind = "summarization_chain"
	StepKindTextClassifier   StepKind = "text_classifier"
	StepKindCondition        StepKind = "condition"
	StepKindSwitch           StepKind = "switch"
	StepKindLoop             StepKind = "loop"
	StepKindFilter           StepKind = "filter"
	StepKindMerge            StepKind = "merge"
	StepKindCode             StepKind = "code"
)

// IsTrigger reports whether the kind is one of the five trigger step kinds.
func (k StepKind) IsTrigger() bool {
	switch k {
	case StepKindManualTrigger, StepKindScheduleTrigger, StepKindWebhookTrigger,
		StepKindAppEventTrigger, StepKindWorkflowTrigger:
		return true
	default:
		return false
	}
}

// Workflow is a persistent directed graph of steps and edges. Purely
// declarative; never mutated by the engine.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"          validate:"required,min=1"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Step is a node in a workflow graph.
type Step struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId"`
	Kind       StepKind       `json:"kind"       validate:"required"`
	Label      string         `json:"label"`
	Position   map[string]any `json:"position"`
	Config     map[string]any `json:"config"`
	// Order breaks ties among ready siblings with no data dependency:
	// ascending Order, then ascending ID.
	Order int `json:"order"`
}

// Edge is a directed connector between two steps, optionally carrying a
// branch label ("true"/"false" for condition, a case value or "default"
// for switch).
type Edge struct {
	ID         string  `json:"id"`
	WorkflowID string  `json:"workflowId"`
	SourceID   string  `json:"sourceId"`
	TargetID   string  `json:"targetId"`
	Label      *string `json:"label,omitempty"`
}

// Graph bundles a workflow with its steps and edges, the shape returned by
// GET /api/workflows/{id} and consumed by the engine at run start.
type Graph struct {
	Workflow *Workflow `json:"workflow"`
	Steps    []*Step   `json:"steps"`
	Edges    []*Edge   `json:"edges"`
}

// StepsByID indexes steps for O(1) lookup during traversal.
func (g *Graph) StepsByID() map[string]*Step {
	byID := make(map[string]*Step, len(g.Steps))
	for _, s := range g.Steps {
		byID[s.ID] = s
	}

	return byID
}

// Outgoing indexes edges by source step id, preserving input order.
func (g *Graph) Outgoing() map[string][]*Edge {
	out := make(map[string][]*Edge)
	for _, e := range g.Edges {
		out[e.SourceID] = append(out[e.SourceID], e)
	}

	return out
}

// Incoming indexes edges by target step id.
func (g *Graph) Incoming() map[string][]*Edge {
	in := make(map[string][]*Edge)
	for _, e := range g.Edges {
		in[e.TargetID] = append(in[e.TargetID], e)
	}

	return in
}

// StartSteps returns the steps with no incoming edge, ordered by Order then
// ID, per spec.md §4.1 step 4.
func (g *Graph) StartSteps() []*Step {
	in := g.Incoming()

	var starts []*Step

	for _, s := range g.Steps {
		if len(in[s.ID]) == 0 {
			starts = append(starts, s)
		}
	}

	SortSteps(starts)

	return starts
}

// SortSteps orders steps ascending by Order then by ID, the stable
// tie-break spec.md §4.2 requires among ready siblings.
func SortSteps(steps []*Step) {
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Order != steps[j].Order {
			return steps[i].Order < steps[j].Order
		}

		return steps[i].ID < steps[j].ID
	})
}
