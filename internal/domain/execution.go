package domain

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// WorkflowExecution is one execution of a workflow from a trigger to
// terminal status (spec.md's "Run").
type WorkflowExecution struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId"`
	Status     RunStatus      `json:"status"`
	StartTime  time.Time      `json:"startTime"`
	EndTime    *time.Time     `json:"endTime,omitempty"`
	Error      string         `json:"error,omitempty"`
	Outputs    map[string]any `json:"outputs"`
}

// StepExecution is one dispatch of one step within a run.
type StepExecution struct {
	ID                  string     `json:"id"`
	WorkflowExecutionID string     `json:"workflowExecutionId"`
	StepID              string     `json:"stepId"`
	Status              StepStatus `json:"status"`
	StartTime           time.Time  `json:"startTime"`
	EndTime             *time.Time `json:"endTime,omitempty"`
	Error               string     `json:"error,omitempty"`
	Input               any        `json:"input"`
	Output              any        `json:"output"`
}

// TriggerKind tags the variant carried by a TriggerEnvelope.
type TriggerKind string

const (
	TriggerKindManual   TriggerKind = "manual"
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindAppEvent TriggerKind = "app_event"
	TriggerKindWorkflow TriggerKind = "workflow"
)

// TriggerEnvelope is the typed payload TriggerGateway admits into the
// engine. Exactly the fields relevant to Kind are populated; the rest are
// zero. Engine.StartRun uses Kind to find the matching trigger step
// (spec.md §4.1 step 4) and to shape the seeded output.
type TriggerEnvelope struct {
	Kind TriggerKind

	// Webhook
	WebhookID string
	Payload   map[string]any
	Headers   map[string]string
	Query     map[string]string

	// AppEvent
	EventType string

	// Workflow chaining
	SourceWorkflowID  string
	SourceExecutionID string
	ChainedOutputs    map[string]any
}

// Fields returns the envelope's data merged into the trigger step's seeded
// output, per spec.md §4.1 step 4 ("{triggered: true, triggerType,
// ...envelope}").
func (e TriggerEnvelope) Fields() map[string]any {
	fields := map[string]any{
		"triggered":   true,
		"triggerType": string(e.Kind),
	}

	switch e.Kind {
	case TriggerKindManual:
		// no extra fields
	case TriggerKindWebhook:
		fields["webhookId"] = e.WebhookID
		fields["payload"] = e.Payload
		fields["headers"] = e.Headers
		fields["query"] = e.Query
	case TriggerKindAppEvent:
		fields["eventType"] = e.EventType
		fields["payload"] = e.Payload
	case TriggerKindWorkflow:
		fields["sourceWorkflowId"] = e.SourceWorkflowID
		fields["sourceExecutionId"] = e.SourceExecutionID
	}

	return fields
}

// TriggerStepKind maps a TriggerKind to the step kind Engine.StartRun looks
// for among the workflow's start steps (spec.md §4.7).
func (e TriggerEnvelope) TriggerStepKind() StepKind {
	switch e.Kind {
	case TriggerKindWebhook:
		return StepKindWebhookTrigger
	case TriggerKindAppEvent:
		return StepKindAppEventTrigger
	case TriggerKindWorkflow:
		return StepKindWorkflowTrigger
	case TriggerKindManual:
		fallthrough
	default:
		return StepKindManualTrigger
	}
}
