// Package trigger implements TriggerGateway (spec.md §4.7): the single
// admission point that turns a manual request, a signed webhook, an
// application event, or a completed workflow's output into a
// domain.TriggerEnvelope and hands it to the Engine.
package trigger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/store"
	"github.com/xeipuuv/gojsonschema"
)

// Runner is the subset of Engine the gateway depends on.
type Runner interface {
	StartRun(ctx context.Context, workflowID string, envelope *domain.TriggerEnvelope) (*domain.WorkflowExecution, error)
	StartRunAsync(ctx context.Context, workflowID string, envelope *domain.TriggerEnvelope) (*domain.WorkflowExecution, error)
}

type Gateway struct {
	store  store.Store
	engine Runner
	logger *slog.Logger
}

func NewGateway(st store.Store, eng Runner, logger *slog.Logger) *Gateway {
	return &Gateway{store: st, engine: eng, logger: logger.With("component", "trigger_gateway")}
}

// Manual starts a run by explicit workflow id (spec.md §4.7's manual shape).
func (g *Gateway) Manual(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error) {
	return g.engine.StartRun(ctx, workflowID, &domain.TriggerEnvelope{Kind: domain.TriggerKindManual})
}

// Webhook implements the webhook shape: find the workflow whose
// webhook_trigger step declares this webhookId, verify the HMAC-SHA256
// signature over the raw body when a secret is configured, and start a run.
func (g *Gateway) Webhook(
	ctx context.Context,
	webhookID string,
	body []byte,
	signature string,
	headers map[string]string,
	query map[string]string,
) (*domain.WorkflowExecution, error) {
	workflowID, step, err := g.findStepByConfigString(ctx, domain.StepKindWebhookTrigger, "webhookId", webhookID, false)
	if err != nil {
		return nil, err
	}

	if secret, _ := step.Config["secret"].(string); secret != "" {
		if signature == "" {
			return nil, domain.NewEngineError(domain.ErrWebhookSignatureMissing, "webhook",
				"missing X-Webhook-Signature header")
		}

		if !validSignature(secret, body, signature) {
			return nil, domain.NewEngineError(domain.ErrWebhookSignatureInvalid, "webhook",
				"signature does not match request body")
		}
	}

	var payload map[string]any
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}

	if raw, ok := step.Config["payloadSchema"]; ok {
		if err := validatePayloadSchema(raw, payload); err != nil {
			return nil, err
		}
	}

	return g.engine.StartRunAsync(ctx, workflowID, &domain.TriggerEnvelope{
		Kind:      domain.TriggerKindWebhook,
		WebhookID: webhookID,
		Payload:   payload,
		Headers:   headers,
		Query:     query,
	})
}

// AppEvent implements the app_event shape: fan out to every active
// workflow with an app_event_trigger step matching eventType.
func (g *Gateway) AppEvent(ctx context.Context, eventType string, payload map[string]any) ([]*domain.WorkflowExecution, error) {
	workflows, err := g.store.ListWorkflows(ctx)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrWorkflowNotFound, "app_event", err)
	}

	var runs []*domain.WorkflowExecution

	for _, wf := range workflows {
		if !wf.IsActive {
			continue
		}

		graph, err := g.store.GetWorkflow(ctx, wf.ID)
		if err != nil {
			g.logger.Warn("failed to load workflow for app event fan-out", "workflow_id", wf.ID, "error", err)

			continue
		}

		matched := false

		for _, step := range graph.Steps {
			if step.Kind != domain.StepKindAppEventTrigger {
				continue
			}

			if et, _ := step.Config["eventType"].(string); et == eventType {
				matched = true

				break
			}
		}

		if !matched {
			continue
		}

		run, err := g.engine.StartRunAsync(ctx, wf.ID, &domain.TriggerEnvelope{
			Kind:      domain.TriggerKindAppEvent,
			EventType: eventType,
			Payload:   payload,
		})
		if err != nil {
			g.logger.Warn("app event fan-out failed to start run", "workflow_id", wf.ID, "error", err)

			continue
		}

		runs = append(runs, run)
	}

	return runs, nil
}

// Chain implements the workflow (chain) shape: the source workflow's most
// recent run must be completed, and its outputs are merged into the target
// run's initial outputs.
func (g *Gateway) Chain(ctx context.Context, sourceWorkflowID, targetWorkflowID string) (*domain.WorkflowExecution, error) {
	executions, err := g.store.ListExecutions(ctx, sourceWorkflowID)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrWorkflowNotFound, "chain", err)
	}

	if len(executions) == 0 || executions[0].Status != domain.RunStatusCompleted {
		return nil, domain.NewEngineError(domain.ErrValidationError, "chain",
			"source workflow's most recent run is not completed")
	}

	source := executions[0]

	return g.engine.StartRunAsync(ctx, targetWorkflowID, &domain.TriggerEnvelope{
		Kind:              domain.TriggerKindWorkflow,
		SourceWorkflowID:  sourceWorkflowID,
		SourceExecutionID: source.ID,
		ChainedOutputs:    source.Outputs,
	})
}

// findStepByConfigString scans every workflow's steps for one of kind k
// whose config[key] equals value. Store has no dedicated index for this
// (spec.md §4.6 does not require one), so this is a linear scan — the
// engine is single-process and this path is only exercised at admission
// time, not per-step during a run.
func (g *Gateway) findStepByConfigString(
	ctx context.Context,
	kind domain.StepKind,
	key, value string,
	activeOnly bool,
) (string, *domain.Step, error) {
	workflows, err := g.store.ListWorkflows(ctx)
	if err != nil {
		return "", nil, domain.WrapEngineError(domain.ErrWorkflowNotFound, "find_step", err)
	}

	for _, wf := range workflows {
		if activeOnly && !wf.IsActive {
			continue
		}

		graph, err := g.store.GetWorkflow(ctx, wf.ID)
		if err != nil {
			continue
		}

		for _, step := range graph.Steps {
			if step.Kind != kind {
				continue
			}

			if v, _ := step.Config[key].(string); v == value {
				return wf.ID, step, nil
			}
		}
	}

	return "", nil, domain.NewEngineError(domain.ErrWorkflowNotFound, "find_step",
		"no workflow has a "+string(kind)+" step with "+key+"="+value)
}

func validSignature(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}

// validatePayloadSchema checks a webhook body against a webhook_trigger
// step's optional payloadSchema config before a run is admitted, so a
// malformed sender never reaches the graph.
func validatePayloadSchema(rawSchema any, payload map[string]any) error {
	encodedSchema, err := json.Marshal(rawSchema)
	if err != nil {
		return nil
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(encodedSchema))
	if err != nil {
		return nil
	}

	encodedPayload, err := json.Marshal(payload)
	if err != nil {
		return domain.WrapEngineError(domain.ErrTypeError, "webhook", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(encodedPayload))
	if err != nil {
		return nil
	}

	if !result.Valid() {
		return domain.NewEngineError(domain.ErrTypeError, "webhook",
			fmt.Sprintf("webhook payload does not match payloadSchema: %v", result.Errors()))
	}

	return nil
}
