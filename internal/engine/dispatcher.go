package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/llmprovider"
	"github.com/dukex/operion/internal/resolver"
	"github.com/dukex/operion/internal/sandbox"
	"github.com/dukex/operion/internal/store"
	"github.com/dukex/operion/pkg/eventbus"
	"github.com/dukex/operion/pkg/events"
	"github.com/google/uuid"
)

// StepDispatcher selects a handler by kind, invokes it, and records the
// resulting StepExecution — spec.md §2's "StepDispatcher: for one step,
// select a handler by kind, marshal inputs, invoke, write result".
// Grounded on the teacher's node-executor dispatch table
// (_examples/dukex-operion/pkg/nodes), generalized from the port/node model
// to the flat StepKind registry spec.md §3 describes.
type StepDispatcher struct {
	handlers map[domain.StepKind]HandlerFunc
	store    store.Store
	bus      eventbus.EventPublisher
	logger   *slog.Logger
}

func NewStepDispatcher(st store.Store, bus eventbus.EventPublisher, logger *slog.Logger) *StepDispatcher {
	d := &StepDispatcher{
		handlers: make(map[domain.StepKind]HandlerFunc),
		store:    st,
		bus:      bus,
		logger:   logger,
	}

	d.registerBuiltins()

	return d
}

func (d *StepDispatcher) register(kind domain.StepKind, h HandlerFunc) {
	d.handlers[kind] = h
}

// Dispatch creates the StepExecution row, runs the registered handler, and
// records the outcome. It never itself decides whether the run continues —
// that is FlowController's job.
func (d *StepDispatcher) Dispatch(
	ctx context.Context,
	runID string,
	step *domain.Step,
	sc *StepContext,
) (any, error) {
	handler, ok := d.handlers[step.Kind]
	if !ok {
		return nil, domain.NewEngineError(domain.ErrStepNotFound, "dispatch",
			"no handler registered for step kind "+string(step.Kind))
	}

	stepExec := &domain.StepExecution{
		ID:                  uuid.New().String(),
		WorkflowExecutionID: runID,
		StepID:              step.ID,
		Status:              domain.StepStatusRunning,
		StartTime:           time.Now().UTC(),
		Input:               sc.Inputs,
	}

	if err := d.store.CreateStepExecution(ctx, stepExec); err != nil {
		d.logger.Warn("failed to persist step execution start", "step_id", step.ID, "error", err)
	}

	d.publish(ctx, runID, events.StepDispatched{
		BaseEvent: events.NewBaseEvent(events.StepDispatchedEvent, step.WorkflowID, runID),
		StepID:    step.ID,
		Kind:      string(step.Kind),
	})

	start := time.Now()

	value, err := handler(ctx, step, sc)

	elapsed := time.Since(start)
	end := time.Now().UTC()
	stepExec.EndTime = &end

	if err != nil {
		stepExec.Status = domain.StepStatusFailed
		stepExec.Error = err.Error()

		if updErr := d.store.UpdateStepExecution(ctx, stepExec); updErr != nil {
			d.logger.Warn("failed to persist step execution failure", "step_id", step.ID, "error", updErr)
		}

		d.publish(ctx, runID, events.StepFailed{
			BaseEvent: events.NewBaseEvent(events.StepFailedEvent, step.WorkflowID, runID),
			StepID:    step.ID,
			Error:     err.Error(),
		})

		return nil, err
	}

	stepExec.Status = domain.StepStatusCompleted
	stepExec.Output = value

	if updErr := d.store.UpdateStepExecution(ctx, stepExec); updErr != nil {
		d.logger.Warn("failed to persist step execution completion", "step_id", step.ID, "error", updErr)
	}

	d.publish(ctx, runID, events.StepCompleted{
		BaseEvent:  events.NewBaseEvent(events.StepCompletedEvent, step.WorkflowID, runID),
		StepID:     step.ID,
		DurationMs: elapsed.Milliseconds(),
	})

	return value, nil
}

func (d *StepDispatcher) publish(ctx context.Context, key string, event eventbus.Event) {
	if d.bus == nil {
		return
	}

	if err := d.bus.Publish(ctx, key, event); err != nil {
		d.logger.Warn("failed to publish step event", "event_type", event.GetType(), "error", err)
	}
}

func (d *StepDispatcher) registerBuiltins() {
	d.register(domain.StepKindManualTrigger, handleTrigger)
	d.register(domain.StepKindScheduleTrigger, handleTrigger)
	d.register(domain.StepKindWebhookTrigger, handleTrigger)
	d.register(domain.StepKindAppEventTrigger, handleTrigger)
	d.register(domain.StepKindWorkflowTrigger, handleTrigger)

	d.register(domain.StepKindBasicLLMChain, handleBasicLLMChain)
	d.register(domain.StepKindAITransform, handleAITransform)
	d.register(domain.StepKindInfoExtractor, handleInformationExtractor)
	d.register(domain.StepKindQAChain, handleQAChain)
	d.register(domain.StepKindSentimentAnalysis, handleSentimentAnalysis)
	d.register(domain.StepKindSummarization, handleSummarization)
	d.register(domain.StepKindTextClassifier, handleTextClassifier)

	d.register(domain.StepKindCondition, handleCondition)
	d.register(domain.StepKindSwitch, handleSwitch)
	d.register(domain.StepKindLoop, handleLoop)
	d.register(domain.StepKindFilter, handleFilter)
	d.register(domain.StepKindMerge, handleMerge)
	d.register(domain.StepKindCode, handleCode)
}

// buildStepContext assembles the capabilities every handler receives.
func buildStepContext(
	inputs map[string]any,
	outputs map[string]any,
	edges []*domain.Edge,
	res *resolver.Resolver,
	sb *sandbox.Sandbox,
	llm llmprovider.Provider,
	logger *slog.Logger,
) *StepContext {
	return &StepContext{
		Inputs:   inputs,
		Outputs:  outputs,
		Resolver: res,
		Sandbox:  sb,
		LLM:      llm,
		Edges:    edges,
		Logger:   logger,
	}
}
