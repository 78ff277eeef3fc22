// Package engine implements spec.md §4.1-§4.3: the Engine orchestrator, its
// StepDispatcher/handler registry, and the FlowController traversal that
// drives one workflow execution from a trigger to a terminal status.
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
	"github.com/dukex/operion/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine is spec.md §2's top-level orchestrator: it loads a workflow graph,
// seeds a run from a TriggerEnvelope, drives a FlowController to
// completion, and persists the terminal WorkflowExecution.
type Engine struct {
	store  store.Store
	bus    eventbus.EventPublisher
	logger *slog.Logger
	tracer trace.Tracer
}

func NewEngine(st store.Store, bus eventbus.EventPublisher, logger *slog.Logger) *Engine {
	return &Engine{store: st, bus: bus, logger: logger.With("component", "engine")}
}

// WithTracer attaches an OpenTelemetry tracer (pkg/otelhelper) that spans
// every run's traversal. Optional: an Engine with no tracer runs untraced.
func (e *Engine) WithTracer(tracer trace.Tracer) *Engine {
	e.tracer = tracer

	return e
}

// admit implements spec.md §4.1 steps 1-4: load the graph, create the
// WorkflowExecution, determine the start set, and seed the matched trigger
// step's output. It is the synchronous, fast part every entry point shares.
func (e *Engine) admit(
	ctx context.Context,
	workflowID string,
	envelope *domain.TriggerEnvelope,
) (*domain.WorkflowExecution, *domain.Graph, string, error) {
	graph, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, "", domain.WrapEngineError(domain.ErrWorkflowNotFound, "start_run", err)
	}

	run := &domain.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     domain.RunStatusRunning,
		StartTime:  time.Now().UTC(),
		Outputs:    make(map[string]any),
	}

	triggerType := "manual"

	if envelope != nil {
		triggerStep, ok := findTriggerStep(graph, envelope.TriggerStepKind())
		if !ok {
			return nil, nil, "", domain.NewEngineError(domain.ErrStepNotFound, "start_run",
				"workflow has no start step of kind "+string(envelope.TriggerStepKind()))
		}

		run.Outputs[triggerStep.ID] = envelope.Fields()
		triggerType = string(envelope.Kind)

		for k, v := range envelope.ChainedOutputs {
			run.Outputs[k] = v
		}
	}

	if err := e.store.CreateExecution(ctx, run); err != nil {
		return nil, nil, "", domain.WrapEngineError(domain.ErrValidationError, "start_run", err)
	}

	e.publish(ctx, run.WorkflowID, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, run.WorkflowID, run.ID),
		TriggerType: triggerType,
	})

	return run, graph, triggerType, nil
}

// StartRun implements spec.md §4.1 end to end, synchronously: admission
// plus traversal to a terminal status. Used by the manual "execute" route,
// which spec.md §6 defines as returning 200 with the finished run. The
// returned error is non-nil only when the run could not even be admitted
// (unknown workflow, no matching trigger step); once a WorkflowExecution
// exists, traversal failures are recorded on it and returned as (run, nil).
func (e *Engine) StartRun(ctx context.Context, workflowID string, envelope *domain.TriggerEnvelope) (*domain.WorkflowExecution, error) {
	run, graph, _, err := e.admit(ctx, workflowID, envelope)
	if err != nil {
		return nil, err
	}

	e.execute(ctx, run, graph)

	return run, nil
}

// StartRunAsync admits the run synchronously and returns immediately with
// status `running`; traversal continues on a detached goroutine. Used by
// the webhook, app-event and workflow-chain routes, which spec.md §6
// defines as returning 202 without awaiting terminal status.
func (e *Engine) StartRunAsync(ctx context.Context, workflowID string, envelope *domain.TriggerEnvelope) (*domain.WorkflowExecution, error) {
	run, graph, _, err := e.admit(ctx, workflowID, envelope)
	if err != nil {
		return nil, err
	}

	// The traversal goroutine mutates run; the caller gets a snapshot taken
	// at admission so its status stays `running`.
	snapshot := *run

	go e.execute(context.Background(), run, graph)

	return &snapshot, nil
}

// execute runs the FlowController to completion and persists the terminal
// WorkflowExecution (spec.md §4.1 steps 5-6).
func (e *Engine) execute(ctx context.Context, run *domain.WorkflowExecution, graph *domain.Graph) {
	var span trace.Span

	if e.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, e.tracer, "engine.run",
			attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
			attribute.String(otelhelper.ExecutionIDKey, run.ID),
		)
		defer span.End()
	}

	start := time.Now()

	llm := llmprovider.Resolve(ctx, e.store)
	dispatcher := NewStepDispatcher(e.store, e.bus, e.logger)
	controller := NewFlowController(dispatcher, resolver.New(), sandbox.New(), llm, e.logger)

	runErr := controller.Run(ctx, run, graph)

	end := time.Now().UTC()
	run.EndTime = &end

	if runErr != nil {
		run.Status = domain.RunStatusFailed
		run.Error = runErr.Error()

		if span != nil {
			otelhelper.SetError(span, runErr, attribute.String(otelhelper.ExecutionIDKey, run.ID))
		}
	} else {
		run.Status = domain.RunStatusCompleted
	}

	if err := e.store.UpdateExecution(ctx, run); err != nil {
		e.logger.Warn("failed to persist run completion", "run_id", run.ID, "error", err)
	}

	if runErr != nil {
		e.publish(ctx, run.WorkflowID, events.RunFailed{
			BaseEvent:  events.NewBaseEvent(events.RunFailedEvent, run.WorkflowID, run.ID),
			Error:      runErr.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		})
	} else {
		e.publish(ctx, run.WorkflowID, events.RunCompleted{
			BaseEvent:  events.NewBaseEvent(events.RunCompletedEvent, run.WorkflowID, run.ID),
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, key, event); err != nil {
		e.logger.Warn("failed to publish run event", "event_type", event.GetType(), "error", err)
	}
}

func findTriggerStep(graph *domain.Graph, kind domain.StepKind) (*domain.Step, bool) {
	for _, step := range graph.StartSteps() {
		if step.Kind == kind {
			return step, true
		}
	}

	return nil, false
}
