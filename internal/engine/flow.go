package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/llmprovider"
	"github.com/dukex/operion/internal/resolver"
	"github.com/dukex/operion/internal/sandbox"
)

// FlowController implements spec.md §4.2's per-run traversal: ready-set
// selection by forward fan-out, branch selection for condition/switch,
// iteration for loop, fan-in for merge, cycle detection. It never touches
// Store — that is StepDispatcher's job — and only ever mutates the outputs
// overlay it was handed.
//
// Grounded on the teacher's flow orchestration in
// _examples/dukex-operion/pkg/workflow (a linear-plus-conditional walk over
// a node's `next`/`error` pointers), generalized here to the multi-edge,
// labelled adjacency graph spec.md §3 describes.
type FlowController struct {
	dispatcher *StepDispatcher
	resolver   *resolver.Resolver
	sandbox    *sandbox.Sandbox
	llm        llmprovider.Provider
	logger     *slog.Logger

	stepsByID map[string]*domain.Step
	outgoing  map[string][]*domain.Edge
	incoming  map[string][]*domain.Edge
	runID     string
}

func NewFlowController(
	dispatcher *StepDispatcher,
	res *resolver.Resolver,
	sb *sandbox.Sandbox,
	llm llmprovider.Provider,
	logger *slog.Logger,
) *FlowController {
	return &FlowController{
		dispatcher: dispatcher,
		resolver:   res,
		sandbox:    sb,
		llm:        llm,
		logger:     logger,
	}
}

// Run drives a single execution to completion, mutating run.Outputs in
// place. The returned error, if any, is what Engine.StartRun records as the
// run's terminal error string.
func (fc *FlowController) Run(ctx context.Context, run *domain.WorkflowExecution, graph *domain.Graph) error {
	fc.stepsByID = graph.StepsByID()
	fc.outgoing = graph.Outgoing()
	fc.incoming = graph.Incoming()
	fc.runID = run.ID

	root := newScope(run.Outputs)

	for _, step := range graph.StartSteps() {
		if _, err := fc.visit(ctx, root, step.ID, nil); err != nil {
			run.Outputs = root.outputs

			return err
		}
	}

	run.Outputs = root.outputs

	return nil
}

func (fc *FlowController) visit(ctx context.Context, sc *scope, stepID string, path []string) (any, error) {
	select {
	case <-ctx.Done():
		return nil, domain.WrapEngineError(domain.ErrCancelled, "visit", ctx.Err())
	default:
	}

	if containsID(path, stepID) {
		return nil, domain.NewEngineError(domain.ErrCycleDetected, "visit", cyclePath(path, stepID))
	}

	if sc.completed[stepID] {
		return sc.outputs[stepID], nil
	}

	step, ok := fc.stepsByID[stepID]
	if !ok {
		return nil, domain.NewEngineError(domain.ErrStepNotFound, "visit", "unknown step id "+stepID)
	}

	newPath := make([]string, len(path), len(path)+1)
	copy(newPath, path)
	newPath = append(newPath, stepID)

	edges := fc.outgoing[stepID]
	inputs := buildInputs(sc, predecessorIDsOf(fc.incoming[stepID]))

	stepCtx := buildStepContext(inputs, sc.outputs, edges, fc.resolver, fc.sandbox, fc.llm, fc.logger)

	stepCtx.SubExecute = func(ctx context.Context, targetID string) (any, error) {
		return fc.visit(ctx, sc, targetID, newPath)
	}

	stepCtx.RunLoopBody = func(ctx context.Context, item any, successorIDs []string) ([]any, error) {
		iteration := sc.fork(item)
		row := make([]any, 0, len(successorIDs))

		for _, sid := range successorIDs {
			value, err := fc.visit(ctx, iteration, sid, newPath)
			if err != nil {
				return nil, err
			}

			row = append(row, value)
		}

		return row, nil
	}

	value, err := fc.dispatcher.Dispatch(ctx, fc.runID, step, stepCtx)
	if err != nil {
		return nil, err
	}

	sc.outputs[stepID] = value
	sc.completed[stepID] = true

	if !ownsSuccessorTraversal(step.Kind) {
		for _, e := range edges {
			if _, err := fc.visit(ctx, sc, e.TargetID, newPath); err != nil {
				return nil, err
			}
		}
	}

	return value, nil
}

// ownsSuccessorTraversal reports whether a step kind selects and recurses
// into its own successors from within its handler (via SubExecute /
// RunLoopBody), so FlowController must not also fan out generically.
func ownsSuccessorTraversal(k domain.StepKind) bool {
	switch k {
	case domain.StepKindCondition, domain.StepKindSwitch, domain.StepKindLoop:
		return true
	default:
		return false
	}
}

func predecessorIDsOf(edges []*domain.Edge) []string {
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.SourceID)
	}

	return ids
}

func containsID(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}

	return false
}

func cyclePath(path []string, closingID string) string {
	return strings.Join(append(append([]string{}, path...), closingID), " -> ")
}
