package engine

import (
	"context"
	"log/slog"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/llmprovider"
	"github.com/dukex/operion/internal/resolver"
	"github.com/dukex/operion/internal/sandbox"
)

// scope is one run-scoped (or loop-iteration-scoped) mutable view of the
// outputs map plus the set of steps already executed within it. The top
// level run has exactly one scope; each loop iteration gets its own,
// forked from the parent (spec.md §4.2's "stack of output-map overlays").
type scope struct {
	outputs   map[string]any
	completed map[string]bool
}

func newScope(seed map[string]any) *scope {
	outputs := make(map[string]any, len(seed))
	for k, v := range seed {
		outputs[k] = v
	}

	return &scope{outputs: outputs, completed: make(map[string]bool)}
}

// fork returns a child scope: a shallow copy of the outputs map augmented
// with currentItem, and a fresh completed set — so loop children can
// execute once per item (spec.md invariant 5) while cycle-safety within a
// single iteration is still enforced via the caller's path.
func (s *scope) fork(currentItem any) *scope {
	child := newScope(s.outputs)
	child.outputs["currentItem"] = currentItem

	return child
}

// HandlerFunc implements one step kind. It returns the step's output value
// or a *domain.EngineError.
type HandlerFunc func(ctx context.Context, step *domain.Step, sc *StepContext) (any, error)

// StepContext is what spec.md §4.3 hands to every handler: an inputs view,
// a read-only outputs view, the resolver/sandbox/llm capabilities, and the
// hooks branching/looping handlers use to recurse into the graph without
// touching Store directly.
type StepContext struct {
	Inputs   map[string]any
	Outputs  map[string]any
	Resolver *resolver.Resolver
	Sandbox  *sandbox.Sandbox
	LLM      llmprovider.Provider
	Edges    []*domain.Edge
	Logger   *slog.Logger

	// SubExecute recursively dispatches stepID within the current scope,
	// used by condition/switch to run exactly the selected branch(es).
	SubExecute func(ctx context.Context, stepID string) (any, error)

	// RunLoopBody runs successorIDs, in order, inside a scope forked with
	// currentItem=item, returning each successor's own output value in
	// order. Used only by the loop handler.
	RunLoopBody func(ctx context.Context, item any, successorIDs []string) ([]any, error)
}

// buildInputs implements spec.md §4.3's inputs view: `_all` is the whole
// outputs snapshot, one entry per direct predecessor id, and `currentItem`
// when present in the scope (inside a loop body).
func buildInputs(sc *scope, predecessorIDs []string) map[string]any {
	inputs := make(map[string]any, len(predecessorIDs)+2)
	inputs["_all"] = sc.outputs

	for _, id := range predecessorIDs {
		if v, ok := sc.outputs[id]; ok {
			inputs[id] = v
		}
	}

	if item, ok := sc.outputs["currentItem"]; ok {
		inputs["currentItem"] = item
	}

	return inputs
}
