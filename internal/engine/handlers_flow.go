package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/operion/internal/domain"
)

// sandboxEnv builds the two bindings every sandboxed step kind exposes:
// `inputs` and `context.outputs` (spec.md §4.3, §4.4).
func sandboxEnv(sc *StepContext) map[string]any {
	env := map[string]any{
		"inputs":  sc.Inputs,
		"context": map[string]any{"outputs": sc.Outputs},
	}

	// currentItem is bound directly, not just under inputs, so a loop
	// body's code (spec.md §4.3's worked example: `currentItem * 2`) can
	// reference it as a bare identifier.
	if item, ok := sc.Inputs["currentItem"]; ok {
		env["currentItem"] = item
	}

	return env
}

func edgesWithLabel(edges []*domain.Edge, label string) []*domain.Edge {
	var out []*domain.Edge

	for _, e := range edges {
		if e.Label != nil && *e.Label == label {
			out = append(out, e)
		}
	}

	return out
}

func handleCondition(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	conditionSrc := getString(step.Config, "condition", "false")

	result, err := sc.Sandbox.EvalBool(conditionSrc, sandboxEnv(sc))
	if err != nil {
		return nil, err
	}

	label := "false"
	if result {
		label = "true"
	}

	for _, e := range edgesWithLabel(sc.Edges, label) {
		if _, err := sc.SubExecute(ctx, e.TargetID); err != nil {
			return nil, err
		}
	}

	return map[string]any{"condition": result, "result": result}, nil
}

func handleSwitch(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	exprSrc := getString(step.Config, "expression", "")

	value, err := sc.Sandbox.Eval(exprSrc, sandboxEnv(sc))
	if err != nil {
		return nil, err
	}

	target := fmt.Sprintf("%v", value)

	var matched, def *domain.Edge

	for _, e := range sc.Edges {
		if e.Label == nil {
			continue
		}

		switch *e.Label {
		case target:
			matched = e
		case "default":
			def = e
		}
	}

	chosen := matched
	if chosen == nil {
		chosen = def
	}

	if chosen == nil {
		if sc.Logger != nil {
			sc.Logger.Warn("switch had no matching or default edge",
				"step_id", step.ID, "value", target)
		}
	} else if _, err := sc.SubExecute(ctx, chosen.TargetID); err != nil {
		return nil, err
	}

	return map[string]any{"switchValue": value}, nil
}

func handleLoop(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	inputPath := getString(step.Config, "input", "")

	raw, ok := sc.Resolver.Lookup(inputPath, sc.Inputs)
	if !ok {
		return nil, domain.NewEngineError(domain.ErrTypeError, "loop",
			"config.input did not resolve to a value")
	}

	items, ok := toAnySlice(raw)
	if !ok {
		return nil, domain.NewEngineError(domain.ErrTypeError, "loop",
			"config.input did not resolve to an array")
	}

	successorIDs := make([]string, 0, len(sc.Edges))
	for _, e := range sc.Edges {
		successorIDs = append(successorIDs, e.TargetID)
	}

	results := make([]any, 0, len(items))

	for _, item := range items {
		row, err := sc.RunLoopBody(ctx, item, successorIDs)
		if err != nil {
			return nil, err
		}

		results = append(results, row)
	}

	return results, nil
}

func handleFilter(_ context.Context, step *domain.Step, sc *StepContext) (any, error) {
	inputPath := getString(step.Config, "input", "")

	raw, ok := sc.Resolver.Lookup(inputPath, sc.Inputs)
	if !ok {
		return nil, domain.NewEngineError(domain.ErrTypeError, "filter",
			"config.input did not resolve to a value")
	}

	items, ok := toAnySlice(raw)
	if !ok {
		return nil, domain.NewEngineError(domain.ErrTypeError, "filter",
			"config.input did not resolve to an array")
	}

	predicate := getString(step.Config, "predicate", "true")

	out := make([]any, 0, len(items))

	for i, item := range items {
		keep, err := sc.Sandbox.EvalPredicate(predicate, item, i, items, sandboxEnv(sc))
		if err != nil {
			return nil, err
		}

		if keep {
			out = append(out, item)
		}
	}

	return out, nil
}

func handleMerge(_ context.Context, step *domain.Step, sc *StepContext) (any, error) {
	paths := getStringSlice(step.Config, "inputs", nil)

	result := make(map[string]any)

	for _, path := range paths {
		value, ok := sc.Resolver.Lookup(path, sc.Inputs)
		if !ok {
			continue
		}

		if idx := strings.LastIndex(path, "."); idx >= 0 {
			result[path[idx+1:]] = value

			continue
		}

		if m, ok := value.(map[string]any); ok {
			for k, v := range m {
				result[k] = v
			}

			continue
		}

		result[path] = value
	}

	return result, nil
}

func handleCode(_ context.Context, step *domain.Step, sc *StepContext) (any, error) {
	code := getString(step.Config, "code", "nil")

	return sc.Sandbox.Eval(code, sandboxEnv(sc))
}
