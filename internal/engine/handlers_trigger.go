package engine

import (
	"context"

	"github.com/dukex/operion/internal/domain"
)

// handleTrigger is shared by all five trigger step kinds. Engine.StartRun
// seeds the outputs map with the matched trigger step's envelope fields
// before traversal begins (spec.md §4.1 step 4); this handler simply
// surfaces that seeded value. A trigger step present in the graph but not
// the one the run's TriggerEnvelope matched has nothing seeded and reports
// itself untriggered.
func handleTrigger(_ context.Context, step *domain.Step, sc *StepContext) (any, error) {
	if v, ok := sc.Outputs[step.ID]; ok {
		return v, nil
	}

	return map[string]any{"triggered": false, "triggerType": string(step.Kind)}, nil
}
