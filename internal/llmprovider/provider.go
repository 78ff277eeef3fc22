// Package llmprovider implements the LLMProvider capability of spec.md
// §4.5: a single Complete call, with a deterministic mock mode used when no
// credential is configured.
package llmprovider

import (
	"context"
	"fmt"
	"time"
)

// Request bundles the parameters of a single completion call. Kind and
// Categories are engine-internal hints Mock uses to pick the right
// sentinel shape (spec.md §4.5); a live provider ignores them.
type Request struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64

	Kind       string
	Categories []string
}

// Provider is the single capability the engine depends on for AI step
// kinds.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

const mockDelay = 500 * time.Millisecond

// Mock is the LLMProvider fallback selected when no credential is present
// (spec.md §4.5). It is deterministic and introduces an observable ~500ms
// delay to simulate latency, so callers exercising cancellation (spec.md
// §5) have a real suspension point to interrupt.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-time.After(mockDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	switch req.Kind {
	case "ai_transform":
		return fmt.Sprintf("[MOCK] Transformed: %s", req.Prompt), nil
	case "sentiment_analysis":
		return `{"sentiment":"positive","score":0.8,"explanation":"[MOCK] mock sentiment analysis"}`, nil
	case "text_classifier":
		category := "neutral"
		if len(req.Categories) > 0 {
			category = req.Categories[0]
		}

		return fmt.Sprintf(`{"category":%q,"confidence":0.95,"explanation":"[MOCK] mock classification"}`, category), nil
	case "information_extractor":
		return `{"field":"[MOCK] extracted value"}`, nil
	default:
		return fmt.Sprintf("[MOCK] Response to: %s", req.Prompt), nil
	}
}
