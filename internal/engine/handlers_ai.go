package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/operion/internal/domain"
	"github.com/dukex/operion/internal/llmprovider"
	"github.com/xeipuuv/gojsonschema"
)

var fencedJSONBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSONObject implements spec.md §4.3's information_extractor parse
// rule: first a fenced code block, otherwise the first `{…}` substring.
func extractJSONObject(text string) (map[string]any, bool) {
	candidate := text

	if m := fencedJSONBlock.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			candidate = text[start : end+1]
		}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, false
	}

	return out, true
}

func complete(ctx context.Context, sc *StepContext, step *domain.Step, req llmprovider.Request) (string, error) {
	if req.Model == "" {
		req.Model = getString(step.Config, "model", "")
	}

	text, err := sc.LLM.Complete(ctx, req)
	if err != nil {
		return "", domain.WrapEngineError(domain.ErrLLMError, string(step.Kind), err)
	}

	return text, nil
}

func handleBasicLLMChain(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	prompt := sc.Resolver.Resolve(getString(step.Config, "prompt", ""), sc.Inputs)

	return complete(ctx, sc, step, llmprovider.Request{
		Prompt:      prompt,
		MaxTokens:   getInt(step.Config, "maxTokens", 1000),
		Temperature: getFloat(step.Config, "temperature", 0.7),
	})
}

func handleAITransform(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	inputPath := getString(step.Config, "input", "")

	value, _ := sc.Resolver.Lookup(inputPath, sc.Inputs)

	env := make(map[string]any, len(sc.Inputs)+1)
	for k, v := range sc.Inputs {
		env[k] = v
	}

	env["value"] = value

	prompt := sc.Resolver.Resolve(getString(step.Config, "prompt", "Transform this: {{_all}}"), env)

	return complete(ctx, sc, step, llmprovider.Request{
		Prompt:      prompt,
		Kind:        "ai_transform",
		MaxTokens:   getInt(step.Config, "maxTokens", 1000),
		Temperature: getFloat(step.Config, "temperature", 0.7),
	})
}

// schemaLoader turns step.Config["schema"] into text usable in the prompt and,
// when it is a structured JSON Schema object rather than a free-form
// description, a gojsonschema.Schema the extracted object must satisfy.
func schemaLoader(config map[string]any) (string, *gojsonschema.Schema) {
	raw, ok := config["schema"]
	if !ok {
		return "{}", nil
	}

	if text, ok := raw.(string); ok {
		return text, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return "{}", nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(encoded))
	if err != nil {
		return string(encoded), nil
	}

	return string(encoded), compiled
}

func handleInformationExtractor(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	schemaText, schema := schemaLoader(step.Config)
	prompt := fmt.Sprintf(
		"Extract structured data from the following text as JSON matching this schema: %s\n\nText:\n%s",
		schemaText, sc.Resolver.Resolve(getString(step.Config, "input", "{{_all}}"), sc.Inputs),
	)

	text, err := complete(ctx, sc, step, llmprovider.Request{
		Prompt:      prompt,
		Kind:        "information_extractor",
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	obj, ok := extractJSONObject(text)
	if !ok {
		return text, nil
	}

	if schema != nil {
		encoded, marshalErr := json.Marshal(obj)
		if marshalErr == nil {
			result, validateErr := schema.Validate(gojsonschema.NewBytesLoader(encoded))
			if validateErr == nil && !result.Valid() {
				return nil, domain.NewEngineError(domain.ErrTypeError, "information_extractor",
					fmt.Sprintf("extracted object does not match schema: %v", result.Errors()))
			}
		}
	}

	return obj, nil
}

func handleQAChain(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	docContext, _ := sc.Resolver.Lookup(getString(step.Config, "context", ""), sc.Inputs)
	question := sc.Resolver.Resolve(getString(step.Config, "question", ""), sc.Inputs)

	prompt := fmt.Sprintf("Context:\n%v\n\nQuestion: %s", docContext, question)

	return complete(ctx, sc, step, llmprovider.Request{Prompt: prompt})
}

func handleSentimentAnalysis(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	input := sc.Resolver.Resolve(getString(step.Config, "input", "{{_all}}"), sc.Inputs)
	prompt := fmt.Sprintf(
		`Analyze the sentiment of the following text. Respond with a JSON object {"sentiment": "positive"|"negative"|"neutral", "score": number between -1 and 1, "explanation": string}.\n\nText:\n%s`,
		input,
	)

	text, err := complete(ctx, sc, step, llmprovider.Request{
		Prompt:      prompt,
		Kind:        "sentiment_analysis",
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	if obj, ok := extractJSONObject(text); ok {
		return obj, nil
	}

	return map[string]any{"sentiment": "neutral", "score": 0, "explanation": text}, nil
}

func handleSummarization(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	length := getString(step.Config, "length", "medium")
	input := sc.Resolver.Resolve(getString(step.Config, "input", "{{_all}}"), sc.Inputs)
	prompt := fmt.Sprintf("Write a %s summary of the following text:\n\n%s", length, input)

	return complete(ctx, sc, step, llmprovider.Request{Prompt: prompt})
}

func handleTextClassifier(ctx context.Context, step *domain.Step, sc *StepContext) (any, error) {
	categories := getStringSlice(step.Config, "categories", []string{"positive", "negative", "neutral"})
	input := sc.Resolver.Resolve(getString(step.Config, "input", "{{_all}}"), sc.Inputs)
	prompt := fmt.Sprintf(
		`Classify the following text into one of %v. Respond with a JSON object {"category": string, "confidence": number, "explanation": string}.\n\nText:\n%s`,
		categories, input,
	)

	text, err := complete(ctx, sc, step, llmprovider.Request{
		Prompt:      prompt,
		Kind:        "text_classifier",
		Categories:  categories,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	if obj, ok := extractJSONObject(text); ok {
		return obj, nil
	}

	return map[string]any{"category": "neutral", "confidence": 0, "explanation": text}, nil
}
